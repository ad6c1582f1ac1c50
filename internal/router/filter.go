package router

// routeOptions are post-ranking filters.
type routeOptions struct {
	minConfidence  float64
	maxUncertainty float64
	passingOnly    bool
}

// RouteOption narrows the recommendations Route returns.
type RouteOption func(*routeOptions)

// WithMinConfidence drops recommendations below v. Zero disables the filter.
func WithMinConfidence(v float64) RouteOption {
	return func(o *routeOptions) { o.minConfidence = v }
}

// WithMaxUncertainty drops recommendations above v. Values >= 1 disable
// the filter.
func WithMaxUncertainty(v float64) RouteOption {
	return func(o *routeOptions) { o.maxUncertainty = v }
}

// WithPassingOnly keeps only recommendations that clear the dual gate.
func WithPassingOnly() RouteOption {
	return func(o *routeOptions) { o.passingOnly = true }
}

// Filter applies opts to an already ranked list, preserving order. With
// no options it returns recs unchanged.
func Filter(recs []Recommendation, opts ...RouteOption) []Recommendation {
	if len(opts) == 0 {
		return recs
	}
	o := routeOptions{maxUncertainty: 1.0}
	for _, opt := range opts {
		opt(&o)
	}

	out := make([]Recommendation, 0, len(recs))
	for _, r := range recs {
		if o.minConfidence > 0 && r.Confidence < o.minConfidence {
			continue
		}
		if o.maxUncertainty < 1.0 && r.Uncertainty > o.maxUncertainty {
			continue
		}
		if o.passingOnly && !r.PassesThreshold {
			continue
		}
		out = append(out, r)
	}
	return out
}
