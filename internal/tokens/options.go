package tokens

type storeOptions struct {
	now *Clock
}

// Option configures a store
type Option interface {
	apply(*storeOptions)
}

type clockOption Clock

func (c clockOption) apply(o *storeOptions) {
	*o.now = Clock(c)
}

// WithClock overrides the time source used for expiry checks
func WithClock(now Clock) Option {
	return clockOption(now)
}
