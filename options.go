package xmlmodel

import "github.com/go-logr/logr"

// Option configures model construction.
type Option interface{ apply(*modelOptions) }

type modelOptions struct {
	log logr.Logger
}

type optionFunc func(*modelOptions)

func (f optionFunc) apply(cfg *modelOptions) {
	if cfg == nil {
		return
	}
	f(cfg)
}

// WithLogr sets the logger used for debug output. Models log nothing by default.
func WithLogr(log logr.Logger) Option {
	return optionFunc(func(cfg *modelOptions) {
		cfg.log = log
	})
}

func applyOptions(opts []Option) modelOptions {
	cfg := modelOptions{log: logr.Discard()}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}
	if cfg.log.GetSink() == nil {
		cfg.log = logr.Discard()
	}
	return cfg
}
