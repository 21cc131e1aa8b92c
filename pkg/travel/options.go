package travel

import (
	"time"

	"github.com/google/uuid"
)

// Option configures a service instance.
type Option func(*serviceOptions)

type serviceOptions struct {
	sink       operationLogSink
	nowFn      func() time.Time
	newTxRefFn func() string
	newSuffix  func() string
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		nowFn:      func() time.Time { return time.Now().UTC() },
		newTxRefFn: uuid.NewString,
		newSuffix:  func() string { return uuid.NewString()[:8] },
	}
}

func applyOptions(options []Option) serviceOptions {
	resolved := defaultServiceOptions()
	for _, option := range options {
		if option != nil {
			option(&resolved)
		}
	}
	return resolved
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) Option {
	return func(options *serviceOptions) {
		options.sink = operationLogSink{logger: logger}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(options *serviceOptions) {
		if now != nil {
			options.nowFn = now
		}
	}
}

// WithTxRefGenerator overrides transaction reference generation.
func WithTxRefGenerator(generate func() string) Option {
	return func(options *serviceOptions) {
		if generate != nil {
			options.newTxRefFn = generate
		}
	}
}

// WithSlugSuffixGenerator overrides the random suffix appended to listing slugs.
func WithSlugSuffixGenerator(generate func() string) Option {
	return func(options *serviceOptions) {
		if generate != nil {
			options.newSuffix = generate
		}
	}
}
