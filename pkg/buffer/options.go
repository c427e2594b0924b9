package buffer

// Option configures buffer behavior using the functional options pattern.
type Option[T any] func(*options[T])

type options[T any] struct {
	overflowPolicy OverflowPolicy
	dropCallback   DropCallback[T]
}

// WithOverflowPolicy sets the overflow behavior for the buffer.
// Defaults to DropOldest.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(opts *options[T]) {
		opts.overflowPolicy = policy
	}
}

// WithDropCallback sets a callback invoked with each dropped item.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *options[T]) {
		opts.dropCallback = callback
	}
}

func applyOptions[T any](opts ...Option[T]) *options[T] {
	o := &options[T]{
		overflowPolicy: DropOldest,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	return o
}
