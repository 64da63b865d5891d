package dedupe

// Option applies a configuration option to the pending set.
type Option func(*pendingSet)

// WithMaxSize caps how many keys are tracked. When full, the oldest key is
// forgotten so a new one can be recorded. A value <= 0 removes the cap.
func WithMaxSize(maxSize int) Option {
	return func(d *pendingSet) {
		d.maxSize = maxSize
	}
}
