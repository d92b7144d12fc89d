package embedstore

// Option configures a Store.
type Option[T any] func(*Store[T])

// WithCodec sets a custom codec for embedded payloads.
// If not specified, JSONCodec is used.
func WithCodec[T any](c Codec) Option[T] {
	return func(s *Store[T]) {
		s.codec = c
	}
}

// WithDimension fixes the dimension of every embedding the store accepts.
// Without it the store adopts the dimension of the vectors its provider
// already holds, or of the first embedding it writes successfully.
func WithDimension[T any](n int) Option[T] {
	return func(s *Store[T]) {
		if n > 0 {
			s.dimension.Store(int64(n))
		}
	}
}

// WithIDGenerator sets the function used to generate ids for entries added without one.
// If not specified, random UUIDs are used.
func WithIDGenerator[T any](fn func() string) Option[T] {
	return func(s *Store[T]) {
		s.newID = fn
	}
}
