package utils

// Ptr returns a pointer to a copy of v.
func Ptr[T any](v T) *T {
	return &v
}

// NilIfZero returns nil for the zero value of T, used for nullable columns.
func NilIfZero[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}
