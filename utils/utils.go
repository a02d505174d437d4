// Package utils provides utility functions for the application.
package utils

// ToPtr returns a pointer to the given value, for optional model fields
func ToPtr[T any](v T) *T {
	return &v
}

// IsTrue reports whether the nullable flag is set and true
func IsTrue(b *bool) bool {
	return b != nil && *b
}
