//go:build debug_mem_utils

package memutils

// DebugValidate panics if the free list or chunk passed in fails its own Validate. Builds without
// the debug_mem_utils tag compile this away.
func DebugValidate(validatable Validatable) {
	if err := validatable.Validate(); err != nil {
		panic(err)
	}
}

// DebugCheckPow2 panics if value is not a power of two. Builds without the debug_mem_utils tag
// compile this away.
func DebugCheckPow2[T Number](value T, name string) {
	if err := CheckPow2[T](value, name); err != nil {
		panic(err)
	}
}
