package memutils

import "github.com/cockroachdb/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// InvalidSizeError is returned when an allocation is requested with a size that is zero or negative
var InvalidSizeError error = errors.New("allocation size must be greater than zero")

// ClosedError is returned by allocators and defraggers that have already been destroyed
var ClosedError error = errors.New("allocator has been destroyed")
