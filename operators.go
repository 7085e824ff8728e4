package accel

import "math"

// Number is the set of element types the shipped operators support.
type Number interface {
	int | int32 | int64 | uint32 | uint64 | float32 | float64
}

// Operator is a reduction operator: Init is its identity and Combine must
// be associative.
type Operator[T any] interface {
	Init() T
	Combine(a, b T) T
}

// Plus sums values.
type Plus[T Number] struct{}

func (Plus[T]) Init() T          { return 0 }
func (Plus[T]) Combine(a, b T) T { return a + b }

// Maximum keeps the largest value.
type Maximum[T Number] struct{}

func (Maximum[T]) Init() T { return lowest[T]() }
func (Maximum[T]) Combine(a, b T) T {
	if b > a {
		return b
	}
	return a
}

// Minimum keeps the smallest value.
type Minimum[T Number] struct{}

func (Minimum[T]) Init() T { return highest[T]() }
func (Minimum[T]) Combine(a, b T) T {
	if b < a {
		return b
	}
	return a
}

func lowest[T Number]() T {
	var v any
	switch any(*new(T)).(type) {
	case int:
		v = math.MinInt
	case int32:
		v = int32(math.MinInt32)
	case int64:
		v = int64(math.MinInt64)
	case uint32:
		v = uint32(0)
	case uint64:
		v = uint64(0)
	case float32:
		v = float32(math.Inf(-1))
	case float64:
		v = math.Inf(-1)
	}
	return v.(T)
}

func highest[T Number]() T {
	var v any
	switch any(*new(T)).(type) {
	case int:
		v = math.MaxInt
	case int32:
		v = int32(math.MaxInt32)
	case int64:
		v = int64(math.MaxInt64)
	case uint32:
		v = uint32(math.MaxUint32)
	case uint64:
		v = uint64(math.MaxUint64)
	case float32:
		v = float32(math.Inf(1))
	case float64:
		v = math.Inf(1)
	}
	return v.(T)
}
