// Package ort wraps ONNX Runtime graph execution for the backbone and codec
// backends. Each Runner owns one session; tensors are small runtime-neutral
// carriers of float32 or int64 data.
package ort

import "fmt"

// Tensor holds a dense float32 or int64 array with its shape.
type Tensor struct {
	shape []int64
	data  any
}

// NewTensor wraps a data slice with a shape. The element count must match
// the shape product.
func NewTensor[T ~int64 | ~float32](data []T, shape []int64) (*Tensor, error) {
	count := int64(1)
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension %d in shape %v", d, shape)
		}
		count *= d
	}
	if count != int64(len(data)) {
		return nil, fmt.Errorf("shape %v wants %d elements, data has %d", shape, count, len(data))
	}

	t := &Tensor{shape: append([]int64(nil), shape...)}
	switch v := any(data).(type) {
	case []float32:
		t.data = append([]float32(nil), v...)
	case []int64:
		t.data = append([]int64(nil), v...)
	default:
		return nil, fmt.Errorf("unsupported tensor dtype %T", data)
	}
	return t, nil
}

// Shape returns a copy of the tensor shape.
func (t *Tensor) Shape() []int64 {
	return append([]int64(nil), t.shape...)
}

// Data returns the backing slice ([]float32 or []int64).
func (t *Tensor) Data() any {
	return t.data
}

// Float32 returns the tensor data as []float32.
func (t *Tensor) Float32() ([]float32, error) {
	v, ok := t.data.([]float32)
	if !ok {
		return nil, fmt.Errorf("tensor holds %T, want []float32", t.data)
	}
	return v, nil
}

// Int64 returns the tensor data as []int64.
func (t *Tensor) Int64() ([]int64, error) {
	v, ok := t.data.([]int64)
	if !ok {
		return nil, fmt.Errorf("tensor holds %T, want []int64", t.data)
	}
	return v, nil
}
