// Package shape provides tensor shape descriptors for model inspection.
//
// A shape is an ordered list of dimensions. Each dimension is either a fixed
// positive size or a symbolic placeholder (batch size, variable resolution)
// whose value is only known at execution time.
package shape

import (
	"strconv"
	"strings"
)

// Dim is a single tensor dimension: a fixed size when Value > 0, otherwise a
// dynamic dimension optionally carrying its symbolic name in Param.
type Dim struct {
	Value int64
	Param string
}

// Fixed returns a dimension with a concrete size.
func Fixed(v int64) Dim {
	return Dim{Value: v}
}

// Symbolic returns a dynamic dimension named by a symbolic parameter.
func Symbolic(name string) Dim {
	return Dim{Param: name}
}

// Dynamic returns an anonymous dynamic dimension.
func Dynamic() Dim {
	return Dim{}
}

// IsDynamic reports whether the dimension has no fixed size.
func (d Dim) IsDynamic() bool {
	return d.Value <= 0
}

func (d Dim) String() string {
	if !d.IsDynamic() {
		return strconv.FormatInt(d.Value, 10)
	}
	if d.Param != "" {
		return d.Param
	}
	return "-1"
}

// Shape is an ordered sequence of dimensions.
type Shape []Dim

// Of builds a shape from dimension sizes. Values <= 0 become anonymous
// dynamic dimensions, matching how runtimes report unknown sizes.
func Of(dims ...int64) Shape {
	s := make(Shape, len(dims))
	for i, v := range dims {
		if v > 0 {
			s[i] = Fixed(v)
		} else {
			s[i] = Dynamic()
		}
	}
	return s
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}

// IsFullyDefined reports whether every dimension has a fixed size.
func (s Shape) IsFullyDefined() bool {
	for _, d := range s {
		if d.IsDynamic() {
			return false
		}
	}
	return true
}

// Resolve returns a concrete dimension list, substituting placeholder for
// every dynamic dimension. It is total: any shape, including an empty one,
// yields a valid (possibly empty) result, and every returned dimension is
// positive as long as placeholder is.
func (s Shape) Resolve(placeholder int64) []int64 {
	out := make([]int64, len(s))
	for i, d := range s {
		if d.IsDynamic() {
			out[i] = placeholder
		} else {
			out[i] = d.Value
		}
	}
	return out
}

// NumElements returns the product of all dimensions, or -1 if any dimension
// is dynamic.
func (s Shape) NumElements() int64 {
	n := int64(1)
	for _, d := range s {
		if d.IsDynamic() {
			return -1
		}
		n *= d.Value
	}
	return n
}

// Equal reports whether two shapes have identical ranks and dimensions.
// Dynamic dimensions compare equal regardless of their symbolic names.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i].IsDynamic() != other[i].IsDynamic() {
			return false
		}
		if !s[i].IsDynamic() && s[i].Value != other[i].Value {
			return false
		}
	}
	return true
}

// String renders the shape as "(1, batch, 3, 640)".
func (s Shape) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, d := range s {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.String())
	}
	b.WriteByte(')')
	return b.String()
}

// FormatInts renders a concrete dimension list the same way String renders a
// shape, e.g. "(1, 10)".
func FormatInts(dims []int64) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, v := range dims {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatInt(v, 10))
	}
	b.WriteByte(')')
	return b.String()
}
