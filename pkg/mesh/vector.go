package mesh

import (
	"fmt"
	"math"
)

// Vector3 is a point or direction in three dimensions.
type Vector3 struct {
	X, Y, Z float64
}

// Vec builds a Vector3.
func Vec(x, y, z float64) Vector3 { return Vector3{X: x, Y: y, Z: z} }

// Dot returns the inner product.
func (v Vector3) Dot(o Vector3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Add returns v+o.
func (v Vector3) Add(o Vector3) Vector3 { return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v-o.
func (v Vector3) Sub(o Vector3) Vector3 { return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns s*v.
func (v Vector3) Scale(s float64) Vector3 { return Vector3{s * v.X, s * v.Y, s * v.Z} }

// Neg returns -v.
func (v Vector3) Neg() Vector3 { return Vector3{-v.X, -v.Y, -v.Z} }

// Norm returns the Euclidean length.
func (v Vector3) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// Normalized returns v scaled to unit length. The zero vector is returned
// unchanged.
func (v Vector3) Normalized() Vector3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

func (v Vector3) String() string {
	return fmt.Sprintf("(%.6g, %.6g, %.6g)", v.X, v.Y, v.Z)
}
