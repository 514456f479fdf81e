package game

import "math"

// Vector2 is a single-precision 2D vector.
//
// Every product is wrapped in an explicit float32 conversion. The Go spec
// allows a compiler to fuse x*y+z into one instruction unless the product is
// explicitly converted, and fused results differ between architectures.
type Vector2 struct {
	X, Y float32
}

func Vec(x, y float32) Vector2 { return Vector2{X: x, Y: y} }

func (v Vector2) Add(o Vector2) Vector2 { return Vector2{v.X + o.X, v.Y + o.Y} }

func (v Vector2) Sub(o Vector2) Vector2 { return Vector2{v.X - o.X, v.Y - o.Y} }

func (v Vector2) Scale(s float32) Vector2 {
	return Vector2{float32(v.X * s), float32(v.Y * s)}
}

func (v Vector2) Neg() Vector2 { return Vector2{-v.X, -v.Y} }

// Dot returns the dot product.
func (v Vector2) Dot(o Vector2) float32 {
	return float32(v.X*o.X) + float32(v.Y*o.Y)
}

func (v Vector2) LengthSq() float32 { return v.Dot(v) }

// Length is computed in float64 and rounded once, so it is correctly rounded
// on every platform.
func (v Vector2) Length() float32 {
	return float32(math.Sqrt(float64(v.LengthSq())))
}

// Normalise returns the unit vector, or the zero vector for zero input.
func (v Vector2) Normalise() Vector2 {
	l := v.Length()
	if l == 0 {
		return Vector2{}
	}
	return Vector2{v.X / l, v.Y / l}
}

// Reflect returns v mirrored across the line with unit normal n.
func (v Vector2) Reflect(n Vector2) Vector2 {
	return v.Sub(n.Scale(float32(2 * v.Dot(n))))
}
