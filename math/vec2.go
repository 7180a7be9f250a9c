package math

// Vec2 is a texture coordinate.
type Vec2 struct {
	X, Y float32
}

func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

func (v Vec2) Mul(scalar float32) Vec2 {
	return Vec2{X: v.X * scalar, Y: v.Y * scalar}
}

// Vec2Barycentric interpolates a triangle's corner values at barycentric
// (u, v); the first corner gets weight 1-u-v.
func Vec2Barycentric(a, b, c Vec2, u, v float32) Vec2 {
	return a.Mul(1 - u - v).Add(b.Mul(u)).Add(c.Mul(v))
}
