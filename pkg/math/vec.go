// Package math provides the small vector and matrix types used by mesh decoding.
package math

// Vec2 is a 2D vector, used for texture coordinates.
type Vec2 struct {
	X, Y float32
}

// Vec3 is a 3D vector.
type Vec3 struct {
	X, Y, Z float32
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{v.X - other.X, v.Y - other.Y, v.Z - other.Z}
}

// Min returns the component-wise minimum.
func (v Vec3) Min(other Vec3) Vec3 {
	return Vec3{min(v.X, other.X), min(v.Y, other.Y), min(v.Z, other.Z)}
}

// Max returns the component-wise maximum.
func (v Vec3) Max(other Vec3) Vec3 {
	return Vec3{max(v.X, other.X), max(v.Y, other.Y), max(v.Z, other.Z)}
}

// Array returns the components as an array.
func (v Vec3) Array() [3]float32 {
	return [3]float32{v.X, v.Y, v.Z}
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min, Max Vec3
}

// BoundsOf returns the bounding box of points. ok is false when points is empty.
func BoundsOf(points []Vec3) (b Bounds, ok bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b = Bounds{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		b.Min = b.Min.Min(p)
		b.Max = b.Max.Max(p)
	}
	return b, true
}

// Size returns the extent of the box on each axis.
func (b Bounds) Size() Vec3 {
	return b.Max.Sub(b.Min)
}

// Transform returns the box enclosing the eight corners of b after m is
// applied to them.
func (b Bounds) Transform(m Mat4) Bounds {
	corners := make([]Vec3, 0, 8)
	for _, x := range [2]float32{b.Min.X, b.Max.X} {
		for _, y := range [2]float32{b.Min.Y, b.Max.Y} {
			for _, z := range [2]float32{b.Min.Z, b.Max.Z} {
				corners = append(corners, m.TransformPoint(Vec3{x, y, z}))
			}
		}
	}
	out, _ := BoundsOf(corners)
	return out
}
