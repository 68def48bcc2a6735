package math

import "fmt"

// Mat4 is a 4x4 matrix stored as 16 floats in the order the document
// writes them: row-major with row vectors, so the translation occupies
// elements 12, 13 and 14 (row 3, columns 0-2).
//
//	[m0  m1  m2  m3 ]
//	[m4  m5  m6  m7 ]
//	[m8  m9  m10 m11]
//	[m12 m13 m14 m15]
type Mat4 [16]float32

// Identity returns an identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mat4FromSlice builds a matrix from exactly 16 values.
func Mat4FromSlice(values []float32) (Mat4, error) {
	var m Mat4
	if len(values) != len(m) {
		return m, fmt.Errorf("matrix needs 16 values, got %d", len(values))
	}
	copy(m[:], values)
	return m, nil
}

// Translation returns the translation sub-vector (row 3, columns 0-2).
func (m Mat4) Translation() Vec3 {
	return Vec3{m[12], m[13], m[14]}
}

// TransformPoint transforms a point as a row vector (assumes w=1).
func (m Mat4) TransformPoint(p Vec3) Vec3 {
	x := p.X*m[0] + p.Y*m[4] + p.Z*m[8] + m[12]
	y := p.X*m[1] + p.Y*m[5] + p.Z*m[9] + m[13]
	z := p.X*m[2] + p.Y*m[6] + p.Z*m[10] + m[14]
	w := p.X*m[3] + p.Y*m[7] + p.Z*m[11] + m[15]
	if w != 0 && w != 1 {
		return Vec3{x / w, y / w, z / w}
	}
	return Vec3{x, y, z}
}
