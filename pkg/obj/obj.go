// Package obj writes assembled meshes as Wavefront OBJ text.
package obj

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/Faultbox/pssgconv/pkg/mesh"
)

// Format selects how coordinates are printed.
type Format int

const (
	FormatNatural Format = iota // shortest representation that round-trips
	FormatFixed                 // four decimal places
)

// ParseFormat maps a config value to a Format. Unknown values yield FormatNatural.
func ParseFormat(s string) Format {
	if s == "fixed" {
		return FormatFixed
	}
	return FormatNatural
}

// String returns the config name of the format.
func (f Format) String() string {
	if f == FormatFixed {
		return "fixed"
	}
	return "natural"
}

func (f Format) float(v float32) string {
	if f == FormatFixed {
		return strconv.FormatFloat(float64(v), 'f', 4, 32)
	}
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// Write serializes o to w. Face indices are rebased to 1 and each corner
// reuses its vertex index for the texture coordinate.
func Write(w io.Writer, o *mesh.Object, f Format) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# Vertices: %d\n", len(o.Vertices))
	for _, v := range o.Vertices {
		fmt.Fprintf(bw, "v %s %s %s\n", f.float(v.X), f.float(v.Y), f.float(v.Z))
	}

	fmt.Fprintf(bw, "\n# UVs: %d\n", len(o.UVs))
	for _, uv := range o.UVs {
		fmt.Fprintf(bw, "vt %s %s\n", f.float(uv.X), f.float(uv.Y))
	}

	fmt.Fprintf(bw, "\n# Faces: %d\n", len(o.Faces))
	for _, face := range o.Faces {
		a, b, c := uint64(face[0])+1, uint64(face[1])+1, uint64(face[2])+1
		fmt.Fprintf(bw, "f %d/%d %d/%d %d/%d\n", a, a, b, b, c, c)
	}

	return bw.Flush()
}

// Marshal returns the OBJ text for o.
func Marshal(o *mesh.Object, f Format) []byte {
	var buf bytes.Buffer
	// bytes.Buffer writes cannot fail.
	_ = Write(&buf, o, f)
	return buf.Bytes()
}
