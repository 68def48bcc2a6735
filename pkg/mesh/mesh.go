// Package mesh assembles renderer-agnostic triangle meshes from PSSG data blocks.
package mesh

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/pssgconv/pkg/math"
	"github.com/Faultbox/pssgconv/pkg/pssg"
)

// Mesh errors.
var (
	ErrCountMismatch    = errors.New("decoded count does not match element count")
	ErrInvalidTransform = errors.New("invalid transform")
)

// CountMismatchError reports a stream whose decoded element count differs
// from the count the document declares.
type CountMismatchError struct {
	Block    string
	Kind     string // "vertex" or "uv"
	Decoded  int
	Declared int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("block %s: %s count %d does not match element count %d",
		e.Block, e.Kind, e.Decoded, e.Declared)
}

// Unwrap makes errors.Is(err, ErrCountMismatch) hold.
func (e *CountMismatchError) Unwrap() error {
	return ErrCountMismatch
}

// Object is an assembled mesh. Faces index into Vertices; UVs share the
// same index.
type Object struct {
	Name        string
	Vertices    []math.Vec3
	UVs         []math.Vec2
	Faces       [][3]uint32
	Translation math.Vec3
}

// Bounds returns the bounding box of the vertices in object space.
func (o *Object) Bounds() (math.Bounds, bool) {
	return math.BoundsOf(o.Vertices)
}

// Option configures Assemble.
type Option func(*assembler)

// WithLogger sets the logger that receives advisory warnings.
func WithLogger(log *zap.Logger) Option {
	return func(a *assembler) {
		if log != nil {
			a.log = log
		}
	}
}

// WithTranslation sets the object's world-space translation.
func WithTranslation(t math.Vec3) Option {
	return func(a *assembler) { a.translation = t }
}

type assembler struct {
	log         *zap.Logger
	translation math.Vec3
}

// Assemble decodes one render data source against the document's data blocks.
// A vertex or UV stream whose decoded count differs from its declared element
// count fails the whole object; face count irregularities are only logged.
func Assemble(blocks []pssg.DataBlock, src pssg.RenderDataSource, opts ...Option) (*Object, error) {
	a := &assembler{log: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	log := a.log.With(zap.String("source", src.ID))

	obj := &Object{Name: src.ID, Translation: a.translation}

	for _, stream := range src.Streams {
		id := stream.BlockID()
		block, ok := pssg.FindBlock(blocks, id)
		if !ok {
			log.Debug("unresolved render stream", zap.String("block", id))
			continue
		}

		switch {
		case block.RenderType.IsPosition():
			vertices, err := decodeVertices(block)
			if err != nil {
				return nil, err
			}
			obj.Vertices = append(obj.Vertices, vertices...)
		case block.RenderType == pssg.RenderTypeST:
			uvs, err := decodeUVs(block)
			if err != nil {
				return nil, err
			}
			obj.UVs = append(obj.UVs, uvs...)
		default:
			log.Debug("ignoring stream", zap.Stringer("block", block))
		}
	}

	faces, err := decodeFaces(src.Index, log)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.ID, err)
	}
	obj.Faces = faces

	return obj, nil
}

func decodeVertices(block *pssg.DataBlock) ([]math.Vec3, error) {
	data, err := pssg.DecodeFloats(*block.Payload, pssg.DataTypeFloat)
	if err != nil {
		return nil, fmt.Errorf("block %s: decoding vertices: %w", block.ID, err)
	}
	if len(data)%3 != 0 || len(data)/3 != block.ElementCount {
		return nil, &CountMismatchError{
			Block:    block.ID,
			Kind:     "vertex",
			Decoded:  ceilDiv(len(data), 3),
			Declared: block.ElementCount,
		}
	}

	vertices := make([]math.Vec3, len(data)/3)
	for i := range vertices {
		vertices[i] = math.Vec3{X: data[i*3], Y: data[i*3+1], Z: data[i*3+2]}
	}
	return vertices, nil
}

func decodeUVs(block *pssg.DataBlock) ([]math.Vec2, error) {
	var (
		dt     pssg.DataType
		stride int // components per element; the first two are u and v
	)
	switch block.Format {
	case pssg.ElementHalf2:
		dt, stride = pssg.DataTypeHalf, 2
	case pssg.ElementHalf4:
		dt, stride = pssg.DataTypeHalf, 4
	case pssg.ElementFloat2:
		dt, stride = pssg.DataTypeFloat, 2
	default:
		return nil, fmt.Errorf("block %s: %w: uv format %q", block.ID, pssg.ErrUnsupportedDataType, block.FormatTag)
	}

	data, err := pssg.DecodeFloats(*block.Payload, dt)
	if err != nil {
		return nil, fmt.Errorf("block %s: decoding uvs: %w", block.ID, err)
	}
	if len(data)%stride != 0 || len(data)/stride != block.ElementCount {
		return nil, &CountMismatchError{
			Block:    block.ID,
			Kind:     "uv",
			Decoded:  ceilDiv(len(data), stride),
			Declared: block.ElementCount,
		}
	}

	uvs := make([]math.Vec2, len(data)/stride)
	for i := range uvs {
		uvs[i] = math.Vec2{X: data[i*stride], Y: data[i*stride+1]}
	}
	return uvs, nil
}

func decodeFaces(index pssg.IndexSource, log *zap.Logger) ([][3]uint32, error) {
	indices, err := decodeIndices(index, log)
	if err != nil {
		return nil, fmt.Errorf("decoding indices: %w", err)
	}

	faces := make([][3]uint32, len(indices)/3)
	for i := range faces {
		faces[i] = [3]uint32{indices[i*3], indices[i*3+1], indices[i*3+2]}
	}

	if len(indices)%3 != 0 {
		log.Warn("index stream length is not a multiple of 3",
			zap.Int("indices", len(indices)), zap.Int("dropped", len(indices)%3))
	}
	if index.Count%3 != 0 {
		log.Warn("index count is not a multiple of 3", zap.Int("count", index.Count))
	}
	if index.Count/3 != len(faces) {
		log.Warn("face count does not match face data",
			zap.Int("declared", index.Count/3), zap.Int("decoded", len(faces)))
	}
	return faces, nil
}

func decodeIndices(index pssg.IndexSource, log *zap.Logger) ([]uint32, error) {
	var (
		indices []uint32
		err     error
	)
	switch {
	case index.Format.IsInteger():
		indices, err = pssg.DecodeUints(*index.Payload, index.Format)
	case index.Format == pssg.DataTypeUnknown && pssg.IsDecimal(*index.Payload):
		log.Warn("unexpected index format", zap.String("format", index.FormatTag))
		indices, err = pssg.DecodeDecimalUints(*index.Payload)
	default:
		log.Warn("unexpected index format", zap.String("format", index.FormatTag))
		indices, err = decodeFloatIndices(*index.Payload, index.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("index format %q: %w", index.FormatTag, err)
	}
	return indices, nil
}

func decodeFloatIndices(payload string, dt pssg.DataType) ([]uint32, error) {
	values, err := pssg.DecodeFloats(payload, dt)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(values))
	for i, v := range values {
		out[i] = uint32(v)
	}
	return out, nil
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}
