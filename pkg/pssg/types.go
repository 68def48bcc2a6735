// Package pssg decodes the XML rendition of PSSG scene-graph files.
package pssg

import "fmt"

// Library type tags.
const (
	LibraryRenderInterfaceBound = "RENDERINTERFACEBOUND"
	LibrarySegmentSet           = "SEGMENTSET"
	LibraryNode                 = "NODE"
)

// RenderType is the semantic of a data block stream.
type RenderType int

const (
	RenderTypeOther RenderType = iota
	RenderTypeVertex
	RenderTypeSkinnableVertex
	RenderTypeST // texture coordinates
)

// ParseRenderType maps a renderType attribute to a RenderType.
func ParseRenderType(tag string) RenderType {
	switch tag {
	case "Vertex":
		return RenderTypeVertex
	case "SkinnableVertex":
		return RenderTypeSkinnableVertex
	case "ST":
		return RenderTypeST
	default:
		return RenderTypeOther
	}
}

// String returns a human-readable render type name.
func (r RenderType) String() string {
	switch r {
	case RenderTypeVertex:
		return "Vertex"
	case RenderTypeSkinnableVertex:
		return "SkinnableVertex"
	case RenderTypeST:
		return "ST"
	default:
		return "Other"
	}
}

// IsPosition reports whether the stream carries vertex positions.
func (r RenderType) IsPosition() bool {
	return r == RenderTypeVertex || r == RenderTypeSkinnableVertex
}

// ElementFormat is the declared per-element layout of a data block.
type ElementFormat int

const (
	ElementOther ElementFormat = iota
	ElementHalf2
	ElementHalf4
	ElementFloat2
	ElementFloat3
)

// ParseElementFormat maps a dataType attribute to an ElementFormat.
func ParseElementFormat(tag string) ElementFormat {
	switch tag {
	case "half2":
		return ElementHalf2
	case "half4":
		return ElementHalf4
	case "float2":
		return ElementFloat2
	case "float3":
		return ElementFloat3
	default:
		return ElementOther
	}
}

// String returns the document tag for the format.
func (e ElementFormat) String() string {
	switch e {
	case ElementHalf2:
		return "half2"
	case ElementHalf4:
		return "half4"
	case ElementFloat2:
		return "float2"
	case ElementFloat3:
		return "float3"
	default:
		return "other"
	}
}

// Primitive is the topology of an index source.
type Primitive int

const (
	PrimitiveOther Primitive = iota
	PrimitiveTriangles
)

// ParsePrimitive maps a primitive attribute to a Primitive.
func ParsePrimitive(tag string) Primitive {
	if tag == "triangles" {
		return PrimitiveTriangles
	}
	return PrimitiveOther
}

// DataBlock is a raw numeric payload with its stream tags.
type DataBlock struct {
	ID           string
	ElementCount int
	RenderType   RenderType
	RenderTag    string // raw renderType attribute
	Format       ElementFormat
	FormatTag    string // raw dataType attribute
	Payload      *string
}

// String returns a short description used in log messages.
func (b DataBlock) String() string {
	return fmt.Sprintf("%s(%s/%s x%d)", b.ID, b.RenderTag, b.FormatTag, b.ElementCount)
}

// IndexSource is the triangle index stream of a render data source.
type IndexSource struct {
	Primitive Primitive
	Count     int
	Format    DataType
	FormatTag string // raw format attribute
	Payload   *string
}

// RenderStream references a data block by identifier.
type RenderStream struct {
	DataBlock string // raw reference, usually "#id"
	SubStream int
}

// BlockID returns the referenced block identifier without its leading marker.
func (s RenderStream) BlockID() string {
	if len(s.DataBlock) > 0 && s.DataBlock[0] == '#' {
		return s.DataBlock[1:]
	}
	return s.DataBlock
}

// RenderDataSource is one drawable unit.
type RenderDataSource struct {
	ID      string
	Index   IndexSource
	Streams []RenderStream
}

// RenderNode is a scene node that carries a transform.
type RenderNode struct {
	ID        string
	Transform string // 16 numbers, row-major
}

// RootNode is the root of the scene node hierarchy.
type RootNode struct {
	ID          string
	RenderNodes []RenderNode
}

// Document is the subset of a PSSG database needed for mesh extraction.
type Document struct {
	DataBlocks []DataBlock
	Sources    []RenderDataSource
	Root       *RootNode

	// DeclaredSourceCount is the RENDERDATASOURCE entry of the type-count
	// table, or -1 when the table does not list it.
	DeclaredSourceCount int
}

// FindBlock returns the first block in blocks with the given identifier.
func FindBlock(blocks []DataBlock, id string) (*DataBlock, bool) {
	for i := range blocks {
		if blocks[i].ID == id {
			return &blocks[i], true
		}
	}
	return nil, false
}
