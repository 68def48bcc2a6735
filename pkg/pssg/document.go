package pssg

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/pssgconv/pkg/encoding"
)

// Document errors.
var (
	ErrInvalidDocument = errors.New("invalid PSSG document")
	ErrMissingField    = errors.New("missing required field")
)

const typeNameRenderDataSource = "RENDERDATASOURCE"

type xmlFile struct {
	XMLName  xml.Name     `xml:"PSSGFILE"`
	Database *xmlDatabase `xml:"PSSGDATABASE"`
}

type xmlDatabase struct {
	TypeInfo  []xmlTypeInfo `xml:"TYPEINFO"`
	Libraries []xmlLibrary  `xml:"LIBRARY"`
}

type xmlTypeInfo struct {
	TypeName  string `xml:"typeName,attr"`
	TypeCount int    `xml:"typeCount,attr"`
}

type xmlLibrary struct {
	Type        string          `xml:"type,attr"`
	DataBlocks  []xmlDataBlock  `xml:"DATABLOCK"`
	SegmentSets []xmlSegmentSet `xml:"SEGMENTSET"`
	RootNodes   []xmlRootNode   `xml:"ROOTNODE"`
}

type xmlText struct {
	Text string `xml:",chardata"`
}

type xmlDataBlock struct {
	ID           string          `xml:"id,attr"`
	ElementCount int             `xml:"elementCount,attr"`
	Stream       *xmlBlockStream `xml:"DATABLOCKSTREAM"`
	Data         *xmlText        `xml:"DATABLOCKDATA"`
}

type xmlBlockStream struct {
	RenderType string `xml:"renderType,attr"`
	DataType   string `xml:"dataType,attr"`
}

type xmlSegmentSet struct {
	ID      string                `xml:"id,attr"`
	Sources []xmlRenderDataSource `xml:"RENDERDATASOURCE"`
}

type xmlRenderDataSource struct {
	ID      string            `xml:"id,attr"`
	Index   *xmlIndexSource   `xml:"RENDERINDEXSOURCE"`
	Streams []xmlRenderStream `xml:"RENDERSTREAM"`
}

type xmlIndexSource struct {
	Primitive string   `xml:"primitive,attr"`
	Count     int      `xml:"count,attr"`
	Format    string   `xml:"format,attr"`
	Data      *xmlText `xml:"INDEXSOURCEDATA"`
}

type xmlRenderStream struct {
	DataBlock string `xml:"dataBlock,attr"`
	SubStream int    `xml:"subStream,attr"`
}

type xmlRootNode struct {
	ID          string          `xml:"id,attr"`
	RenderNodes []xmlRenderNode `xml:"RENDERNODE"`
}

type xmlRenderNode struct {
	ID        string   `xml:"id,attr"`
	Transform *xmlText `xml:"TRANSFORM"`
}

// LoadDocument reads and parses the document at path.
func LoadDocument(path string, log *zap.Logger) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()

	doc, err := ParseDocument(bufio.NewReader(f), log)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

// ParseDocument parses a PSSG XML document in a single structural pass.
// Data blocks without payload and render data sources whose index source is
// not a triangle list or has no payload are dropped here.
func ParseDocument(r io.Reader, log *zap.Logger) (*Document, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dec := xml.NewDecoder(r)
	dec.CharsetReader = encoding.CharsetReader

	var file xmlFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if file.Database == nil {
		return nil, fmt.Errorf("%w: PSSGDATABASE", ErrMissingField)
	}

	doc := &Document{DeclaredSourceCount: -1}
	for _, ti := range file.Database.TypeInfo {
		if ti.TypeName == typeNameRenderDataSource {
			doc.DeclaredSourceCount = ti.TypeCount
			break
		}
	}

	for _, lib := range file.Database.Libraries {
		switch lib.Type {
		case LibraryRenderInterfaceBound:
			if err := doc.addDataBlocks(lib.DataBlocks, log); err != nil {
				return nil, err
			}
		case LibrarySegmentSet:
			if err := doc.addSegmentSets(lib.SegmentSets, log); err != nil {
				return nil, err
			}
		case LibraryNode:
			doc.addRootNodes(lib.RootNodes, log)
		}
	}

	if doc.DeclaredSourceCount >= 0 && doc.DeclaredSourceCount != len(doc.Sources) {
		log.Warn("render data source count mismatch",
			zap.Int("declared", doc.DeclaredSourceCount),
			zap.Int("retained", len(doc.Sources)))
	}

	return doc, nil
}

func (d *Document) addDataBlocks(blocks []xmlDataBlock, log *zap.Logger) error {
	for i, xb := range blocks {
		if xb.ID == "" {
			return fmt.Errorf("%w: DATABLOCK %d id", ErrMissingField, i)
		}
		if xb.Stream == nil {
			return fmt.Errorf("%w: DATABLOCKSTREAM of %s", ErrMissingField, xb.ID)
		}
		if xb.Data == nil {
			log.Debug("skipping data block without payload", zap.String("block", xb.ID))
			continue
		}
		payload := xb.Data.Text
		d.DataBlocks = append(d.DataBlocks, DataBlock{
			ID:           xb.ID,
			ElementCount: xb.ElementCount,
			RenderType:   ParseRenderType(xb.Stream.RenderType),
			RenderTag:    xb.Stream.RenderType,
			Format:       ParseElementFormat(xb.Stream.DataType),
			FormatTag:    xb.Stream.DataType,
			Payload:      &payload,
		})
	}
	return nil
}

func (d *Document) addSegmentSets(sets []xmlSegmentSet, log *zap.Logger) error {
	for _, set := range sets {
		for i, xs := range set.Sources {
			if xs.Index == nil {
				return fmt.Errorf("%w: RENDERINDEXSOURCE of source %q (%d)", ErrMissingField, xs.ID, i)
			}
			prim := ParsePrimitive(xs.Index.Primitive)
			if prim != PrimitiveTriangles {
				log.Debug("skipping non-triangle source",
					zap.String("source", xs.ID), zap.String("primitive", xs.Index.Primitive))
				continue
			}
			if xs.Index.Data == nil {
				log.Debug("skipping source without index payload", zap.String("source", xs.ID))
				continue
			}

			streams := make([]RenderStream, 0, len(xs.Streams))
			for _, st := range xs.Streams {
				if st.DataBlock == "" {
					return fmt.Errorf("%w: RENDERSTREAM dataBlock of source %q", ErrMissingField, xs.ID)
				}
				streams = append(streams, RenderStream{DataBlock: st.DataBlock, SubStream: st.SubStream})
			}

			payload := xs.Index.Data.Text
			d.Sources = append(d.Sources, RenderDataSource{
				ID: xs.ID,
				Index: IndexSource{
					Primitive: prim,
					Count:     xs.Index.Count,
					Format:    ParseDataType(xs.Index.Format),
					FormatTag: xs.Index.Format,
					Payload:   &payload,
				},
				Streams: streams,
			})
		}
	}
	return nil
}

func (d *Document) addRootNodes(nodes []xmlRootNode, log *zap.Logger) {
	for _, xn := range nodes {
		if d.Root != nil {
			log.Warn("ignoring additional root node", zap.String("node", xn.ID))
			continue
		}
		root := &RootNode{ID: xn.ID}
		for _, rn := range xn.RenderNodes {
			node := RenderNode{ID: rn.ID}
			if rn.Transform != nil {
				node.Transform = rn.Transform.Text
			}
			root.RenderNodes = append(root.RenderNodes, node)
		}
		d.Root = root
	}
}
