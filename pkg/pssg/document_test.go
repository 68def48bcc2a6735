package pssg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// makeDocument wraps library bodies in the PSSGFILE/PSSGDATABASE envelope.
func makeDocument(typeInfo string, libraries ...string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<PSSGFILE version="1.0.0.0">
<PSSGDATABASE creator="test" scale="1 1 1" up="0 1 0">
` + typeInfo + "\n" + strings.Join(libraries, "\n") + `
</PSSGDATABASE>
</PSSGFILE>`
}

func makeLibrary(libType, body string) string {
	return fmt.Sprintf("<LIBRARY type=%q>\n%s\n</LIBRARY>", libType, body)
}

func makeDataBlock(id string, count int, renderType, dataType, payload string) string {
	data := ""
	if payload != "" {
		data = "<DATABLOCKDATA>" + payload + "</DATABLOCKDATA>"
	}
	return fmt.Sprintf(`<DATABLOCK id=%q elementCount="%d" streamCount="1" size="0">
<DATABLOCKSTREAM renderType=%q dataType=%q offset="0" stride="0"/>
%s
</DATABLOCK>`, id, count, renderType, dataType, data)
}

func makeSource(id, primitive, format string, count int, payload string, blocks ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<RENDERDATASOURCE id=%q streamCount=\"%d\">\n", id, len(blocks))
	fmt.Fprintf(&b, "<RENDERINDEXSOURCE primitive=%q format=%q count=\"%d\">", primitive, format, count)
	if payload != "" {
		fmt.Fprintf(&b, "<INDEXSOURCEDATA>%s</INDEXSOURCEDATA>", payload)
	}
	b.WriteString("</RENDERINDEXSOURCE>\n")
	for i, blk := range blocks {
		fmt.Fprintf(&b, "<RENDERSTREAM dataBlock=\"#%s\" subStream=\"%d\"/>\n", blk, i)
	}
	b.WriteString("</RENDERDATASOURCE>")
	return b.String()
}

func makeTypeInfo(sources int) string {
	return fmt.Sprintf(`<TYPEINFO typeName="DATABLOCK" typeCount="2"/>
<TYPEINFO typeName="RENDERDATASOURCE" typeCount="%d"/>`, sources)
}

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func sampleDocument() string {
	return makeDocument(makeTypeInfo(1),
		makeLibrary(LibraryRenderInterfaceBound,
			makeDataBlock("pos", 1, "Vertex", "float3", "3F800000 40000000 40400000")+
				makeDataBlock("st", 1, "ST", "half4", "38 00 38 00 3C 00 3C 00")+
				makeDataBlock("empty", 4, "Normal", "float3", "")),
		makeLibrary(LibrarySegmentSet, `<SEGMENTSET id="seg" segmentCount="1">`+
			makeSource("rds0", "triangles", "ushort", 3, "0 0 0", "pos", "st")+
			`</SEGMENTSET>`),
		makeLibrary(LibraryNode, `<ROOTNODE id="root"><RENDERNODE id="rn">`+
			`<TRANSFORM>1 0 0 0 0 1 0 0 0 0 1 0 5 6 7 1</TRANSFORM></RENDERNODE></ROOTNODE>`),
	)
}

func TestParseDocument_Sample(t *testing.T) {
	doc, err := ParseDocument(strings.NewReader(sampleDocument()), nil)
	require.NoError(t, err)

	require.Len(t, doc.DataBlocks, 2, "payload-less block dropped")
	pos := doc.DataBlocks[0]
	assert.Equal(t, "pos", pos.ID)
	assert.Equal(t, 1, pos.ElementCount)
	assert.Equal(t, RenderTypeVertex, pos.RenderType)
	assert.Equal(t, ElementFloat3, pos.Format)
	require.NotNil(t, pos.Payload)
	assert.Equal(t, "3F800000 40000000 40400000", *pos.Payload)

	st, ok := FindBlock(doc.DataBlocks, "st")
	require.True(t, ok)
	assert.Equal(t, RenderTypeST, st.RenderType)
	assert.Equal(t, ElementHalf4, st.Format)

	require.Len(t, doc.Sources, 1)
	src := doc.Sources[0]
	assert.Equal(t, "rds0", src.ID)
	assert.Equal(t, 3, src.Index.Count)
	assert.Equal(t, DataTypeUShort, src.Index.Format)
	assert.Equal(t, PrimitiveTriangles, src.Index.Primitive)
	require.Len(t, src.Streams, 2)
	assert.Equal(t, "pos", src.Streams[0].BlockID())
	assert.Equal(t, 1, src.Streams[1].SubStream)

	assert.Equal(t, 1, doc.DeclaredSourceCount)
	require.NotNil(t, doc.Root)
	require.Len(t, doc.Root.RenderNodes, 1)
	assert.Equal(t, "1 0 0 0 0 1 0 0 0 0 1 0 5 6 7 1", doc.Root.RenderNodes[0].Transform)
}

func TestParseDocument_NoLibraries(t *testing.T) {
	doc, err := ParseDocument(strings.NewReader(makeDocument("")), nil)
	require.NoError(t, err)

	assert.Empty(t, doc.DataBlocks)
	assert.Empty(t, doc.Sources)
	assert.Nil(t, doc.Root)
	assert.Equal(t, -1, doc.DeclaredSourceCount)
}

func TestParseDocument_LibraryTypeIsCaseSensitive(t *testing.T) {
	xml := makeDocument("",
		makeLibrary("renderinterfacebound", makeDataBlock("pos", 1, "Vertex", "float3", "3F800000 40000000 40400000")),
		makeLibrary("SegmentSet", `<SEGMENTSET>`+makeSource("rds0", "triangles", "uchar", 3, "0 0 0")+`</SEGMENTSET>`),
		makeLibrary("TEXTURE", `<TEXTURE id="tex"/>`),
	)
	doc, err := ParseDocument(strings.NewReader(xml), nil)
	require.NoError(t, err)

	assert.Empty(t, doc.DataBlocks)
	assert.Empty(t, doc.Sources)
}

func TestParseDocument_SourceFiltering(t *testing.T) {
	xml := makeDocument(makeTypeInfo(4),
		makeLibrary(LibrarySegmentSet, `<SEGMENTSET id="a">`+
			makeSource("tri", "triangles", "uchar", 3, "0 1 2")+
			makeSource("strip", "triangleStrip", "uchar", 4, "0 1 2 3")+
			makeSource("nodata", "triangles", "uchar", 3, "")+
			`</SEGMENTSET><SEGMENTSET id="b">`+
			makeSource("tri2", "triangles", "ushort", 3, "00 00 00 01 00 0A")+
			`</SEGMENTSET>`),
	)

	log, logs := newObservedLogger()
	doc, err := ParseDocument(strings.NewReader(xml), log)
	require.NoError(t, err)

	require.Len(t, doc.Sources, 2)
	assert.Equal(t, "tri", doc.Sources[0].ID)
	assert.Equal(t, "tri2", doc.Sources[1].ID)

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).FilterMessage("render data source count mismatch")
	require.Equal(t, 1, warnings.Len())
	fields := warnings.All()[0].ContextMap()
	assert.Equal(t, int64(4), fields["declared"])
	assert.Equal(t, int64(2), fields["retained"])
}

func TestParseDocument_CountCrossCheckMatches(t *testing.T) {
	log, logs := newObservedLogger()
	_, err := ParseDocument(strings.NewReader(sampleDocument()), log)
	require.NoError(t, err)
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestParseDocument_EmptyPayloadIsKept(t *testing.T) {
	xml := makeDocument("",
		makeLibrary(LibraryRenderInterfaceBound,
			`<DATABLOCK id="zero" elementCount="0"><DATABLOCKSTREAM renderType="Vertex" dataType="float3"/><DATABLOCKDATA></DATABLOCKDATA></DATABLOCK>`),
	)
	doc, err := ParseDocument(strings.NewReader(xml), nil)
	require.NoError(t, err)

	require.Len(t, doc.DataBlocks, 1)
	require.NotNil(t, doc.DataBlocks[0].Payload, "present-but-empty payload is kept")
	assert.Empty(t, *doc.DataBlocks[0].Payload)
}

func TestParseDocument_RootNodes(t *testing.T) {
	t.Run("multiple render nodes are kept", func(t *testing.T) {
		xml := makeDocument("", makeLibrary(LibraryNode,
			`<ROOTNODE id="root"><RENDERNODE id="a"><TRANSFORM>1</TRANSFORM></RENDERNODE><RENDERNODE id="b"/></ROOTNODE>`))
		doc, err := ParseDocument(strings.NewReader(xml), nil)
		require.NoError(t, err)

		require.NotNil(t, doc.Root)
		require.Len(t, doc.Root.RenderNodes, 2)
		assert.Empty(t, doc.Root.RenderNodes[1].Transform)
	})

	t.Run("additional root nodes are ignored", func(t *testing.T) {
		xml := makeDocument("", makeLibrary(LibraryNode,
			`<ROOTNODE id="first"/><ROOTNODE id="second"/>`))
		log, logs := newObservedLogger()
		doc, err := ParseDocument(strings.NewReader(xml), log)
		require.NoError(t, err)

		require.NotNil(t, doc.Root)
		assert.Equal(t, "first", doc.Root.ID)
		assert.Equal(t, 1, logs.FilterMessage("ignoring additional root node").Len())
	})
}

func TestParseDocument_Errors(t *testing.T) {
	tests := []struct {
		name    string
		xml     string
		wantErr error
	}{
		{
			name:    "malformed xml",
			xml:     "<PSSGFILE><PSSGDATABASE>",
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "wrong root element",
			xml:     "<COLLADA/>",
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "missing database",
			xml:     "<PSSGFILE/>",
			wantErr: ErrMissingField,
		},
		{
			name:    "non-numeric element count",
			xml:     makeDocument("", makeLibrary(LibraryRenderInterfaceBound, `<DATABLOCK id="a" elementCount="many"/>`)),
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "data block without id",
			xml:     makeDocument("", makeLibrary(LibraryRenderInterfaceBound, `<DATABLOCK elementCount="1"><DATABLOCKSTREAM renderType="Vertex" dataType="float3"/></DATABLOCK>`)),
			wantErr: ErrMissingField,
		},
		{
			name:    "data block without stream",
			xml:     makeDocument("", makeLibrary(LibraryRenderInterfaceBound, `<DATABLOCK id="a" elementCount="1"><DATABLOCKDATA>00</DATABLOCKDATA></DATABLOCK>`)),
			wantErr: ErrMissingField,
		},
		{
			name:    "source without index source",
			xml:     makeDocument("", makeLibrary(LibrarySegmentSet, `<SEGMENTSET><RENDERDATASOURCE id="x"/></SEGMENTSET>`)),
			wantErr: ErrMissingField,
		},
		{
			name: "stream without data block reference",
			xml: makeDocument("", makeLibrary(LibrarySegmentSet, `<SEGMENTSET><RENDERDATASOURCE id="x">`+
				`<RENDERINDEXSOURCE primitive="triangles" format="uchar" count="3"><INDEXSOURCEDATA>0 1 2</INDEXSOURCEDATA></RENDERINDEXSOURCE>`+
				`<RENDERSTREAM/></RENDERDATASOURCE></SEGMENTSET>`)),
			wantErr: ErrMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument(strings.NewReader(tt.xml), nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseDocument_Latin1(t *testing.T) {
	xml := strings.Replace(sampleDocument(), `encoding="utf-8"`, `encoding="ISO-8859-1"`, 1)
	xml = strings.Replace(xml, `creator="test"`, "creator=\"caf\xe9\"", 1)

	doc, err := ParseDocument(strings.NewReader(xml), nil)
	require.NoError(t, err)
	assert.Len(t, doc.Sources, 1)
}

func TestLoadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDocument()), 0644))

	doc, err := LoadDocument(path, nil)
	require.NoError(t, err)
	assert.Len(t, doc.DataBlocks, 2)

	_, err = LoadDocument(filepath.Join(t.TempDir(), "missing.xml"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRenderStream_BlockID(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"#block1", "block1"},
		{"block1", "block1"},
		{"##x", "#x"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RenderStream{DataBlock: tt.ref}.BlockID(), "BlockID(%q)", tt.ref)
	}
}

func TestFindBlock(t *testing.T) {
	a, b := "a", "b"
	blocks := []DataBlock{{ID: "dup", Payload: &a}, {ID: "dup", Payload: &b}}

	got, ok := FindBlock(blocks, "dup")
	require.True(t, ok)
	assert.Equal(t, "a", *got.Payload, "first match wins")

	_, ok = FindBlock(blocks, "missing")
	assert.False(t, ok)
}

func TestEnumParsing(t *testing.T) {
	assert.Equal(t, RenderTypeSkinnableVertex, ParseRenderType("SkinnableVertex"))
	assert.True(t, RenderTypeSkinnableVertex.IsPosition())
	assert.Equal(t, RenderTypeOther, ParseRenderType("Normal"))
	assert.Equal(t, "Other", RenderTypeOther.String())
	assert.Equal(t, ElementHalf2, ParseElementFormat("half2"))
	assert.Equal(t, ElementOther, ParseElementFormat("float4"))
	assert.Equal(t, PrimitiveTriangles, ParsePrimitive("triangles"))
	assert.Equal(t, PrimitiveOther, ParsePrimitive("Triangles"), "primitive tags are case-sensitive")
}
