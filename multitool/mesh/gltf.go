package mesh

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// gltfDoc mirrors the subset of the glTF 2.0 JSON schema the converter
// needs: buffers/bufferViews/accessors for raw data, meshes/primitives for
// geometry, materials for the flat base color. Skinning, animation, and
// binary (.glb) containers are not represented; only the core .gltf + .bin
// (or embedded data-URI) layout is read.
type gltfDoc struct {
	Buffers     []gltfBuffer     `json:"buffers"`
	BufferViews []gltfBufferView `json:"bufferViews"`
	Accessors   []gltfAccessor   `json:"accessors"`
	Meshes      []gltfMesh       `json:"meshes"`
	Materials   []gltfMaterial   `json:"materials"`
}

type gltfBuffer struct {
	URI        string `json:"uri"`
	ByteLength int    `json:"byteLength"`
}

type gltfBufferView struct {
	Buffer     int `json:"buffer"`
	ByteOffset int `json:"byteOffset"`
	ByteLength int `json:"byteLength"`
	ByteStride int `json:"byteStride"`
}

type gltfAccessor struct {
	BufferView    int    `json:"bufferView"`
	ByteOffset    int    `json:"byteOffset"`
	ComponentType int    `json:"componentType"`
	Count         int    `json:"count"`
	Type          string `json:"type"`
}

type gltfMesh struct {
	Name       string           `json:"name"`
	Primitives []gltfPrimitive  `json:"primitives"`
}

type gltfPrimitive struct {
	Attributes map[string]int `json:"attributes"`
	Indices    *int           `json:"indices"`
	Material   *int           `json:"material"`
	Mode       *int           `json:"mode"`
}

type gltfMaterial struct {
	PBRMetallicRoughness struct {
		BaseColorFactor *[4]float32 `json:"baseColorFactor"`
	} `json:"pbrMetallicRoughness"`
	EmissiveFactor *[3]float32 `json:"emissiveFactor"`
}

// glTF component type and mode constants used by the converter.
const (
	compUnsignedByte  = 5121
	compUnsignedShort = 5123
	compUnsignedInt   = 5125
	compFloat         = 5126

	modeTriangles     = 4
	modeTriangleStrip = 5
)

// loadGLTF parses a .gltf document and resolves its buffers relative to
// dir, the directory the document itself lives in (matching how external
// .bin URIs are resolved against the document's own path).
func loadGLTF(path string) (*gltfDoc, [][]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var doc gltfDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("mesh: parsing glTF document: %w", err)
	}

	dir := filepath.Dir(path)
	bufs := make([][]byte, len(doc.Buffers))
	for i, b := range doc.Buffers {
		data, err := resolveBuffer(dir, b.URI)
		if err != nil {
			return nil, nil, fmt.Errorf("mesh: buffer %d: %w", i, err)
		}
		bufs[i] = data
	}

	return &doc, bufs, nil
}

const dataURIPrefix = "data:application/octet-stream;base64,"
const dataURIPrefixGLTF = "data:application/gltf-buffer;base64,"

func resolveBuffer(dir, uri string) ([]byte, error) {
	switch {
	case strings.HasPrefix(uri, dataURIPrefix):
		return base64.StdEncoding.DecodeString(uri[len(dataURIPrefix):])
	case strings.HasPrefix(uri, dataURIPrefixGLTF):
		return base64.StdEncoding.DecodeString(uri[len(dataURIPrefixGLTF):])
	case strings.Contains(uri, ";base64,"):
		idx := strings.Index(uri, ";base64,")
		return base64.StdEncoding.DecodeString(uri[idx+len(";base64,"):])
	default:
		return os.ReadFile(filepath.Join(dir, uri))
	}
}

// readFloatVec3 materializes an accessor of type VEC3/FLOAT as a slice of
// 3-float positions.
func (d *gltfDoc) readFloatVec3(accessorIdx int, bufs [][]byte) ([][3]float32, error) {
	acc := d.Accessors[accessorIdx]
	if acc.ComponentType != compFloat || acc.Type != "VEC3" {
		return nil, fmt.Errorf("mesh: accessor %d is not a float VEC3", accessorIdx)
	}
	view := d.BufferViews[acc.BufferView]
	data := bufs[view.Buffer]
	stride := view.ByteStride
	if stride == 0 {
		stride = 12
	}
	base := view.ByteOffset + acc.ByteOffset

	out := make([][3]float32, acc.Count)
	for i := 0; i < acc.Count; i++ {
		off := base + i*stride
		for c := 0; c < 3; c++ {
			bits := binary.LittleEndian.Uint32(data[off+c*4:])
			out[i][c] = math.Float32frombits(bits)
		}
	}
	return out, nil
}

// readColorsRGB8 materializes a COLOR_0 accessor (VEC3 or VEC4, float or
// normalized ubyte/ushort) as 8-bit-per-channel RGB triples.
func (d *gltfDoc) readColorsRGB8(accessorIdx int, bufs [][]byte) ([][3]byte, error) {
	acc := d.Accessors[accessorIdx]
	view := d.BufferViews[acc.BufferView]
	data := bufs[view.Buffer]

	nComp := 3
	if acc.Type == "VEC4" {
		nComp = 4
	}

	var elemSize int
	switch acc.ComponentType {
	case compFloat:
		elemSize = 4
	case compUnsignedByte:
		elemSize = 1
	case compUnsignedShort:
		elemSize = 2
	default:
		return nil, fmt.Errorf("mesh: unsupported COLOR_0 component type %d", acc.ComponentType)
	}

	stride := view.ByteStride
	if stride == 0 {
		stride = nComp * elemSize
	}
	base := view.ByteOffset + acc.ByteOffset

	out := make([][3]byte, acc.Count)
	for i := 0; i < acc.Count; i++ {
		off := base + i*stride
		for c := 0; c < 3; c++ {
			var v float32
			switch acc.ComponentType {
			case compFloat:
				v = math.Float32frombits(binary.LittleEndian.Uint32(data[off+c*4:]))
			case compUnsignedByte:
				v = float32(data[off+c]) / 255.0
			case compUnsignedShort:
				v = float32(binary.LittleEndian.Uint16(data[off+c*2:])) / 65535.0
			}
			out[i][c] = clampColorByte(v * 255.0)
		}
	}
	return out, nil
}

func clampColorByte(v float32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// readIndices materializes an index accessor (any of the three unsigned
// integer component types glTF allows) as uint32 values.
func (d *gltfDoc) readIndices(accessorIdx int, bufs [][]byte) ([]uint32, error) {
	acc := d.Accessors[accessorIdx]
	view := d.BufferViews[acc.BufferView]
	data := bufs[view.Buffer]
	base := view.ByteOffset + acc.ByteOffset

	out := make([]uint32, acc.Count)
	switch acc.ComponentType {
	case compUnsignedByte:
		for i := 0; i < acc.Count; i++ {
			out[i] = uint32(data[base+i])
		}
	case compUnsignedShort:
		for i := 0; i < acc.Count; i++ {
			out[i] = uint32(binary.LittleEndian.Uint16(data[base+i*2:]))
		}
	case compUnsignedInt:
		for i := 0; i < acc.Count; i++ {
			out[i] = binary.LittleEndian.Uint32(data[base+i*4:])
		}
	default:
		return nil, fmt.Errorf("mesh: unsupported index component type %d", acc.ComponentType)
	}
	return out, nil
}
