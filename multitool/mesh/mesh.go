// Package mesh converts a glTF triangle mesh into an NR3D command stream:
// the literal sequence of GPU FIFO words a guest would DMA into the GPU to
// draw the model, including the scale/translate matrix setup. Grounded on
// the reference multitool/src/model.rs, with the wire format cross-checked
// against emu/gpu's command decoder (cmdMatrixLo/cmdTriLo and the
// vertex/color word layout) so the two stay bit-for-bit compatible.
package mesh

import (
	"fmt"
	"math"
)

// Options configures how a Model is loaded from a glTF document.
type Options struct {
	Mesh      int      // which mesh index to export
	Scale     *float32 // nil picks the largest scale that avoids clipping
	Recenter  bool     // subtract the bounding-box center before scaling
}

// DefaultOptions mirrors the reference tool's defaults (mesh 0, auto
// scale, recenter on).
func DefaultOptions() Options {
	return Options{Mesh: 0, Recenter: true}
}

// vertex is one loaded mesh vertex, prior to scaling/recentering.
type vertex struct {
	pos [3]float32
	col [3]byte
}

// Model is a loaded, triangle-strip-indexed mesh ready to be dumped as an
// NR3D command stream.
type Model struct {
	scale   float32
	origin  [3]float32
	verts   []vertex
	indices []int32 // -1 marks a strip restart, matching the reference encoding
}

// restart marks a triangle-strip break in Model.indices.
const restart = -1

// intCoordsMax/Min are the signed 16-bit range NR3D coordinates are
// quantized into.
const intCoordsMax = math.MaxInt16
const intCoordsMin = math.MinInt16

// Load reads a glTF document and converts the mesh named by opts.Mesh into
// a Model.
func Load(path string, opts Options) (*Model, error) {
	doc, bufs, err := loadGLTF(path)
	if err != nil {
		return nil, err
	}
	if opts.Mesh < 0 || opts.Mesh >= len(doc.Meshes) {
		return nil, fmt.Errorf("mesh: mesh %d not found (document has %d)", opts.Mesh, len(doc.Meshes))
	}
	return fromGLTFMesh(doc, bufs, doc.Meshes[opts.Mesh], opts)
}

func fromGLTFMesh(doc *gltfDoc, bufs [][]byte, gm gltfMesh, opts Options) (*Model, error) {
	bbMin := [3]float32{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	bbMax := [3]float32{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}

	var verts []vertex
	var indices []int32

	for _, prim := range gm.Primitives {
		mode := modeTriangles
		if prim.Mode != nil {
			mode = *prim.Mode
		}
		if mode != modeTriangles && mode != modeTriangleStrip {
			continue // unsupported primitive topology, silently skipped like the reference
		}

		posIdx, ok := prim.Attributes["POSITION"]
		if !ok {
			continue
		}
		positions, err := doc.readFloatVec3(posIdx, bufs)
		if err != nil {
			return nil, err
		}

		defaultColor := materialColor(doc, prim.Material)

		indexOffset := int32(len(verts))
		for _, p := range positions {
			for c := 0; c < 3; c++ {
				if p[c] < bbMin[c] {
					bbMin[c] = p[c]
				}
				if p[c] > bbMax[c] {
					bbMax[c] = p[c]
				}
			}
			verts = append(verts, vertex{pos: p, col: defaultColor})
		}

		if colIdx, ok := prim.Attributes["COLOR_0"]; ok {
			colors, err := doc.readColorsRGB8(colIdx, bufs)
			if err != nil {
				return nil, err
			}
			for i, c := range colors {
				if int(indexOffset)+i < len(verts) {
					verts[indexOffset+int32(i)].col = c
				}
			}
		}

		if prim.Indices == nil {
			continue
		}
		raw, err := doc.readIndices(*prim.Indices, bufs)
		if err != nil {
			return nil, err
		}
		isStrip := mode == modeTriangleStrip
		for i, idx := range raw {
			indices = append(indices, indexOffset+int32(idx))
			if !isStrip && i%3 == 2 {
				indices = append(indices, restart)
			}
		}
	}

	for c := 0; c < 3; c++ {
		if !isFinite(bbMin[c]) || !isFinite(bbMax[c]) {
			return nil, fmt.Errorf("mesh: non-finite bounding box, mesh has no geometry?")
		}
	}

	origin := [3]float32{}
	if opts.Recenter {
		for c := 0; c < 3; c++ {
			origin[c] = toFp32Compatible(bbMin[c] + (bbMax[c]-bbMin[c])/2)
		}
	}

	coordsMax := float32(0)
	for c := 0; c < 3; c++ {
		for _, v := range []float32{bbMax[c] - origin[c], bbMin[c] - origin[c]} {
			if a := abs32(v); a > coordsMax {
				coordsMax = a
			}
		}
	}

	scaleMax := float32(intCoordsMax) / coordsMax

	var scale float32
	if opts.Scale != nil {
		scale = *opts.Scale
	} else {
		iscale := toFp32Compatible(1/scaleMax + 0.5/65536)
		scale = 1 / iscale
	}

	return &Model{scale: scale, origin: origin, verts: verts, indices: indices}, nil
}

func materialColor(doc *gltfDoc, matIdx *int) [3]byte {
	if matIdx == nil || *matIdx < 0 || *matIdx >= len(doc.Materials) {
		return [3]byte{255, 255, 255}
	}
	mat := doc.Materials[*matIdx]
	if mat.PBRMetallicRoughness.BaseColorFactor == nil {
		return [3]byte{255, 255, 255}
	}
	bc := *mat.PBRMetallicRoughness.BaseColorFactor
	return [3]byte{
		clampColorByte(bc[0] * 255),
		clampColorByte(bc[1] * 255),
		clampColorByte(bc[2] * 255),
	}
}

func isFinite(f float32) bool {
	return !math.IsInf(float64(f), 0) && !math.IsNaN(float64(f))
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

// toFp32Compatible rounds v to the nearest value exactly representable in
// signed 16.16 fixed point, matching the reference converter's rounding so
// re-deriving the scale from the dumped matrix reproduces the same value.
func toFp32Compatible(v float32) float32 {
	fp := float32(math.Round(float64(v) * 65536))
	if fp > math.MaxInt32 {
		fp = math.MaxInt32
	}
	if fp < math.MinInt32 {
		fp = math.MinInt32
	}
	return fp / 65536
}

// TriangleCount returns how many complete triangles the index strip
// encodes, the same series-counting rule the reference tool uses to report
// progress.
func (m *Model) TriangleCount() int {
	count := 0
	series := 0
	for _, idx := range m.indices {
		if idx == restart {
			series = 0
			continue
		}
		series++
		if series >= 3 {
			count++
		}
	}
	return count
}
