package calib

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOverlay() *AlignmentRenderer {
	target := []r3.Vector{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 5}, {X: 0, Y: 5}}
	aligned := []r3.Vector{{X: 0.1, Y: 0}, {X: 10, Y: 0.1}, {X: 10, Y: 5}, {X: 3, Y: 2}}
	return NewAlignmentRenderer(target, aligned, []int{0, 1, 2})
}

func TestAlignmentRenderer_SVG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleOverlay().RenderToSVG(&buf))

	out := buf.String()
	assert.True(t, strings.Contains(out, "<svg"), "output should be an svg document")
	assert.True(t, strings.Contains(out, "</svg>"))
}

func TestAlignmentRenderer_PNG(t *testing.T) {
	r := sampleOverlay()
	r.Caption = "bench: 3/4 inliers"

	var buf bytes.Buffer
	require.NoError(t, r.RenderToPNG(&buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	b := img.Bounds()
	assert.Greater(t, b.Dx(), b.Dy(), "wide point set gives a wide image")
}

func TestAlignmentRenderer_Layout(t *testing.T) {
	r := sampleOverlay()
	l, err := r.layout()
	require.NoError(t, err)

	// longer side (x extent 10) maps to Size
	assert.InDelta(t, r.Size+2*r.Padding, l.width, 1e-9)
	assert.InDelta(t, r.Size/2+2*r.Padding, l.height, 1e-9)

	x, y := l.toCanvas(r3.Vector{X: 10, Y: 5})
	assert.InDelta(t, r.Size+r.Padding, x, 1e-9)
	assert.InDelta(t, r.Size/2+r.Padding, y, 1e-9)
}

func TestAlignmentRenderer_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, NewAlignmentRenderer(nil, nil, nil).RenderToSVG(&buf))

	mismatched := NewAlignmentRenderer([]r3.Vector{{X: 1}}, nil, nil)
	assert.Error(t, mismatched.RenderToPNG(&buf))

	assert.Error(t, sampleOverlay().RenderToFile(filepath.Join(t.TempDir(), "x.gif"), "gif"))
}

func TestAlignmentRenderer_RenderToFile(t *testing.T) {
	dir := t.TempDir()
	r := sampleOverlay()
	r.ApplyConfig(RenderConfig{Padding: 4, PointRadius: 2, DPI: 72})
	assert.Equal(t, 4.0, r.Padding)
	assert.Equal(t, 2.0, r.PointRadius)

	for _, format := range []string{"svg", "png"} {
		path := filepath.Join(dir, "out", "overlay."+format)
		require.NoError(t, r.RenderToFile(path, format))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}
