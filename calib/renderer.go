package calib

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	targetColor  = color.RGBA{40, 40, 40, 255}
	inlierColor  = color.RGBA{30, 144, 255, 255}
	outlierColor = color.RGBA{220, 50, 47, 255}
	linkColor    = color.RGBA{160, 160, 160, 255}
)

// AlignmentRenderer draws a top-down (XY) overlay of the target points and
// the source points mapped through the estimated transform. Each pair is
// joined by its residual segment; aligned points are colored by inlier state.
type AlignmentRenderer struct {
	Target      []r3.Vector
	Aligned     []r3.Vector
	Inliers     []int
	Caption     string
	Size        float64 // Length of the longer side in millimeters
	Padding     float64 // Millimeters
	PointRadius float64 // Millimeters
	Resolution  canvas.Resolution
}

// NewAlignmentRenderer creates a renderer with default layout settings
func NewAlignmentRenderer(target, aligned []r3.Vector, inliers []int) *AlignmentRenderer {
	return &AlignmentRenderer{
		Target:      target,
		Aligned:     aligned,
		Inliers:     inliers,
		Size:        200,
		Padding:     10,
		PointRadius: 1.5,
		Resolution:  canvas.DPI(300),
	}
}

// ApplyConfig overrides layout settings that are set in cfg
func (r *AlignmentRenderer) ApplyConfig(cfg RenderConfig) {
	if cfg.Padding > 0 {
		r.Padding = cfg.Padding
	}
	if cfg.PointRadius > 0 {
		r.PointRadius = cfg.PointRadius
	}
	if cfg.DPI > 0 {
		r.Resolution = canvas.DPI(cfg.DPI)
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// layout maps world XY onto canvas millimeters
type layout struct {
	bound  orb.Bound
	scale  float64
	pad    float64
	width  float64
	height float64
}

func (l layout) toCanvas(v r3.Vector) (float64, float64) {
	return (v.X-l.bound.Min[0])*l.scale + l.pad, (v.Y-l.bound.Min[1])*l.scale + l.pad
}

func (r *AlignmentRenderer) layout() (layout, error) {
	if len(r.Target) == 0 {
		return layout{}, fmt.Errorf("nothing to render")
	}
	if len(r.Target) != len(r.Aligned) {
		return layout{}, fmt.Errorf("target and aligned sets differ in length: %d vs %d", len(r.Target), len(r.Aligned))
	}

	mp := make(orb.MultiPoint, 0, 2*len(r.Target))
	for i := range r.Target {
		mp = append(mp, orb.Point{r.Target[i].X, r.Target[i].Y}, orb.Point{r.Aligned[i].X, r.Aligned[i].Y})
	}
	bound := mp.Bound()

	extent := bound.Right() - bound.Left()
	if h := bound.Top() - bound.Bottom(); h > extent {
		extent = h
	}
	scale := 1.0
	if extent > 0 {
		scale = r.Size / extent
	}

	l := layout{bound: bound, scale: scale, pad: r.Padding}
	l.width = (bound.Right()-bound.Left())*scale + 2*r.Padding
	l.height = (bound.Top()-bound.Bottom())*scale + 2*r.Padding
	if l.width <= 0 || l.height <= 0 {
		return layout{}, fmt.Errorf("empty drawing area")
	}
	return l, nil
}

// RenderToSVG writes the overlay as SVG
func (r *AlignmentRenderer) RenderToSVG(w io.Writer) error {
	l, err := r.layout()
	if err != nil {
		return err
	}

	svgRenderer := svg.New(w, l.width, l.height, nil)
	r.renderToCanvas(svgRenderer, l)
	return svgRenderer.Close()
}

// RenderToPNG writes the overlay as PNG with the caption in the top-left corner
func (r *AlignmentRenderer) RenderToPNG(w io.Writer) error {
	l, err := r.layout()
	if err != nil {
		return err
	}

	rast := rasterizer.New(l.width, l.height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, l)
	if r.Caption == "" {
		return png.Encode(w, rast)
	}

	img := image.NewRGBA(rast.Bounds())
	draw.Draw(img, img.Bounds(), rast, rast.Bounds().Min, draw.Src)
	drawCaption(img, 4, 14, r.Caption, targetColor)
	return png.Encode(w, img)
}

// RenderToFile writes the overlay to path in the given format (svg or png)
func (r *AlignmentRenderer) RenderToFile(path, format string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	switch format {
	case "png":
		err = r.RenderToPNG(f)
	case "svg", "":
		err = r.RenderToSVG(f)
	default:
		err = fmt.Errorf("unsupported render format %q", format)
	}
	if err != nil {
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	return nil
}

func (r *AlignmentRenderer) renderToCanvas(renderer canvasRenderer, l layout) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(l.width, l.height), bgStyle, canvas.Identity)

	inlier := make(map[int]bool, len(r.Inliers))
	for _, i := range r.Inliers {
		inlier[i] = true
	}

	linkStyle := canvas.DefaultStyle
	linkStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	linkStyle.Stroke = canvas.Paint{Color: linkColor}
	linkStyle.StrokeWidth = r.PointRadius / 3

	for i := range r.Target {
		x1, y1 := l.toCanvas(r.Target[i])
		x2, y2 := l.toCanvas(r.Aligned[i])
		link := &canvas.Path{}
		link.MoveTo(x1, y1)
		link.LineTo(x2, y2)
		renderer.RenderPath(link, linkStyle, canvas.Identity)
	}

	targetStyle := canvas.DefaultStyle
	targetStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	targetStyle.Stroke = canvas.Paint{Color: targetColor}
	targetStyle.StrokeWidth = r.PointRadius / 3

	for _, v := range r.Target {
		x, y := l.toCanvas(v)
		renderer.RenderPath(canvas.Circle(r.PointRadius).Translate(x, y), targetStyle, canvas.Identity)
	}

	for i, v := range r.Aligned {
		pointStyle := canvas.DefaultStyle
		pointStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
		if len(r.Inliers) == 0 || inlier[i] {
			pointStyle.Fill = canvas.Paint{Color: inlierColor}
		} else {
			pointStyle.Fill = canvas.Paint{Color: outlierColor}
		}
		x, y := l.toCanvas(v)
		renderer.RenderPath(canvas.Circle(r.PointRadius*0.6).Translate(x, y), pointStyle, canvas.Identity)
	}
}

// drawCaption renders text onto the raster in pixel coordinates
func drawCaption(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
