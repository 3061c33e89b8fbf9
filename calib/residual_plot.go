package calib

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ResidualPlot charts the per-item residuals of a result against the
// inlier threshold. The image format follows the file extension.
type ResidualPlot struct {
	Title     string
	Residuals []float64
	Inliers   []int
	Threshold float64 // 0 omits the threshold line
}

// Save writes the plot to path (png, svg, pdf or eps)
func (rp *ResidualPlot) Save(path string) error {
	if len(rp.Residuals) == 0 {
		return fmt.Errorf("no residuals to plot")
	}

	p := plot.New()
	p.Title.Text = rp.Title
	p.X.Label.Text = "Item"
	p.Y.Label.Text = "Residual"

	inlier := make(map[int]bool, len(rp.Inliers))
	for _, i := range rp.Inliers {
		inlier[i] = true
	}

	inPts := make(plotter.XYs, 0, len(rp.Residuals))
	outPts := make(plotter.XYs, 0, len(rp.Residuals))
	for i, r := range rp.Residuals {
		pt := plotter.XY{X: float64(i), Y: r}
		if len(rp.Inliers) == 0 || inlier[i] {
			inPts = append(inPts, pt)
		} else {
			outPts = append(outPts, pt)
		}
	}

	if len(inPts) > 0 {
		s, err := plotter.NewScatter(inPts)
		if err != nil {
			return err
		}
		s.Color = inlierColor
		s.Radius = vg.Points(2)
		p.Add(s)
		p.Legend.Add("inlier", s)
	}
	if len(outPts) > 0 {
		s, err := plotter.NewScatter(outPts)
		if err != nil {
			return err
		}
		s.Color = outlierColor
		s.Radius = vg.Points(2)
		p.Add(s)
		p.Legend.Add("outlier", s)
	}

	if rp.Threshold > 0 {
		line, err := plotter.NewLine(plotter.XYs{
			{X: 0, Y: rp.Threshold},
			{X: float64(len(rp.Residuals) - 1), Y: rp.Threshold},
		})
		if err != nil {
			return err
		}
		line.Color = color.RGBA{A: 255}
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add("threshold", line)
	}

	p.Legend.Top = true
	p.Legend.Left = false

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving residual plot: %w", err)
	}
	return nil
}
