package main

import (
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/geo/r3"
	"github.com/kwv/posecal/calib"
	"github.com/kwv/posecal/pose"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// App encapsulates the application state and dependencies
type App struct {
	Config      *calib.Config
	Calibration *calib.CalibrationData
	MQTTClient  mqtt.Client
	Publisher   *calib.Publisher
	Out         io.Writer

	// connectMQTT opens the client used when MQTTClient is not set
	connectMQTT func(config *calib.MQTTConfig, timeout time.Duration) (mqtt.Client, error)

	// CLI Flags (effectively dependencies)
	ConfigFile       string
	DataFile         string
	Name             string
	CalibrationCache string
	RenderOutput     string
	PlotOutput       string
	MqttMode         bool
	MaxAge           time.Duration
}

// NewApp creates a new App instance writing its report to stdout
func NewApp() *App {
	return &App{Out: os.Stdout, connectMQTT: calib.ConnectMQTT}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.DataFile = opts.DataFile
	a.Name = opts.Name
	a.CalibrationCache = opts.CalibrationCache
	a.RenderOutput = opts.RenderOutput
	a.PlotOutput = opts.PlotOutput
	a.MqttMode = opts.MqttMode
	a.MaxAge = opts.MaxAge
}

// RunRigid fits a least-squares pose to every pair and reports the scale ratio
func (a *App) RunRigid() error {
	ds, err := a.prepare()
	if err != nil {
		return err
	}
	pa, pb := ds.Points()

	p, err := pose.EstimateRigidTransform(pa, pb)
	if err != nil {
		return fmt.Errorf("estimating rigid transform: %w", err)
	}

	res := calib.Result{Name: a.resultName(ds), Mode: "rigid", Pose: &p, Total: len(pa)}
	if s, err := pose.EstimateScale(pa, pb); err == nil {
		res.Scale = s
	} else {
		log.Printf("Scale not estimated: %v", err)
	}
	if res.Residual, err = pose.RMSError(pa, pb, p); err != nil {
		return err
	}
	return a.finish(res, pa, pose.TransformPoints(p, pb))
}

// RunRobust fits a pose with RANSAC and optionally refines it on the inliers
func (a *App) RunRobust() error {
	ds, err := a.prepare()
	if err != nil {
		return err
	}
	pa, pb := ds.Points()

	params, err := a.Config.RANSAC.Params(pose.MinCorrespondences, len(pa))
	if err != nil {
		return err
	}
	result, err := pose.RobustEstimateRigidTransform(pa, pb, params)
	if err != nil {
		return fmt.Errorf("robust estimation: %w", err)
	}
	if result.InlierCount == 0 {
		return fmt.Errorf("no consensus among %d pairs after %d iterations", len(pa), result.Iterations)
	}
	log.Printf("RANSAC: %d/%d inliers after %d iterations", result.InlierCount, len(pa), result.Iterations)

	p := result.Model
	ia, ib := subset(pa, result.Inliers), subset(pb, result.Inliers)
	if a.Config.Refine.Enabled && len(ia) >= pose.MinCorrespondences {
		refined, _, err := pose.RefinePoseWithConfig(p, ia, ib, a.Config.Refine.LMConfig())
		if err != nil {
			log.Printf("Refinement skipped: %v", err)
		} else {
			p = refined
		}
	}

	res := calib.Result{Name: a.resultName(ds), Mode: "robust", Pose: &p, Inliers: result.Inliers, Total: len(pa)}
	if res.Residual, err = pose.RMSError(ia, ib, p); err != nil {
		return err
	}
	return a.finish(res, pa, pose.TransformPoints(p, pb))
}

// RunRefine starts from the least-squares pose, refines it with
// Levenberg-Marquardt and reports the pose covariance
func (a *App) RunRefine() error {
	ds, err := a.prepare()
	if err != nil {
		return err
	}
	pa, pb := ds.Points()

	initial, err := pose.EstimateRigidTransform(pa, pb)
	if err != nil {
		return fmt.Errorf("estimating initial pose: %w", err)
	}
	before, _ := pose.RMSError(pa, pb, initial)

	p, _, err := pose.RefinePoseWithConfig(initial, pa, pb, a.Config.Refine.LMConfig())
	if err != nil {
		return fmt.Errorf("refining pose: %w", err)
	}

	res := calib.Result{Name: a.resultName(ds), Mode: "refine", Pose: &p, Total: len(pa)}
	if res.Residual, err = pose.RMSError(pa, pb, p); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "RMS error: %.6g -> %.6g\n", before, res.Residual)

	if cov, err := pose.PoseCovariance(pa, pb, p); err == nil {
		labels := []string{"tx", "ty", "tz", "rx", "ry", "rz"}
		parts := make([]string, len(labels))
		for i, l := range labels {
			parts[i] = fmt.Sprintf("%s=%.3g", l, math.Sqrt(math.Max(cov.At(i, i), 0)))
		}
		fmt.Fprintf(a.Out, "Std dev: %s\n", strings.Join(parts, " "))
	} else {
		log.Printf("Covariance not available: %v", err)
	}
	return a.finish(res, pa, pose.TransformPoints(p, pb))
}

// RunToolTip calibrates a pivoting tool from tracker poses
func (a *App) RunToolTip() error {
	ds, err := a.prepare()
	if err != nil {
		return err
	}
	poses := ds.TrackerPoses()
	if len(poses) == 0 {
		return fmt.Errorf("dataset has no poses for tool-tip calibration")
	}

	params, err := a.Config.RANSAC.Params(pose.MinToolTipPoses, len(poses))
	if err != nil {
		return err
	}
	result, err := pose.RobustEstimateToolTip(poses, params)
	if err != nil {
		return fmt.Errorf("robust tool-tip estimation: %w", err)
	}
	if result.InlierCount == 0 {
		return fmt.Errorf("no consensus among %d poses after %d iterations", len(poses), result.Iterations)
	}
	log.Printf("RANSAC: %d/%d inliers after %d iterations", result.InlierCount, len(poses), result.Iterations)

	tip := result.Model
	inliers := subset(poses, result.Inliers)
	if a.Config.Refine.Enabled && len(inliers) >= pose.MinToolTipPoses {
		refined, _, err := pose.RefineToolTip(inliers, tip, a.Config.Refine.Termination())
		if err != nil {
			log.Printf("Refinement skipped: %v", err)
		} else {
			tip = refined
		}
	}

	res := calib.Result{Name: a.resultName(ds), Mode: "tooltip", Tip: &tip, Inliers: result.Inliers, Total: len(poses)}
	if len(inliers) >= 2 {
		if res.Residual, res.StdDev, err = pose.ToolTipError(tip, inliers); err != nil {
			return err
		}
	}

	target := make([]r3.Vector, len(poses))
	aligned := make([]r3.Vector, len(poses))
	for i, p := range poses {
		target[i] = tip.World
		aligned[i] = p.Apply(tip.Offset)
	}
	return a.finish(res, target, aligned)
}

// RunPlanar fits a 2D rigid transform to the XY projection of the pairs
func (a *App) RunPlanar() error {
	ds, err := a.prepare()
	if err != nil {
		return err
	}
	pa, pb := ds.PlanarPoints()

	params, err := a.Config.RANSAC.Params(2, len(pa))
	if err != nil {
		return err
	}
	result, err := pose.RobustEstimatePlanarTransform(pa, pb, params)
	if err != nil {
		return fmt.Errorf("planar estimation: %w", err)
	}
	if result.InlierCount == 0 {
		return fmt.Errorf("no consensus among %d pairs after %d iterations", len(pa), result.Iterations)
	}

	tr := result.Model
	var sum float64
	for _, i := range result.Inliers {
		sum += planar.Distance(pa[i], tr.Apply(pb[i]))
	}

	p := tr.Pose()
	res := calib.Result{
		Name:     a.resultName(ds),
		Mode:     "planar",
		Pose:     &p,
		Planar:   &tr,
		Inliers:  result.Inliers,
		Total:    len(pa),
		Residual: sum / float64(result.InlierCount),
	}
	return a.finish(res, lift(pa), lift(transformPlanar(tr, pb)))
}

// RunStatus lists cached results and flags stale ones
func (a *App) RunStatus() error {
	cal, err := calib.LoadCalibration(a.CalibrationCache)
	if err != nil {
		return err
	}
	if cal == nil || len(cal.Results) == 0 {
		fmt.Fprintf(a.Out, "No cached results in %s\n", a.CalibrationCache)
		return nil
	}
	a.Calibration = cal

	fmt.Fprintf(a.Out, "Cached results (%s):\n", a.CalibrationCache)
	for _, name := range cal.Names() {
		r, _ := cal.Get(name)
		age := time.Since(time.Unix(r.Timestamp, 0)).Round(time.Second)
		stale := ""
		if cal.NeedsRecalibration(name, a.MaxAge) {
			stale = " (stale)"
		}
		fmt.Fprintf(a.Out, "  %-20s %-8s %d/%d inliers  residual=%.6g  age=%v%s\n",
			name, r.Mode, inlierCount(r), r.Total, r.Residual, age, stale)
	}
	return nil
}

// prepare loads the configuration and the dataset
func (a *App) prepare() (*calib.Dataset, error) {
	if err := a.loadConfig(); err != nil {
		return nil, err
	}
	if a.DataFile == "" {
		return nil, fmt.Errorf("no dataset given (use -data)")
	}
	ds, err := calib.LoadDataset(a.DataFile)
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func (a *App) loadConfig() error {
	if a.Config != nil {
		return nil
	}
	if _, err := os.Stat(a.ConfigFile); os.IsNotExist(err) {
		log.Printf("Config file %s not found, using defaults", a.ConfigFile)
		a.Config = calib.DefaultConfig()
		return nil
	}
	cfg, err := calib.LoadConfig(a.ConfigFile)
	if err != nil {
		return err
	}
	a.Config = cfg
	return nil
}

func (a *App) resultName(ds *calib.Dataset) string {
	switch {
	case a.Name != "":
		return a.Name
	case ds.Name != "":
		return ds.Name
	default:
		base := filepath.Base(a.DataFile)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
}

// finish reports the result, then caches, renders, plots and publishes it as
// configured. target[i] and aligned[i] should coincide for a perfect fit.
func (a *App) finish(res calib.Result, target, aligned []r3.Vector) error {
	if res.Timestamp == 0 {
		res.Timestamp = time.Now().Unix()
	}
	a.printResult(res)

	if a.CalibrationCache != "" {
		cal, err := calib.LoadCalibration(a.CalibrationCache)
		if err != nil {
			log.Printf("Warning: could not load calibration cache: %v", err)
		}
		if cal == nil {
			cal = &calib.CalibrationData{}
		}
		cal.Put(res)
		if err := calib.SaveCalibration(a.CalibrationCache, cal); err != nil {
			return err
		}
		a.Calibration = cal
		log.Printf("Saved %s to %s", res.Name, a.CalibrationCache)
	}

	if out := a.renderOutput(); out != "" {
		r := calib.NewAlignmentRenderer(target, aligned, res.Inliers)
		r.ApplyConfig(a.Config.Render)
		r.Caption = fmt.Sprintf("%s (%s): %d/%d inliers, residual %.4g", res.Name, res.Mode, inlierCount(res), res.Total, res.Residual)
		if err := r.RenderToFile(out, renderFormat(out, a.Config.Render.Format)); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Wrote %s\n", out)
	}

	if a.PlotOutput != "" {
		rp := &calib.ResidualPlot{
			Title:     fmt.Sprintf("%s (%s) residuals", res.Name, res.Mode),
			Residuals: make([]float64, len(target)),
			Inliers:   res.Inliers,
		}
		for i := range target {
			rp.Residuals[i] = target[i].Sub(aligned[i]).Norm()
		}
		if res.Inliers != nil {
			rp.Threshold = a.Config.RANSAC.Threshold
		}
		if err := rp.Save(a.PlotOutput); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Wrote %s\n", a.PlotOutput)
	}

	if a.MqttMode {
		if err := a.publish(res); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) publish(res calib.Result) error {
	if a.MQTTClient == nil {
		connect := a.connectMQTT
		if connect == nil {
			connect = calib.ConnectMQTT
		}
		client, err := connect(&a.Config.MQTT, 10*time.Second)
		if err != nil {
			return err
		}
		if client == nil {
			return fmt.Errorf("-mqtt given but no broker configured")
		}
		// The connection only lives for this publish; the next one reconnects.
		defer func() {
			client.Disconnect(250)
			a.MQTTClient = nil
			a.Publisher = nil
		}()
		a.MQTTClient = client
		a.Publisher = nil
	}
	if a.Publisher == nil {
		a.Publisher = calib.NewPublisher(a.MQTTClient, a.Config.MQTT.PublishPrefix)
	}
	return a.Publisher.PublishResult(res)
}

func (a *App) renderOutput() string {
	if a.RenderOutput != "" {
		return a.RenderOutput
	}
	return a.Config.Render.Output
}

func (a *App) printResult(res calib.Result) {
	fmt.Fprintf(a.Out, "=== %s (%s) ===\n", res.Name, res.Mode)
	if res.Pose != nil {
		fmt.Fprintf(a.Out, "Pose: %s\n", res.Pose)
	}
	if res.Planar != nil {
		fmt.Fprintf(a.Out, "Planar: angle=%.4f° t=(%.6g, %.6g)\n",
			res.Planar.Angle*180/math.Pi, res.Planar.Tx, res.Planar.Ty)
	}
	if res.Tip != nil {
		fmt.Fprintf(a.Out, "Tip world: (%.6g, %.6g, %.6g)\n", res.Tip.World.X, res.Tip.World.Y, res.Tip.World.Z)
		fmt.Fprintf(a.Out, "Tip offset: (%.6g, %.6g, %.6g)\n", res.Tip.Offset.X, res.Tip.Offset.Y, res.Tip.Offset.Z)
	}
	if res.Scale != 0 {
		fmt.Fprintf(a.Out, "Scale: %.6g\n", res.Scale)
	}
	fmt.Fprintf(a.Out, "Inliers: %d/%d\n", inlierCount(res), res.Total)
	fmt.Fprintf(a.Out, "Residual: %.6g", res.Residual)
	if res.StdDev != 0 {
		fmt.Fprintf(a.Out, " (std dev %.6g)", res.StdDev)
	}
	fmt.Fprintln(a.Out)
}

// inlierCount treats a result without an inlier list as using every item
func inlierCount(r calib.Result) int {
	if r.Inliers == nil {
		return r.Total
	}
	return len(r.Inliers)
}

func renderFormat(path, fallback string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	case ".svg":
		return "svg"
	}
	return fallback
}

func subset[T any](items []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = items[j]
	}
	return out
}

func transformPlanar(tr pose.PlanarTransform, pts []orb.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = tr.Apply(p)
	}
	return out
}

// lift places planar points on the z = 0 plane
func lift(pts []orb.Point) []r3.Vector {
	out := make([]r3.Vector, len(pts))
	for i, p := range pts {
		out[i] = r3.Vector{X: p[0], Y: p[1]}
	}
	return out
}
