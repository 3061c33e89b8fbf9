package calib

import (
	"github.com/golang/geo/r3"
	"github.com/kwv/posecal/pose"
	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/num/quat"
)

// Config is the posecal configuration file
type Config struct {
	RANSAC RansacConfig `yaml:"ransac" json:"ransac"`
	Refine RefineConfig `yaml:"refine" json:"refine"`
	MQTT   MQTTConfig   `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	Render RenderConfig `yaml:"render,omitempty" json:"render,omitempty"`
}

// RansacConfig holds sample consensus settings. MinInliers and MaxIterations
// are derived from OutlierRatio and SuccessProbability unless set explicitly.
type RansacConfig struct {
	Threshold          float64 `yaml:"threshold" json:"threshold"`
	SetSize            int     `yaml:"setSize,omitempty" json:"setSize,omitempty"` // 0 uses the minimum for the mode
	OutlierRatio       float64 `yaml:"outlierRatio" json:"outlierRatio"`
	SuccessProbability float64 `yaml:"successProbability,omitempty" json:"successProbability,omitempty"`
	MinInliers         int     `yaml:"minInliers,omitempty" json:"minInliers,omitempty"`
	MaxIterations      int     `yaml:"maxIterations,omitempty" json:"maxIterations,omitempty"`
	Seed               int64   `yaml:"seed,omitempty" json:"seed,omitempty"` // 0 seeds from the clock
}

// RefineConfig holds Levenberg-Marquardt settings
type RefineConfig struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	MaxIterations int     `yaml:"maxIterations,omitempty" json:"maxIterations,omitempty"`
	Precision     float64 `yaml:"precision,omitempty" json:"precision,omitempty"`
	TukeyC        float64 `yaml:"tukeyC,omitempty" json:"tukeyC,omitempty"` // Robust weighting cutoff; 0 disables
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// RenderConfig controls the alignment overlay
type RenderConfig struct {
	Output      string  `yaml:"output,omitempty" json:"output,omitempty"`
	Format      string  `yaml:"format,omitempty" json:"format,omitempty"` // svg or png
	Padding     float64 `yaml:"padding,omitempty" json:"padding,omitempty"`
	PointRadius float64 `yaml:"pointRadius,omitempty" json:"pointRadius,omitempty"`
	DPI         float64 `yaml:"dpi,omitempty" json:"dpi,omitempty"`
}

// Dataset is a named set of observations loaded from YAML. Pairs feed the
// rigid, robust, refine and planar modes; Poses feed the tool-tip mode.
type Dataset struct {
	Name  string        `yaml:"name" json:"name"`
	Pairs []PointPair   `yaml:"pairs,omitempty" json:"pairs,omitempty"`
	Poses []TrackedPose `yaml:"poses,omitempty" json:"poses,omitempty"`
}

// PointPair is one correspondence: A in the target frame, B in the source frame
type PointPair struct {
	A [3]float64 `yaml:"a,flow" json:"a"`
	B [3]float64 `yaml:"b,flow" json:"b"`
}

// TrackedPose is a marker pose reported by a tracker
type TrackedPose struct {
	Translation [3]float64 `yaml:"t,flow" json:"t"`
	Rotation    [4]float64 `yaml:"q,flow" json:"q"` // x, y, z, w
}

// Points splits the pairs into the A and B point sets
func (d *Dataset) Points() (a, b []r3.Vector) {
	a = make([]r3.Vector, len(d.Pairs))
	b = make([]r3.Vector, len(d.Pairs))
	for i, p := range d.Pairs {
		a[i] = r3.Vector{X: p.A[0], Y: p.A[1], Z: p.A[2]}
		b[i] = r3.Vector{X: p.B[0], Y: p.B[1], Z: p.B[2]}
	}
	return a, b
}

// PlanarPoints projects the pairs onto the XY plane
func (d *Dataset) PlanarPoints() (a, b []orb.Point) {
	a = make([]orb.Point, len(d.Pairs))
	b = make([]orb.Point, len(d.Pairs))
	for i, p := range d.Pairs {
		a[i] = orb.Point{p.A[0], p.A[1]}
		b[i] = orb.Point{p.B[0], p.B[1]}
	}
	return a, b
}

// TrackerPoses converts the recorded poses, normalizing each rotation
func (d *Dataset) TrackerPoses() []pose.Pose {
	out := make([]pose.Pose, len(d.Poses))
	for i, p := range d.Poses {
		out[i] = pose.NewPose(
			quat.Number{Real: p.Rotation[3], Imag: p.Rotation[0], Jmag: p.Rotation[1], Kmag: p.Rotation[2]},
			r3.Vector{X: p.Translation[0], Y: p.Translation[1], Z: p.Translation[2]},
		)
	}
	return out
}

// CalibrationData is the on-disk cache of computed results keyed by dataset name
type CalibrationData struct {
	Results     map[string]Result `json:"results"`
	LastUpdated int64             `json:"lastUpdated"`
}

// Result is one estimation outcome
type Result struct {
	Name      string                `json:"name"`
	Mode      string                `json:"mode"`
	Pose      *pose.Pose            `json:"pose,omitempty"`
	Scale     float64               `json:"scale,omitempty"`
	Tip       *pose.TipCalibration  `json:"tip,omitempty"`
	Planar    *pose.PlanarTransform `json:"planar,omitempty"`
	Inliers   []int                 `json:"inliers,omitempty"`
	Total     int                   `json:"total"`
	Residual  float64               `json:"residual"`
	StdDev    float64               `json:"stdDev,omitempty"`
	Timestamp int64                 `json:"timestamp"`
}
