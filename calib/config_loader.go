package calib

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/kwv/posecal/pose"
	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the settings used when no config file is given
func DefaultConfig() *Config {
	cfg := &Config{
		RANSAC: RansacConfig{
			Threshold:    0.05,
			OutlierRatio: 0.3,
		},
		Refine: RefineConfig{Enabled: true},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads the configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.RANSAC.SuccessProbability == 0 {
		c.RANSAC.SuccessProbability = 0.99
	}
	if c.Refine.MaxIterations == 0 && c.Refine.Precision == 0 {
		term := pose.DefaultTermination()
		c.Refine.MaxIterations = term.MaxIterations
		c.Refine.Precision = term.Precision
	}
	if c.Render.Format == "" {
		c.Render.Format = "svg"
	}
	if c.Render.DPI == 0 {
		c.Render.DPI = 300
	}
}

// Validate checks value ranges after defaults are applied
func (c *Config) Validate() error {
	r := c.RANSAC
	if r.Threshold <= 0 {
		return fmt.Errorf("ransac.threshold must be positive, got %g", r.Threshold)
	}
	if r.SetSize < 0 {
		return fmt.Errorf("ransac.setSize must not be negative, got %d", r.SetSize)
	}
	if r.OutlierRatio < 0 || r.OutlierRatio >= 1 {
		return fmt.Errorf("ransac.outlierRatio must be in [0, 1), got %g", r.OutlierRatio)
	}
	if r.SuccessProbability <= 0 || r.SuccessProbability >= 1 {
		return fmt.Errorf("ransac.successProbability must be in (0, 1), got %g", r.SuccessProbability)
	}
	if r.MinInliers < 0 || r.MaxIterations < 0 {
		return fmt.Errorf("ransac.minInliers and ransac.maxIterations must not be negative")
	}
	if c.Refine.MaxIterations < 0 || c.Refine.Precision < 0 || c.Refine.TukeyC < 0 {
		return fmt.Errorf("refine settings must not be negative")
	}
	switch c.Render.Format {
	case "svg", "png":
	default:
		return fmt.Errorf("render.format must be svg or png, got %q", c.Render.Format)
	}
	return nil
}

// Params builds RANSAC parameters for n items. minSetSize is used when the
// config does not set ransac.setSize.
func (r RansacConfig) Params(minSetSize, n int) (pose.RansacParams, error) {
	setSize := r.SetSize
	if setSize == 0 {
		setSize = minSetSize
	}

	params, err := pose.RansacParamsFromOutlierRatio(r.Threshold, setSize, n, r.OutlierRatio, r.SuccessProbability)
	if err != nil {
		return pose.RansacParams{}, fmt.Errorf("deriving RANSAC parameters: %w", err)
	}
	if r.MinInliers > 0 {
		params.MinInliers = r.MinInliers
	}
	if r.MaxIterations > 0 {
		params.MaxIterations = r.MaxIterations
	}
	if r.Seed != 0 {
		params.RNG = rand.New(rand.NewSource(r.Seed))
	}
	if err := params.Validate(n); err != nil {
		return pose.RansacParams{}, err
	}
	return params, nil
}

// LMConfig builds optimizer settings. TukeyC enables per-point robust weights.
func (r RefineConfig) LMConfig() pose.LMConfig {
	cfg := pose.DefaultLMConfig()
	cfg.Termination = r.Termination()
	if r.TukeyC > 0 {
		cfg.Weights = pose.TukeyWeights{RowsPerMeasurement: 3, C: r.TukeyC}
	}
	return cfg
}

// Termination returns the refinement stopping criteria
func (r RefineConfig) Termination() pose.Termination {
	return pose.Termination{MaxIterations: r.MaxIterations, Precision: r.Precision}
}

// LoadDataset loads point pairs or tracker poses from a YAML file
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}

	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parsing dataset YAML: %w", err)
	}

	if len(ds.Pairs) == 0 && len(ds.Poses) == 0 {
		return nil, fmt.Errorf("dataset %s has no pairs or poses", path)
	}
	for i, p := range ds.Poses {
		q := p.Rotation
		if q[0] == 0 && q[1] == 0 && q[2] == 0 && q[3] == 0 {
			return nil, fmt.Errorf("poses[%d].q is the zero quaternion", i)
		}
	}
	return &ds, nil
}

// SaveDataset writes a dataset as YAML
func SaveDataset(path string, ds *Dataset) error {
	data, err := yaml.Marshal(ds)
	if err != nil {
		return fmt.Errorf("marshaling dataset YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing dataset: %w", err)
	}
	return nil
}
