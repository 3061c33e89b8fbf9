package calib

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DefaultCalibrationCachePath is the default path for the result cache
const DefaultCalibrationCachePath = ".posecal-cache.json"

// LoadCalibration loads cached results from a JSON file.
// A missing file is not an error and returns nil.
func LoadCalibration(path string) (*CalibrationData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No calibration file yet
		}
		return nil, fmt.Errorf("reading calibration file: %w", err)
	}

	var cal CalibrationData
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("parsing calibration file: %w", err)
	}

	return &cal, nil
}

// SaveCalibration saves results to a JSON cache file
func SaveCalibration(path string, cal *CalibrationData) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating calibration directory: %w", err)
	}

	cal.LastUpdated = time.Now().Unix()

	data, err := json.MarshalIndent(cal, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling calibration data: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing calibration file: %w", err)
	}

	return nil
}

// Put stores a result under its name, stamping it if needed
func (c *CalibrationData) Put(r Result) {
	if c.Results == nil {
		c.Results = make(map[string]Result)
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().Unix()
	}
	c.Results[r.Name] = r
}

// Get returns the cached result for name
func (c *CalibrationData) Get(name string) (Result, bool) {
	if c == nil || c.Results == nil {
		return Result{}, false
	}
	r, ok := c.Results[name]
	return r, ok
}

// Names returns the cached result names in sorted order
func (c *CalibrationData) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Results))
	for name := range c.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NeedsRecalibration checks if the named result is missing or older than maxAge
func (c *CalibrationData) NeedsRecalibration(name string, maxAge time.Duration) bool {
	r, ok := c.Get(name)
	if !ok || r.Timestamp == 0 {
		return true
	}
	return time.Since(time.Unix(r.Timestamp, 0)) > maxAge
}
