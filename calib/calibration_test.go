package calib

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/kwv/posecal/pose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCalibration_NotExists(t *testing.T) {
	cal, err := LoadCalibration(filepath.Join(t.TempDir(), "no-such-file.json"))
	require.NoError(t, err)
	assert.Nil(t, cal)
}

func TestLoadCalibration_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := LoadCalibration(path)
	assert.Error(t, err)
}

func TestSaveCalibration_RoundTrip(t *testing.T) {
	p := pose.NewPose(pose.QuaternionFromAxisAngle(r3.Vector{Z: 1}, 0.5), r3.Vector{X: 1, Y: 2, Z: 3})
	cal := &CalibrationData{}
	cal.Put(Result{Name: "bench", Mode: "robust", Pose: &p, Inliers: []int{0, 2}, Total: 3, Residual: 0.01})

	// nested dir, MkdirAll must create it
	path := filepath.Join(t.TempDir(), "sub", "dir", "cal.json")
	require.NoError(t, SaveCalibration(path, cal))
	assert.NotZero(t, cal.LastUpdated)

	got, err := LoadCalibration(path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cal.LastUpdated, got.LastUpdated)

	r, ok := got.Get("bench")
	require.True(t, ok)
	assert.Equal(t, "robust", r.Mode)
	assert.Equal(t, []int{0, 2}, r.Inliers)
	require.NotNil(t, r.Pose)
	assert.InDelta(t, p.Rotation.Kmag, r.Pose.Rotation.Kmag, 1e-15)
	assert.Equal(t, p.Translation, r.Pose.Translation)
	assert.Nil(t, r.Tip)
}

func TestCalibrationData_PutGet(t *testing.T) {
	var cal CalibrationData
	_, ok := cal.Get("missing")
	assert.False(t, ok)

	cal.Put(Result{Name: "b"})
	cal.Put(Result{Name: "a", Timestamp: 42})

	r, ok := cal.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(42), r.Timestamp, "explicit timestamp is kept")

	r, ok = cal.Get("b")
	require.True(t, ok)
	assert.NotZero(t, r.Timestamp)

	assert.Equal(t, []string{"a", "b"}, cal.Names())

	var nilCal *CalibrationData
	_, ok = nilCal.Get("a")
	assert.False(t, ok)
	assert.Nil(t, nilCal.Names())
}

func TestNeedsRecalibration(t *testing.T) {
	cal := &CalibrationData{}
	assert.True(t, cal.NeedsRecalibration("bench", time.Hour), "missing result")

	cal.Put(Result{Name: "bench"})
	assert.False(t, cal.NeedsRecalibration("bench", time.Hour))

	cal.Put(Result{Name: "stale", Timestamp: time.Now().Add(-2 * time.Hour).Unix()})
	assert.True(t, cal.NeedsRecalibration("stale", time.Hour))
}
