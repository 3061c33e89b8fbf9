package main

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type mockApp struct {
	opts   AppOptions
	called map[string]bool
}

func newMockApp() *mockApp {
	return &mockApp{
		called: make(map[string]bool),
	}
}

func (m *mockApp) ApplyOptions(opts AppOptions) { m.opts = opts }
func (m *mockApp) RunRigid() error              { m.called["RunRigid"] = true; return nil }
func (m *mockApp) RunRobust() error             { m.called["RunRobust"] = true; return nil }
func (m *mockApp) RunRefine() error             { m.called["RunRefine"] = true; return nil }
func (m *mockApp) RunToolTip() error            { m.called["RunToolTip"] = true; return nil }
func (m *mockApp) RunPlanar() error             { m.called["RunPlanar"] = true; return nil }
func (m *mockApp) RunStatus() error             { m.called["RunStatus"] = true; return nil }

func TestRun_Flags(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedCalled string
		verifyOpts     func(*testing.T, AppOptions)
	}{
		{
			name:           "Rigid",
			args:           []string{"--mode", "rigid", "--data", "/tmp/pairs.yaml"},
			expectedCalled: "RunRigid",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.DataFile != "/tmp/pairs.yaml" {
					t.Errorf("expected DataFile /tmp/pairs.yaml, got %s", opts.DataFile)
				}
			},
		},
		{
			name:           "RobustIsDefault",
			args:           []string{"--config", "lab.yaml", "--cache", "test.json"},
			expectedCalled: "RunRobust",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.ConfigFile != "lab.yaml" {
					t.Errorf("expected ConfigFile lab.yaml, got %s", opts.ConfigFile)
				}
				if opts.CalibrationCache != "test.json" {
					t.Errorf("expected CalibrationCache test.json, got %s", opts.CalibrationCache)
				}
			},
		},
		{
			name:           "Refine",
			args:           []string{"--mode", "refine", "--render", "overlay.png", "--plot", "residuals.svg"},
			expectedCalled: "RunRefine",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.RenderOutput != "overlay.png" {
					t.Errorf("expected RenderOutput overlay.png, got %s", opts.RenderOutput)
				}
				if opts.PlotOutput != "residuals.svg" {
					t.Errorf("expected PlotOutput residuals.svg, got %s", opts.PlotOutput)
				}
			},
		},
		{
			name:           "ToolTip",
			args:           []string{"--mode", "tooltip", "--name", "probe", "--mqtt"},
			expectedCalled: "RunToolTip",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.Name != "probe" {
					t.Errorf("expected Name probe, got %s", opts.Name)
				}
				if !opts.MqttMode {
					t.Error("expected MqttMode true")
				}
			},
		},
		{
			name:           "Planar",
			args:           []string{"--mode", "planar"},
			expectedCalled: "RunPlanar",
		},
		{
			name:           "Status",
			args:           []string{"--mode", "status", "--max-age", "2h"},
			expectedCalled: "RunStatus",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.MaxAge != 2*time.Hour {
					t.Errorf("expected MaxAge 2h, got %v", opts.MaxAge)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newMockApp()
			var out bytes.Buffer
			err := run(tt.args, &out, app)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}

			if !app.called[tt.expectedCalled] {
				t.Errorf("expected %s to be called", tt.expectedCalled)
			}
			if len(app.called) != 1 {
				t.Errorf("expected exactly one mode to run, got %v", app.called)
			}

			if tt.verifyOpts != nil {
				tt.verifyOpts(t, app.opts)
			}
		})
	}
}

func TestRun_Help(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{"--help"}, &out, app)
	if err == nil {
		t.Error("expected error from --help, got nil")
	}
	if !strings.Contains(out.String(), "Usage of posecal") {
		t.Errorf("expected usage info in output, got: %s", out.String())
	}
}

func TestRun_UnknownMode(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{"--mode", "affine"}, &out, app)
	if err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Errorf("expected unknown mode error, got %v", err)
	}
	if len(app.called) != 0 {
		t.Errorf("expected no mode to run, got %v", app.called)
	}
}

func TestRun_Defaults(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	if err := run([]string{}, &out, app); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	expectedPrefix := "posecal version: " + Version
	if !strings.Contains(out.String(), expectedPrefix) {
		t.Errorf("expected output to contain version, got: %s", out.String())
	}
	if app.opts.ConfigFile != "config.yaml" {
		t.Errorf("expected default config.yaml, got %s", app.opts.ConfigFile)
	}
	if app.opts.CalibrationCache != ".posecal-cache.json" {
		t.Errorf("expected default cache path, got %s", app.opts.CalibrationCache)
	}
}

func TestMain_Execute(t *testing.T) {
	// Smoke test to ensure version is set
	if Version == "" {
		t.Error("expected Version to be set")
	}
}
