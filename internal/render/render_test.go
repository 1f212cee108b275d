package render

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/plot/plotter"

	"github.com/banshee-data/rovermap/internal/history"
	"github.com/banshee-data/rovermap/internal/pose"
)

func TestWorldToCanvas(t *testing.T) {
	v := DefaultView()
	tests := []struct {
		name   string
		x, y   float64
		cx, cy float64
	}{
		{"origin", 0, 0, 233, 450},
		{"east", 100, 0, 298, 450},
		{"north", 0, 100, 233, 385},
		{"south west", -200, -100, 103, 515},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cx, cy := v.WorldToCanvas(tt.x, tt.y)
			if diff := cmp.Diff([]float64{tt.cx, tt.cy}, []float64{cx, cy}, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("WorldToCanvas(%v, %v) mismatch (-want +got):\n%s", tt.x, tt.y, diff)
			}
			x, y := v.CanvasToWorld(cx, cy)
			if diff := cmp.Diff([]float64{tt.x, tt.y}, []float64{x, y}, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("CanvasToWorld round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBounds(t *testing.T) {
	v := View{Scale: 1, OriginX: 100, OriginY: 50, Width: 400, Height: 200}
	minX, minY, maxX, maxY := v.Bounds()
	got := []float64{minX, minY, maxX, maxY}
	want := []float64{-100, -150, 300, 50}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Bounds() mismatch (-want +got):\n%s", diff)
	}
}

func TestTrailLines(t *testing.T) {
	trail := []history.TrailSegment{
		{X0: 0, Y0: 0, X1: 1, Y1: 0},
		{X0: 1, Y0: 0, X1: 2, Y1: 0},
		{X0: 5, Y0: 5, X1: 6, Y1: 5},
	}
	got := trailLines(trail)
	want := []plotter.XYs{
		{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}},
		{{X: 5, Y: 5}, {X: 6, Y: 5}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("trailLines() mismatch (-want +got):\n%s", diff)
	}
	if got := trailLines(nil); len(got) != 0 {
		t.Errorf("trailLines(nil) = %v", got)
	}
}

func sampleSnapshot() (history.Snapshot, pose.Status) {
	snap := history.Snapshot{
		Trail:     []history.TrailSegment{{X0: 0, Y0: 0, X1: 10, Y1: 0}, {X0: 10, Y0: 0, X1: 20, Y1: 0}},
		Obstacles: []history.Obstacle{{X: 70, Y: 0, RangeCM: 50}},
		Temps:     []history.TempLabel{{X: 20, Y: 0, Value: 71.6}},
	}
	return snap, pose.Status{X: 20, Y: 0, HeadingDeg: 0, Obstacles: 1}
}

func TestPlotPNG(t *testing.T) {
	snap, st := sampleSnapshot()
	v := View{Scale: 0.65, OriginX: 100, OriginY: 150, Width: 400, Height: 300}

	var buf bytes.Buffer
	if err := PlotPNG(&buf, snap, st, v); err != nil {
		t.Fatalf("PlotPNG() error = %v", err)
	}
	cfg, err := png.DecodeConfig(&buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if cfg.Width != 400 || cfg.Height != 300 {
		t.Errorf("PNG size = %dx%d, want 400x300", cfg.Width, cfg.Height)
	}
}

func TestPlotPNG_EmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	if err := PlotPNG(&buf, history.Snapshot{}, pose.Status{}, DefaultView()); err != nil {
		t.Fatalf("PlotPNG() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected image bytes")
	}
}

func TestChartHTML(t *testing.T) {
	snap, st := sampleSnapshot()

	var buf bytes.Buffer
	if err := ChartHTML(&buf, snap, st, DefaultView()); err != nil {
		t.Fatalf("ChartHTML() error = %v", err)
	}
	html := buf.String()
	for _, want := range []string{"Rover map", "obstacles", "temperature", "71.6F", "50.0cm"} {
		if !strings.Contains(html, want) {
			t.Errorf("chart HTML missing %q", want)
		}
	}
}
