package render

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/rovermap/internal/history"
	"github.com/banshee-data/rovermap/internal/pose"
)

var (
	trailColor    = color.RGBA{R: 60, G: 120, B: 220, A: 255}
	obstacleColor = color.RGBA{R: 220, G: 40, B: 40, A: 255}
	tempColor     = color.RGBA{R: 230, G: 140, B: 0, A: 255}
	roverColor    = color.RGBA{R: 20, G: 160, B: 60, A: 255}
)

// headingArrowCM is the length of the heading indicator drawn at the rover.
const headingArrowCM = 25

// pixelLength converts canvas pixels to vg lengths at the 96 DPI used for
// PNG output.
func pixelLength(px int) vg.Length {
	return vg.Length(px) * vg.Inch / 96
}

// PlotPNG renders the map as a PNG of the view's canvas size.
func PlotPNG(w io.Writer, snap history.Snapshot, st pose.Status, v View) error {
	p, err := buildPlot(snap, st, v)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(pixelLength(v.Width), pixelLength(v.Height), "png")
	if err != nil {
		return fmt.Errorf("render map: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

func buildPlot(snap history.Snapshot, st pose.Status, v View) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Rover map"
	p.X.Label.Text = "x (cm)"
	p.Y.Label.Text = "y (cm)"
	p.Add(plotter.NewGrid())

	minX, minY, maxX, maxY := v.Bounds()
	p.X.Min, p.X.Max = minX, maxX
	p.Y.Min, p.Y.Max = minY, maxY

	for _, pts := range trailLines(snap.Trail) {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = trailColor
		line.Width = vg.Points(1.5)
		p.Add(line)
	}

	if len(snap.Obstacles) > 0 {
		pts := make(plotter.XYs, len(snap.Obstacles))
		for i, o := range snap.Obstacles {
			pts[i] = plotter.XY{X: o.X, Y: o.Y}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = obstacleColor
		sc.GlyphStyle.Radius = vg.Points(3)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add("obstacles", sc)
	}

	if len(snap.Temps) > 0 {
		xys := make(plotter.XYs, len(snap.Temps))
		labels := make([]string, len(snap.Temps))
		for i, t := range snap.Temps {
			xys[i] = plotter.XY{X: t.X, Y: t.Y}
			labels[i] = fmt.Sprintf("%.1fF", t.Value)
		}
		lb, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
		if err != nil {
			return nil, err
		}
		for i := range lb.TextStyle {
			lb.TextStyle[i].Color = tempColor
		}
		p.Add(lb)
	}

	rover, heading, err := roverGlyph(st)
	if err != nil {
		return nil, err
	}
	p.Add(heading, rover)
	p.Legend.Add("rover", rover)
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p, nil
}

// trailLines joins consecutive segments into polylines, starting a new line
// wherever a segment does not begin at the previous one's end (after FIFO
// eviction of a middle stretch, for instance).
func trailLines(trail []history.TrailSegment) []plotter.XYs {
	var lines []plotter.XYs
	var cur plotter.XYs
	for i, s := range trail {
		if i == 0 || s.X0 != trail[i-1].X1 || s.Y0 != trail[i-1].Y1 {
			if len(cur) > 1 {
				lines = append(lines, cur)
			}
			cur = plotter.XYs{{X: s.X0, Y: s.Y0}}
		}
		cur = append(cur, plotter.XY{X: s.X1, Y: s.Y1})
	}
	if len(cur) > 1 {
		lines = append(lines, cur)
	}
	return lines
}

func roverGlyph(st pose.Status) (*plotter.Scatter, *plotter.Line, error) {
	rover, err := plotter.NewScatter(plotter.XYs{{X: st.X, Y: st.Y}})
	if err != nil {
		return nil, nil, err
	}
	rover.GlyphStyle.Color = roverColor
	rover.GlyphStyle.Radius = vg.Points(5)
	rover.GlyphStyle.Shape = draw.PyramidGlyph{}

	h := st.HeadingDeg * math.Pi / 180
	tip := plotter.XY{X: st.X + headingArrowCM*math.Cos(h), Y: st.Y + headingArrowCM*math.Sin(h)}
	heading, err := plotter.NewLine(plotter.XYs{{X: st.X, Y: st.Y}, tip})
	if err != nil {
		return nil, nil, err
	}
	heading.Color = roverColor
	heading.Width = vg.Points(2)
	return rover, heading, nil
}
