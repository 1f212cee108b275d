package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/rovermap/internal/history"
	"github.com/banshee-data/rovermap/internal/pose"
)

// ChartHTML renders an interactive map page. Trail endpoints, obstacles,
// temperature labels and the rover are separate series so each can be
// toggled from the legend.
func ChartHTML(w io.Writer, snap history.Snapshot, st pose.Status, v View) error {
	minX, minY, maxX, maxY := v.Bounds()

	trail := make([]opts.ScatterData, 0, len(snap.Trail))
	for _, s := range snap.Trail {
		trail = append(trail, opts.ScatterData{Value: []interface{}{s.X1, s.Y1}})
	}

	obstacles := make([]opts.ScatterData, 0, len(snap.Obstacles))
	for _, o := range snap.Obstacles {
		obstacles = append(obstacles, opts.ScatterData{
			Name:  fmt.Sprintf("%.1fcm", o.RangeCM),
			Value: []interface{}{o.X, o.Y},
		})
	}

	temps := make([]opts.ScatterData, 0, len(snap.Temps))
	for _, t := range snap.Temps {
		temps = append(temps, opts.ScatterData{
			Name:  fmt.Sprintf("%.1fF", t.Value),
			Value: []interface{}{t.X, t.Y},
		})
	}

	rover := []opts.ScatterData{{
		Name:   fmt.Sprintf("heading %.1f°", st.HeadingDeg),
		Value:  []interface{}{st.X, st.Y},
		Symbol: "triangle",
	}}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Rover map",
			Width:     fmt.Sprintf("%dpx", v.Width),
			Height:    fmt.Sprintf("%dpx", v.Height),
		}),
		charts.WithTitleOpts(opts.Title{Title: "Rover map", Subtitle: st.String()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minX, Max: maxX, Name: "x (cm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minY, Max: maxY, Name: "y (cm)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("trail", trail, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
	scatter.AddSeries("obstacles", obstacles, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	scatter.AddSeries("temperature", temps, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	scatter.AddSeries("rover", rover, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))

	return scatter.Render(w)
}
