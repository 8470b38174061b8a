// Package chart renders analysis results as a static PNG (gonum/plot) or an
// interactive HTML page (go-echarts).
package chart

import (
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/chrissnell/phenology/internal/phenology"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	panelWidth  = 15 * vg.Inch
	panelHeight = 5 * vg.Inch
	tickFormat  = "2006-01-02"
)

var (
	bandColor     = color.RGBA{R: 173, G: 216, B: 230, A: 110}
	indexColor    = color.RGBA{B: 255, A: 255}
	observedColor = color.RGBA{R: 220, A: 255}
	soilColor     = color.RGBA{R: 139, G: 69, B: 19, A: 200}
	vegColor      = color.RGBA{G: 128, A: 200}
	coverColor    = color.RGBA{G: 140, B: 60, A: 255}
	coverBand     = color.RGBA{R: 144, G: 238, B: 144, A: 110}
	stageColor    = color.RGBA{R: 128, G: 128, B: 128, A: 120}
)

// WritePNG draws the index panel and, for normalized analyses, the ground cover panel
func WritePNG(w io.Writer, a *phenology.Analysis) error {
	if len(a.Series) == 0 {
		return fmt.Errorf("analysis has an empty series")
	}

	panels := []*plot.Plot{}
	indexPlot, err := indexPanel(a)
	if err != nil {
		return err
	}
	panels = append(panels, indexPlot)

	if a.Parameters != nil {
		coverPlot, err := coverPanel(a)
		if err != nil {
			return err
		}
		panels = append(panels, coverPlot)
	}

	return writePanels(w, panels)
}

// SavePNG writes the chart to path
func SavePNG(path string, a *phenology.Analysis) error {
	return saveFile(path, func(w io.Writer) error { return WritePNG(w, a) })
}

func writePanels(w io.Writer, panels []*plot.Plot) error {
	img := vgimg.New(panelWidth, panelHeight*vg.Length(len(panels)))
	dc := draw.New(img)

	grid := make([][]*plot.Plot, len(panels))
	for i, p := range panels {
		grid[i] = []*plot.Plot{p}
	}
	tiles := draw.Tiles{
		Rows:      len(panels),
		Cols:      1,
		PadY:      vg.Points(20),
		PadTop:    vg.Points(10),
		PadBottom: vg.Points(10),
		PadLeft:   vg.Points(10),
		PadRight:  vg.Points(10),
	}

	canvases := plot.Align(grid, tiles, dc)
	for i := range grid {
		grid[i][0].Draw(canvases[i][0])
	}

	png := vgimg.PngCanvas{Canvas: img}
	_, err := png.WriteTo(w)
	return err
}

func newPanel(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Date"
	p.Y.Label.Text = ylabel
	p.X.Tick.Marker = plot.TimeTicks{Format: tickFormat}
	p.Add(plotter.NewGrid())

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}

func indexPanel(a *phenology.Analysis) (*plot.Plot, error) {
	p := newPanel("NDVI Time Series with Growth Stages", "NDVI")

	values := make(plotter.XYs, len(a.Series))
	lower := make(plotter.XYs, len(a.Series))
	upper := make(plotter.XYs, len(a.Series))
	for i, d := range a.Series {
		x := unix(d)
		values[i] = plotter.XY{X: x, Y: d.Index}
		lower[i] = plotter.XY{X: x, Y: d.Lower}
		upper[i] = plotter.XY{X: x, Y: d.Upper}
	}

	band, err := bandPolygon(lower, upper, bandColor)
	if err != nil {
		return nil, err
	}
	p.Add(band)
	p.Legend.Add("95% Confidence Interval", band)

	if err := addStageLines(p, a, 0, 1); err != nil {
		return nil, err
	}

	line, err := plotter.NewLine(values)
	if err != nil {
		return nil, err
	}
	line.Color = indexColor
	line.Width = vg.Points(2)
	p.Add(line)
	p.Legend.Add("Interpolated NDVI", line)

	if len(a.Observations) > 0 {
		pts := make(plotter.XYs, len(a.Observations))
		for i, o := range a.Observations {
			pts[i] = plotter.XY{X: float64(o.Date.Unix()), Y: o.Index}
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		scatter.Color = observedColor
		scatter.Shape = draw.CircleGlyph{}
		scatter.Radius = vg.Points(4)
		p.Add(scatter)
		p.Legend.Add("Observed NDVI", scatter)
	}

	if params := a.Parameters; params != nil {
		xmin, xmax := values[0].X, values[len(values)-1].X
		soil := referenceLine(params.SoilIndex, xmin, xmax, soilColor)
		veg := referenceLine(params.VegetationIndex, xmin, xmax, vegColor)
		p.Add(soil, veg)
		p.Legend.Add(fmt.Sprintf("NDVI_soil: %.3f", params.SoilIndex), soil)
		p.Legend.Add(fmt.Sprintf("NDVI_vegetation: %.3f", params.VegetationIndex), veg)
	}

	p.Y.Min, p.Y.Max = 0, 1
	return p, nil
}

func coverPanel(a *phenology.Analysis) (*plot.Plot, error) {
	p := newPanel("Ground Cover Percentage with Growth Stages", "Ground Cover (%)")

	values := make(plotter.XYs, 0, len(a.Series))
	lower := make(plotter.XYs, 0, len(a.Series))
	upper := make(plotter.XYs, 0, len(a.Series))
	for _, d := range a.Series {
		if d.Cover == nil {
			continue
		}
		x := unix(d)
		values = append(values, plotter.XY{X: x, Y: d.Cover.Percentage})
		lower = append(lower, plotter.XY{X: x, Y: d.Cover.PercentageLower})
		upper = append(upper, plotter.XY{X: x, Y: d.Cover.PercentageUpper})
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("analysis has normalization parameters but no cover values")
	}

	band, err := bandPolygon(lower, upper, coverBand)
	if err != nil {
		return nil, err
	}
	p.Add(band)
	p.Legend.Add("95% Confidence Interval", band)

	if err := addStageLines(p, a, 0, 100); err != nil {
		return nil, err
	}

	line, err := plotter.NewLine(values)
	if err != nil {
		return nil, err
	}
	line.Color = coverColor
	line.Width = vg.Points(2)
	p.Add(line)
	p.Legend.Add("Ground Cover %", line)

	p.Y.Min, p.Y.Max = 0, 100
	return p, nil
}

// bandPolygon closes the area between lower and upper
func bandPolygon(lower, upper plotter.XYs, fill color.Color) (*plotter.Polygon, error) {
	ring := make(plotter.XYs, 0, 2*len(upper))
	ring = append(ring, upper...)
	for i := len(lower) - 1; i >= 0; i-- {
		ring = append(ring, lower[i])
	}
	poly, err := plotter.NewPolygon(ring)
	if err != nil {
		return nil, err
	}
	poly.Color = fill
	poly.LineStyle.Width = 0
	return poly, nil
}

func referenceLine(y, xmin, xmax float64, c color.Color) *plotter.Function {
	f := plotter.NewFunction(func(float64) float64 { return y })
	f.XMin, f.XMax = xmin, xmax
	f.Color = c
	f.Width = vg.Points(1.5)
	f.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
	return f
}

// addStageLines marks each stage anchor with a dashed vertical line
func addStageLines(p *plot.Plot, a *phenology.Analysis, ymin, ymax float64) error {
	for _, anchor := range a.Schedule.Anchors {
		x := float64(anchor.Date.Unix())
		l, err := plotter.NewLine(plotter.XYs{{X: x, Y: ymin}, {X: x, Y: ymax}})
		if err != nil {
			return err
		}
		l.Color = stageColor
		l.Dashes = []vg.Length{vg.Points(2), vg.Points(3)}
		p.Add(l)
	}
	return nil
}

// WriteComparisonPNG draws every successful algorithm series over the observations
func WriteComparisonPNG(w io.Writer, results []phenology.Comparison, obs []phenology.Observation, season phenology.Season) error {
	p := newPanel("Comparison of Reconstruction Algorithms", "NDVI")
	colors := generateColors(len(results))

	drawn := 0
	for i, r := range results {
		if r.Err != nil || len(r.Values) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(r.Values))
		for d, v := range r.Values {
			pts[d] = plotter.XY{X: float64(season.Date(d).Unix()), Y: v}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add(string(r.Algorithm), line)
		drawn++
	}
	if drawn == 0 {
		return fmt.Errorf("no algorithm produced a series")
	}

	if len(obs) > 0 {
		pts := make(plotter.XYs, len(obs))
		for i, o := range obs {
			pts[i] = plotter.XY{X: float64(o.Date.Unix()), Y: o.Index}
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		scatter.Color = observedColor
		scatter.Shape = draw.CircleGlyph{}
		scatter.Radius = vg.Points(4)
		p.Add(scatter)
		p.Legend.Add("Observed NDVI", scatter)
	}

	p.Y.Min, p.Y.Max = 0, 1
	return writePanels(w, []*plot.Plot{p})
}

// SaveComparisonPNG writes the comparison chart to path
func SaveComparisonPNG(path string, results []phenology.Comparison, obs []phenology.Observation, season phenology.Season) error {
	return saveFile(path, func(w io.Writer) error { return WriteComparisonPNG(w, results, obs, season) })
}

// generateColors creates a palette of distinct colors for algorithm lines
func generateColors(n int) []color.Color {
	palette := []color.RGBA{
		{R: 31, G: 119, B: 180, A: 255},
		{R: 255, G: 127, B: 14, A: 255},
		{R: 44, G: 160, B: 44, A: 255},
		{R: 148, G: 103, B: 189, A: 255},
		{R: 140, G: 86, B: 75, A: 255},
		{R: 227, G: 119, B: 194, A: 255},
		{R: 127, G: 127, B: 127, A: 255},
		{R: 188, G: 189, B: 34, A: 255},
	}
	colors := make([]color.Color, n)
	for i := range colors {
		colors[i] = palette[i%len(palette)]
	}
	return colors
}

func unix(d phenology.DailyPoint) float64 {
	return float64(d.Date.Unix())
}

func saveFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
