package chart

import (
	"fmt"
	"io"

	"github.com/chrissnell/phenology/internal/phenology"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const htmlDate = "2006-01-02"

// WriteHTML renders an interactive page with the index chart and, for normalized
// analyses, the ground cover chart
func WriteHTML(w io.Writer, a *phenology.Analysis) error {
	if len(a.Series) == 0 {
		return fmt.Errorf("analysis has an empty series")
	}

	page := components.NewPage()
	page.SetPageTitle("Crop Phenology")
	page.AddCharts(indexChart(a))
	if a.Parameters != nil {
		page.AddCharts(coverChart(a))
	}
	return page.Render(w)
}

// SaveHTML writes the interactive page to path
func SaveHTML(path string, a *phenology.Analysis) error {
	return saveFile(path, func(w io.Writer) error { return WriteHTML(w, a) })
}

func dates(a *phenology.Analysis) []string {
	x := make([]string, len(a.Series))
	for i, d := range a.Series {
		x[i] = d.Date.Format(htmlDate)
	}
	return x
}

func newLineChart(title, subtitle, yname string, ymax float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "520px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Date"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yname, Min: 0, Max: ymax}),
	)
	return line
}

// addBand stacks a transparent lower series and the band width on top of it
func addBand(line *charts.Line, lower, upper []float64, fill string) {
	base := make([]opts.LineData, len(lower))
	width := make([]opts.LineData, len(lower))
	for i := range lower {
		base[i] = opts.LineData{Value: lower[i]}
		width[i] = opts.LineData{Value: upper[i] - lower[i]}
	}
	line.AddSeries("Lower CI", base,
		charts.WithLineChartOpts(opts.LineChart{Stack: "ci", ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Opacity: opts.Float(0)}),
	)
	line.AddSeries("95% Confidence Interval", width,
		charts.WithLineChartOpts(opts.LineChart{Stack: "ci", ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Opacity: opts.Float(0)}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Color: fill, Opacity: opts.Float(0.4)}),
	)
}

func stageMarks(a *phenology.Analysis) []opts.MarkLineNameXAxisItem {
	marks := make([]opts.MarkLineNameXAxisItem, 0, len(a.Schedule.Anchors))
	for _, anchor := range a.Schedule.Anchors {
		marks = append(marks, opts.MarkLineNameXAxisItem{Name: anchor.Stage, XAxis: anchor.Date.Format(htmlDate)})
	}
	return marks
}

func indexChart(a *phenology.Analysis) *charts.Line {
	subtitle := fmt.Sprintf("%s, %d observations, peak %.3f on %s",
		a.Algorithm, len(a.Observations), a.Schedule.PeakIndex, a.Schedule.PeakDate.Format(htmlDate))
	line := newLineChart("NDVI Time Series with Growth Stages", subtitle, "NDVI", 1)
	line.SetXAxis(dates(a))

	lower := make([]float64, len(a.Series))
	upper := make([]float64, len(a.Series))
	values := make([]opts.LineData, len(a.Series))
	for i, d := range a.Series {
		lower[i], upper[i] = d.Lower, d.Upper
		values[i] = opts.LineData{Value: d.Index, Name: d.Stage}
	}
	addBand(line, lower, upper, "#add8e6")

	seriesOpts := []charts.SeriesOpts{
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: "#0000ff", Width: 2}),
		charts.WithMarkLineNameXAxisItemOpts(stageMarks(a)...),
	}
	if p := a.Parameters; p != nil {
		seriesOpts = append(seriesOpts, charts.WithMarkLineNameYAxisItemOpts(
			opts.MarkLineNameYAxisItem{Name: fmt.Sprintf("NDVI_soil: %.3f", p.SoilIndex), YAxis: p.SoilIndex},
			opts.MarkLineNameYAxisItem{Name: fmt.Sprintf("NDVI_vegetation: %.3f", p.VegetationIndex), YAxis: p.VegetationIndex},
		))
	}
	line.AddSeries("Interpolated NDVI", values, seriesOpts...)

	if len(a.Observations) > 0 {
		points := make([]opts.ScatterData, 0, len(a.Observations))
		for _, o := range a.Observations {
			if !a.Season.Contains(a.Season.DayOffset(o.Date)) {
				continue
			}
			points = append(points, opts.ScatterData{Value: []interface{}{o.Date.UTC().Format(htmlDate), o.Index}})
		}
		scatter := charts.NewScatter()
		scatter.AddSeries("Observed NDVI", points,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#dc0000"}),
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}),
		)
		line.Overlap(scatter)
	}

	return line
}

func coverChart(a *phenology.Analysis) *charts.Line {
	p := a.Parameters
	subtitle := fmt.Sprintf("%s policy, NDVI_soil %.3f, NDVI_vegetation %.3f", p.Policy, p.SoilIndex, p.VegetationIndex)
	line := newLineChart("Ground Cover Percentage with Growth Stages", subtitle, "Ground Cover (%)", 100)
	line.SetXAxis(dates(a))

	lower := make([]float64, len(a.Series))
	upper := make([]float64, len(a.Series))
	values := make([]opts.LineData, len(a.Series))
	for i, d := range a.Series {
		if d.Cover == nil {
			values[i] = opts.LineData{Value: nil}
			continue
		}
		lower[i], upper[i] = d.Cover.PercentageLower, d.Cover.PercentageUpper
		values[i] = opts.LineData{Value: d.Cover.Percentage, Name: d.Stage}
	}
	addBand(line, lower, upper, "#90ee90")

	line.AddSeries("Ground Cover %", values,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: "#008c3c", Width: 2}),
		charts.WithMarkLineNameXAxisItemOpts(stageMarks(a)...),
	)
	return line
}

// WriteComparisonHTML renders the algorithm comparison as one interactive line chart
func WriteComparisonHTML(w io.Writer, results []phenology.Comparison, season phenology.Season) error {
	x := make([]string, season.Days())
	for i := range x {
		x[i] = season.Date(i).Format(htmlDate)
	}

	line := newLineChart("Comparison of Reconstruction Algorithms", season.Start.Format(htmlDate)+" to "+season.End.Format(htmlDate), "NDVI", 1)
	line.SetXAxis(x)
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		data := make([]opts.LineData, len(r.Values))
		for i, v := range r.Values {
			data[i] = opts.LineData{Value: v}
		}
		line.AddSeries(string(r.Algorithm), data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}
	return line.Render(w)
}
