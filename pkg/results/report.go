package results

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Batch collects what a run produced so it can be reported at the end.
type Batch struct {
	Summaries []ImageSummary
	Profiles  map[string][]ProfileRow
	Failures  []Failure
}

// WriteHTMLReport renders an interactive page with the batch summary and the
// nucleus, stain and intersection profiles of every image.
func WriteHTMLReport(path string, b Batch) error {
	summaries := make([]ImageSummary, len(b.Summaries))
	copy(summaries, b.Summaries)
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ImageName < summaries[j].ImageName })

	page := components.NewPage()
	page.PageTitle = "Spheroid expansion"

	names := make([]string, len(summaries))
	radius := make([]opts.BarData, len(summaries))
	counts := make([]opts.BarData, len(summaries))
	for i, s := range summaries {
		names[i] = s.ImageName
		radius[i] = opts.BarData{Value: s.SpheroidRadiusMicrons}
		counts[i] = opts.BarData{Value: s.NucleusCount}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Batch summary", Subtitle: fmt.Sprintf("images=%d failures=%d", len(summaries), len(b.Failures))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).
		AddSeries("spheroid radius (µm)", radius).
		AddSeries("nuclei", counts)
	page.AddCharts(bar)

	page.AddCharts(
		profileChart("Nuclei per annulus", summaries, b.Profiles, func(r ProfileRow) float64 { return float64(r.NucleusCount) }),
		profileChart("Stain area per annulus (µm²)", summaries, b.Profiles, func(r ProfileRow) float64 { return r.StainAreaMicrons2 }),
		profileChart("Spheroid intersections per circle", summaries, b.Profiles, func(r ProfileRow) float64 { return float64(r.Intersections) }),
	)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}

func profileChart(title string, summaries []ImageSummary, profiles map[string][]ProfileRow, value func(ProfileRow) float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "radius (µm)", Type: "value"}),
	)
	for _, s := range summaries {
		rows := profiles[s.ImageName]
		data := make([]opts.LineData, len(rows))
		for i, r := range rows {
			data[i] = opts.LineData{Value: []interface{}{r.RadiusMicrons, value(r)}}
		}
		line.AddSeries(s.ImageName, data)
	}
	return line
}
