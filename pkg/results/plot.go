package results

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotProfile saves three line charts of the radial profile of one image into
// dir: <name>_nuclei.png (count per annulus), <name>_stain.png (area per
// annulus) and <name>_intersections.png (spheroid mask crossings per circle).
// Count and area points sit at the annulus mid radius, crossings at the
// circle radius.
func PlotProfile(dir, name string, rows []ProfileRow) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}

	counts := make(plotter.XYs, len(rows))
	areas := make(plotter.XYs, len(rows))
	crossings := make(plotter.XYs, len(rows))
	for i, r := range rows {
		mid := (r.RadiusMicrons + r.OuterRadiusMicrons) / 2
		counts[i] = plotter.XY{X: mid, Y: float64(r.NucleusCount)}
		areas[i] = plotter.XY{X: mid, Y: r.StainAreaMicrons2}
		crossings[i] = plotter.XY{X: r.RadiusMicrons, Y: float64(r.Intersections)}
	}

	charts := []struct {
		file   string
		title  string
		ylabel string
		pts    plotter.XYs
		color  color.RGBA
	}{
		{name + "_nuclei.png", fmt.Sprintf("%s - Nuclei per annulus", name), "Nuclei", counts, color.RGBA{R: 200, A: 255}},
		{name + "_stain.png", fmt.Sprintf("%s - Stain area per annulus", name), "Area (µm²)", areas, color.RGBA{G: 150, A: 255}},
		{name + "_intersections.png", fmt.Sprintf("%s - Spheroid intersections", name), "Intersections", crossings, color.RGBA{B: 200, A: 255}},
	}

	var paths []string
	for _, c := range charts {
		p := plot.New()
		p.Title.Text = c.title
		p.X.Label.Text = "Distance from spheroid center (µm)"
		p.Y.Label.Text = c.ylabel
		p.Add(plotter.NewGrid())

		line, points, err := plotter.NewLinePoints(c.pts)
		if err != nil {
			return paths, fmt.Errorf("building %s: %w", c.file, err)
		}
		line.Color = c.color
		line.Width = vg.Points(1.5)
		points.Color = c.color
		p.Add(line, points)

		path := filepath.Join(dir, c.file)
		if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
			return paths, fmt.Errorf("saving %s: %w", c.file, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
