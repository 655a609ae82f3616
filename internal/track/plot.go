package track

import (
	"fmt"
	"image/color"
	"io"

	colorful "github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WritePNG renders obs as a lon/lat scatter, one series per vehicle in the
// vehicle's colour.
func WritePNG(w io.Writer, title string, obs []Observation, size vg.Length) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"

	var order []string
	groups := make(map[string]plotter.XYs)
	colours := make(map[string]string)
	for _, o := range obs {
		if _, ok := groups[o.VehicleID]; !ok {
			order = append(order, o.VehicleID)
			colours[o.VehicleID] = o.Color
		}
		groups[o.VehicleID] = append(groups[o.VehicleID], plotter.XY{X: o.Coordinate.Lon(), Y: o.Coordinate.Lat()})
	}

	for _, id := range order {
		sc, err := plotter.NewScatter(groups[id])
		if err != nil {
			return fmt.Errorf("scatter for %s: %w", id, err)
		}
		sc.GlyphStyle.Color = plotColour(colours[id])
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
	}

	wt, err := p.WriterTo(size, size, "png")
	if err != nil {
		return fmt.Errorf("render track plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write track plot: %w", err)
	}
	return nil
}

func plotColour(hex string) color.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.Gray{Y: 0x80}
	}
	return c
}
