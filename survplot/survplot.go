// Package survplot renders figures for fitted survival models: a hazard
// ratio forest plot and Kaplan-Meier survival curves.
package survplot

import (
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/brookluers/coxsim/coxfit"
)

var palette = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
}

// HazardRatios draws one point per covariate at its hazard ratio, with a
// horizontal segment for the 95% confidence interval and a dashed reference
// line at HR=1.
func HazardRatios(m *coxfit.Model, path string) error {

	p := plot.New()
	p.Title.Text = "Hazard ratios with 95% confidence intervals"
	p.X.Label.Text = "Hazard ratio"

	names := make([]string, len(m.Covariates))
	for i, c := range m.Covariates {
		names[i] = c.Name
	}
	p.NominalY(names...)

	for i, c := range m.Covariates {
		y := float64(i)

		ci, err := plotter.NewLine(plotter.XYs{{X: c.LCL, Y: y}, {X: c.UCL, Y: y}})
		if err != nil {
			return err
		}
		ci.LineStyle.Width = vg.Points(1.5)
		p.Add(ci)

		pt, err := plotter.NewScatter(plotter.XYs{{X: c.HazardRatio, Y: y}})
		if err != nil {
			return err
		}
		pt.GlyphStyle.Radius = vg.Points(3)
		pt.GlyphStyle.Shape = draw.CircleGlyph{}
		col := palette[0]
		if c.HazardRatio > 1 {
			col = palette[3]
		}
		pt.GlyphStyle.Color = col
		p.Add(pt)
	}

	ref, err := plotter.NewLine(plotter.XYs{
		{X: 1, Y: -0.5}, {X: 1, Y: float64(len(m.Covariates)) - 0.5},
	})
	if err != nil {
		return err
	}
	ref.LineStyle.Color = palette[3]
	ref.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(ref)

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// KaplanMeier draws step survival curves for a set of groups.
func KaplanMeier(curves []coxfit.KMCurve, title, path string) error {

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (days)"
	p.Y.Label.Text = "Survival probability"
	p.Y.Min = 0
	p.Y.Max = 1
	p.Legend.Top = true

	for i, c := range curves {

		pts := make(plotter.XYs, 0, len(c.Time)+1)
		pts = append(pts, plotter.XY{X: 0, Y: 1})
		for j := range c.Time {
			pts = append(pts, plotter.XY{X: c.Time[j], Y: c.SurvProb[j]})
		}

		ln, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		ln.StepStyle = plotter.PostStep
		ln.LineStyle.Width = vg.Points(1.5)
		ln.LineStyle.Color = palette[i%len(palette)]
		p.Add(ln)
		p.Legend.Add(c.Label, ln)
	}

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
