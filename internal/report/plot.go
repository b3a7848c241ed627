package report

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/resonance.report/internal/detect"
	"github.com/banshee-data/resonance.report/internal/units"
)

var (
	rawColor      = color.RGBA{R: 68, G: 119, B: 170, A: 255}
	smoothedColor = color.RGBA{R: 238, G: 153, B: 51, A: 255}
	fitColor      = color.RGBA{R: 34, G: 136, B: 85, A: 255}

	methodColors = map[string]color.Color{
		detect.MethodMinimum:      color.RGBA{R: 170, G: 68, B: 153, A: 255},
		detect.MethodInvertedPeak: color.RGBA{R: 204, G: 51, B: 68, A: 255},
		detect.MethodGaussianFit:  color.RGBA{R: 102, G: 102, B: 102, A: 255},
	}
)

// RenderTracePlot renders the run to a PNG: the measured amplitude
// series, the smoothed overlay and fitted curve when analysis ran, and
// a vertical dashed marker at each method's detected frequency.
func RenderTracePlot(in Input) ([]byte, error) {
	freqs, amps := in.Trace.Usable()
	if len(freqs) == 0 {
		return nil, fmt.Errorf("no usable samples to plot")
	}

	p := plot.New()
	p.Title.Text = in.summaryTitle()
	p.X.Label.Text = "Frequency (MHz)"
	p.Y.Label.Text = "Amplitude"

	rawPts := make(plotter.XYs, len(freqs))
	yMin, yMax := amps[0], amps[0]
	for i := range freqs {
		rawPts[i] = plotter.XY{X: units.HzToMHz(freqs[i]), Y: amps[i]}
		if amps[i] < yMin {
			yMin = amps[i]
		}
		if amps[i] > yMax {
			yMax = amps[i]
		}
	}
	rawLine, err := plotter.NewLine(rawPts)
	if err != nil {
		return nil, fmt.Errorf("measured series: %w", err)
	}
	rawLine.Color = rawColor
	rawLine.Width = vg.Points(1)
	p.Add(rawLine)
	p.Legend.Add("measured", rawLine)

	if in.Analysis != nil && len(in.Analysis.Smoothed) == len(freqs) {
		smPts := make(plotter.XYs, len(freqs))
		for i := range freqs {
			smPts[i] = plotter.XY{X: units.HzToMHz(freqs[i]), Y: in.Analysis.Smoothed[i]}
		}
		smLine, err := plotter.NewLine(smPts)
		if err != nil {
			return nil, fmt.Errorf("smoothed series: %w", err)
		}
		smLine.Color = smoothedColor
		smLine.Width = vg.Points(1.5)
		p.Add(smLine)
		p.Legend.Add("smoothed", smLine)
	}

	if in.Analysis != nil && in.Analysis.Fit != nil {
		fit := in.Analysis.Fit
		fitPts := make(plotter.XYs, len(freqs))
		for i := range freqs {
			fitPts[i] = plotter.XY{X: units.HzToMHz(freqs[i]), Y: fit.Eval(freqs[i])}
		}
		fitLine, err := plotter.NewLine(fitPts)
		if err != nil {
			return nil, fmt.Errorf("fitted series: %w", err)
		}
		fitLine.Color = fitColor
		fitLine.Width = vg.Points(1.5)
		p.Add(fitLine)
		p.Legend.Add("fit", fitLine)
	}

	if in.Analysis != nil {
		for _, res := range in.Analysis.Successful() {
			mhz := units.HzToMHz(res.FrequencyHz)
			marker, err := plotter.NewLine(plotter.XYs{
				{X: mhz, Y: yMin},
				{X: mhz, Y: yMax},
			})
			if err != nil {
				return nil, fmt.Errorf("%s marker: %w", res.Method, err)
			}
			if c, ok := methodColors[res.Method]; ok {
				marker.Color = c
			} else {
				marker.Color = color.Gray{Y: 96}
			}
			marker.Width = vg.Points(1)
			marker.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
			p.Add(marker)
			p.Legend.Add(res.Method, marker)
		}
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("render trace plot: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render trace plot: %w", err)
	}
	return buf.Bytes(), nil
}
