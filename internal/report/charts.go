package report

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/resonance.report/internal/units"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// RenderTraceChart renders the run as an interactive HTML line chart:
// measured amplitudes, the smoothed and fitted overlays when analysis
// ran, and a named mark line at each detected frequency. The document is
// rendered to a buffer first so a failed render never emits a partial
// page.
func RenderTraceChart(w io.Writer, in Input) error {
	freqs, amps := in.Trace.Usable()
	if len(freqs) == 0 {
		return fmt.Errorf("no usable samples to chart")
	}

	labels := make([]string, len(freqs))
	rawData := make([]opts.LineData, len(freqs))
	yMin, yMax := amps[0], amps[0]
	for i := range freqs {
		labels[i] = strconv.FormatFloat(units.HzToMHz(freqs[i]), 'f', -1, 64)
		rawData[i] = opts.LineData{Value: amps[i]}
		if amps[i] < yMin {
			yMin = amps[i]
		}
		if amps[i] > yMax {
			yMax = amps[i]
		}
	}
	pad := (yMax - yMin) * 0.05
	if pad == 0 {
		pad = 1.0
	}

	subtitle := fmt.Sprintf("run=%s band=%s points=%d errors=%d",
		in.Run.ID, in.Run.Band, len(in.Trace), in.Trace.ErrorCount())

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Resonance Sweep", Theme: "dark", Width: "1400px", Height: "700px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: in.summaryTitle(), Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frequency (MHz)", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Min: yMin - pad, Max: yMax + pad, Name: "Amplitude", NameLocation: "middle", NameGap: 40}),
	)

	seriesOpts := []charts.SeriesOpts{
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	}
	if in.Analysis != nil {
		marks := make([]opts.MarkLineNameXAxisItem, 0, 3)
		for _, res := range in.Analysis.Successful() {
			marks = append(marks, opts.MarkLineNameXAxisItem{
				Name:  res.Method,
				XAxis: nearestLabel(freqs, labels, res.FrequencyHz),
			})
		}
		if len(marks) > 0 {
			seriesOpts = append(seriesOpts, charts.WithMarkLineNameXAxisItemOpts(marks...))
		}
	}

	line.SetXAxis(labels).AddSeries("measured", rawData, seriesOpts...)

	if in.Analysis != nil && len(in.Analysis.Smoothed) == len(freqs) {
		smData := make([]opts.LineData, len(freqs))
		for i, v := range in.Analysis.Smoothed {
			smData[i] = opts.LineData{Value: v}
		}
		line.AddSeries("smoothed", smData, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	if in.Analysis != nil && in.Analysis.Fit != nil {
		fitData := make([]opts.LineData, len(freqs))
		for i, f := range freqs {
			fitData[i] = opts.LineData{Value: in.Analysis.Fit.Eval(f)}
		}
		line.AddSeries("fit", fitData, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// nearestLabel maps a detected frequency onto the category label of the
// closest sample. Search-method frequencies land exactly on a sample;
// the fitted center is continuous and needs the snap.
func nearestLabel(freqs []float64, labels []string, hz float64) string {
	best := 0
	bestDist := math.Abs(freqs[0] - hz)
	for i := 1; i < len(freqs); i++ {
		if d := math.Abs(freqs[i] - hz); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return labels[best]
}
