package plots

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
)

const (
	kdeBandwidthFactor = 0.2
	kdeGridPoints      = 64
	violinHalfWidth    = 0.4
)

// MetricDistribution renders one violin per dataset from the [rep][dataset]
// value matrix onto a shared axis at positions 1..n, with dataset names as
// x tick labels rotated 45 degrees. Each violin is a gaussian KDE with
// bandwidth 0.2 times the SD of its finite values, mirrored around its
// position, plus a median marker. For numClasses >= 2 the y axis spans
// [0.9/numClasses, 1.01] with 0.1 tick steps; otherwise the range follows
// the data. Missing values are dropped per violin; a violin with fewer than
// two finite values or zero spread degrades to its median marker. The plot
// is written to outPath, with a .pdf extension appended if absent.
func MetricDistribution(values [][]float64, datasetNames []string, outPath string, numClasses int, metricLabel string) error {
	if len(values) == 0 {
		return fmt.Errorf("no values to plot")
	}
	n := len(datasetNames)
	if n == 0 {
		return fmt.Errorf("no dataset names given")
	}
	for rep := range values {
		if len(values[rep]) != n {
			return fmt.Errorf("row %d has %d values for %d datasets", rep, len(values[rep]), n)
		}
	}

	if !strings.HasSuffix(outPath, ".pdf") {
		outPath += ".pdf"
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create plot dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = metricLabel
	p.Y.Label.Text = metricLabel
	p.Add(plotter.NewGrid())

	colors := violinColors(n)
	for d, name := range datasetNames {
		col := make([]float64, 0, len(values))
		for rep := range values {
			if v := values[rep][d]; !math.IsNaN(v) && !math.IsInf(v, 0) {
				col = append(col, v)
			}
		}
		if len(col) == 0 {
			continue
		}
		pos := float64(d + 1)
		if err := addViolin(p, col, pos, name, colors[d]); err != nil {
			return fmt.Errorf("violin for %s: %w", name, err)
		}
	}

	ticks := make([]plot.Tick, n)
	for d, name := range datasetNames {
		ticks[d] = plot.Tick{Value: float64(d + 1), Label: name}
	}
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = text.XRight
	p.X.Tick.Label.YAlign = text.YCenter
	p.X.Min = 1 - 2*violinHalfWidth
	p.X.Max = float64(n) + 2*violinHalfWidth

	if numClasses >= 2 {
		lo := 0.9 / float64(numClasses)
		p.Y.Min = lo
		p.Y.Max = 1.01
		p.Y.Tick.Marker = plot.ConstantTicks(chanceTicks(lo))
	}

	p.Legend.Top = true
	p.Legend.Left = true

	if err := p.Save(9*vg.Inch, 9*vg.Inch, outPath); err != nil {
		return fmt.Errorf("save distribution plot: %w", err)
	}
	log.Info().Str("file", outPath).Str("metric", metricLabel).Msg("Distribution plot written")
	return nil
}

// addViolin draws one KDE violin and its median marker at pos.
func addViolin(p *plot.Plot, vals []float64, pos float64, name string, fill color.Color) error {
	med := median(vals)

	h := kdeBandwidthFactor * stat.PopStdDev(vals, nil)
	if len(vals) >= 2 && h > 0 {
		lo, hi := minMax(vals)
		lo, hi = lo-3*h, hi+3*h

		ys := make([]float64, kdeGridPoints)
		step := (hi - lo) / float64(kdeGridPoints-1)
		for i := range ys {
			ys[i] = lo + float64(i)*step
		}
		dens := gaussianKDE(vals, h, ys)

		maxD := 0.0
		for _, d := range dens {
			if d > maxD {
				maxD = d
			}
		}

		pts := make(plotter.XYs, 0, 2*kdeGridPoints)
		for i, y := range ys {
			pts = append(pts, plotter.XY{X: pos + violinHalfWidth*dens[i]/maxD, Y: y})
		}
		for i := kdeGridPoints - 1; i >= 0; i-- {
			pts = append(pts, plotter.XY{X: pos - violinHalfWidth*dens[i]/maxD, Y: ys[i]})
		}

		poly, err := plotter.NewPolygon(pts)
		if err != nil {
			return err
		}
		poly.Color = withAlpha(fill, 160)
		poly.LineStyle.Color = fill
		poly.LineStyle.Width = vg.Points(1)
		p.Add(poly)
		p.Legend.Add(name, poly)
	}

	marker, err := plotter.NewLine(plotter.XYs{
		{X: pos - violinHalfWidth/2, Y: med},
		{X: pos + violinHalfWidth/2, Y: med},
	})
	if err != nil {
		return err
	}
	marker.Color = color.Black
	marker.Width = vg.Points(1.5)
	p.Add(marker)
	return nil
}

// gaussianKDE evaluates the gaussian kernel density of vals with bandwidth
// h at each grid point.
func gaussianKDE(vals []float64, h float64, ys []float64) []float64 {
	dens := make([]float64, len(ys))
	norm := 1.0 / (float64(len(vals)) * h * math.Sqrt(2*math.Pi))
	for i, y := range ys {
		sum := 0.0
		for _, v := range vals {
			z := (y - v) / h
			sum += math.Exp(-0.5 * z * z)
		}
		dens[i] = sum * norm
	}
	return dens
}

// chanceTicks builds 0.1-step ticks from the chance level up to 1.0.
func chanceTicks(lo float64) []plot.Tick {
	var ticks []plot.Tick
	for v := math.Ceil(lo*10) / 10; v <= 1.0+1e-9; v += 0.1 {
		ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf("%.2f", v)})
	}
	return ticks
}

// violinColors spreads n colors over the HSV rainbow.
func violinColors(n int) []color.Color {
	if n < 2 {
		return palette.Rainbow(2, palette.Blue, palette.Red, 0.8, 0.9, 1).Colors()[:1]
	}
	return palette.Rainbow(n, palette.Blue, palette.Red, 0.8, 0.9, 1).Colors()
}

func withAlpha(c color.Color, a uint8) color.Color {
	r, g, b, _ := c.RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: a}
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func minMax(vals []float64) (lo, hi float64) {
	lo, hi = vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
