package export

import (
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/depth.refine/internal/mvs"
	"github.com/banshee-data/depth.refine/internal/mvs/grid"
)

// crossGrid adapts a similarity volume cross-section (the ROI's middle
// row, x against depth index) to the plotter heatmap interface.
type crossGrid struct {
	vol   *grid.Vol3[float32]
	row   int
	width int
}

func (g crossGrid) Dims() (c, r int)   { return g.width, g.vol.Depths() }
func (g crossGrid) Z(c, r int) float64 { return float64(g.vol.At(c, g.row, r)) }
func (g crossGrid) X(c int) float64    { return float64(c) }
func (g crossGrid) Y(r int) float64    { return float64(r) }

// writeVolumeCrossPNG renders the cross-section as a PNG heatmap.
func (e *Exporter) writeVolumeCrossPNG(name string, vol *grid.Vol3[float32], roi mvs.ROI) error {
	g := crossGrid{vol: vol, row: crossRow(roi), width: roi.Width()}
	hm := plotter.NewHeatMap(g, moreland.Kindlmann().Palette(255))

	p := plot.New()
	p.Title.Text = "similarity volume cross-section"
	p.X.Label.Text = "x (buffer px)"
	p.Y.Label.Text = "depth index"
	p.Add(hm)

	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render heatmap: %w", err)
	}
	w, err := e.create(name)
	if err != nil {
		return err
	}
	defer w.Close()
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write heatmap: %w", err)
	}
	return nil
}

// writeVolumeCrossHTML renders the same cross-section as an interactive
// HTML heatmap for quick browser inspection.
func (e *Exporter) writeVolumeCrossHTML(name string, vol *grid.Vol3[float32], roi mvs.ROI) error {
	row := crossRow(roi)
	width := roi.Width()
	depths := vol.Depths()

	xAxis := make([]string, width)
	for x := 0; x < width; x++ {
		xAxis[x] = itoa(x)
	}
	yAxis := make([]string, depths)
	data := make([]opts.HeatMapData, 0, width*depths)
	maxVal := float32(0)
	for d := 0; d < depths; d++ {
		yAxis[d] = itoa(d)
		for x := 0; x < width; x++ {
			v := vol.At(x, row, d)
			if v > maxVal {
				maxVal = v
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{x, d, v}})
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Similarity Volume Cross-Section",
			Width:     "1200px",
			Height:    "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Similarity volume cross-section",
			Subtitle: fmt.Sprintf("row=%d width=%d depths=%d", row, width, depths),
		}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xAxis}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: yAxis}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        maxVal,
			InRange: &opts.VisualMapInRange{
				Color: []string{"#440154", "#3e4989", "#26828e", "#35b779", "#b5de2b", "#fde725"},
			},
		}),
	)
	hm.AddSeries("similarity", data)

	w, err := e.create(name)
	if err != nil {
		return err
	}
	defer w.Close()
	return hm.Render(w)
}

// writeStats9pCSV samples nine fixed pixels across the ROI and writes
// each pixel's full depth profile as one CSV row.
func (e *Exporter) writeStats9pCSV(name string, vol *grid.Vol3[float32], roi mvs.ROI) error {
	w, err := e.create(name)
	if err != nil {
		return err
	}
	defer w.Close()

	cw := csv.NewWriter(w)
	header := []string{"x", "y"}
	for d := 0; d < vol.Depths(); d++ {
		header = append(header, "d"+itoa(d))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, px := range stats9pPixels(roi) {
		row := []string{itoa(roi.X.Begin + px[0]), itoa(roi.Y.Begin + px[1])}
		for d := 0; d < vol.Depths(); d++ {
			row = append(row, strconv.FormatFloat(float64(vol.At(px[0], px[1], d)), 'f', 6, 32))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
