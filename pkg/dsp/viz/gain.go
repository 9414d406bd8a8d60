package viz

import (
	"math"
	"sync"

	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

// GainPlotter traces a gain value, one point per segment, in dB.
type GainPlotter struct {
	mu          sync.Mutex
	name        string
	size        int
	points      []float64
	plotOptions []PlotOptions
}

func NewGainPlotter(name string, size int) *GainPlotter {
	return &GainPlotter{
		name:   name,
		size:   size,
		points: make([]float64, 0, size),
	}
}

func (g *GainPlotter) Name() string {
	return g.name
}

func (g *GainPlotter) AppendGain(gain float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	db := -200.0
	if gain > 0 {
		db = 20 * math.Log10(gain)
	}
	if len(g.points) == g.size {
		copy(g.points, g.points[1:])
		g.points = g.points[:g.size-1]
	}
	g.points = append(g.points, db)
}

func (g *GainPlotter) AddPlotOption(opt PlotOptions) {
	g.mu.Lock()
	g.plotOptions = append(g.plotOptions, opt)
	g.mu.Unlock()
}

func (g *GainPlotter) GetImage() *ImageContainer {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.points) < 2 {
		return nil
	}

	p := plotWithDefaults()
	p.Title.Text = g.name
	p.Y.Label.Text = "Gain (dB)"
	p.X.Label.Text = "segment"

	for _, opt := range g.plotOptions {
		opt(p)
	}

	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(g.points))
	for i, db := range g.points {
		xys[i] = plotter.XY{X: float64(i), Y: db}
	}
	if err := plotutil.AddLines(p, "gain", xys); err != nil {
		return nil
	}

	return render(g.name, p)
}
