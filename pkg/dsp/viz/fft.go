package viz

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/norasector/rmsagc/pkg/dsp/filters/fir"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

// mixAvg is the smoothing factor applied to successive spectra.
const mixAvg = 0.10

// FFTPlotter draws the averaged power spectrum of the last len samples.
type FFTPlotter struct {
	mu           sync.Mutex
	bufFloat     []float32
	bufComplex   []complex64
	sampleRate   int
	len          int
	isComplex    bool
	averagePower []float64
	name         string
	plotOptions  []PlotOptions
}

func NewFFTPlotterFloat(name string, len, sampleRate int) *FFTPlotter {
	return &FFTPlotter{
		bufFloat:     make([]float32, len),
		averagePower: make([]float64, len),
		len:          len,
		sampleRate:   sampleRate,
		name:         name,
	}
}

func NewFFTPlotterComplex(name string, len, sampleRate int) *FFTPlotter {
	return &FFTPlotter{
		bufComplex:   make([]complex64, len),
		averagePower: make([]float64, len),
		len:          len,
		sampleRate:   sampleRate,
		isComplex:    true,
		name:         name,
	}
}

func (p *FFTPlotter) Name() string {
	return p.name
}

// AppendFloat is a no-op on a complex plotter.
func (p *FFTPlotter) AppendFloat(s []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isComplex {
		return
	}
	if len(s) >= p.len {
		copy(p.bufFloat, s[len(s)-p.len:])
		return
	}
	copy(p.bufFloat, p.bufFloat[len(s):])
	copy(p.bufFloat[p.len-len(s):], s)
}

// AppendComplex is a no-op on a float plotter.
func (p *FFTPlotter) AppendComplex(s []complex64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isComplex {
		return
	}
	if len(s) >= p.len {
		copy(p.bufComplex, s[len(s)-p.len:])
		return
	}
	copy(p.bufComplex, p.bufComplex[len(s):])
	copy(p.bufComplex[p.len-len(s):], s)
}

func (p *FFTPlotter) AddPlotOption(opt PlotOptions) {
	p.mu.Lock()
	p.plotOptions = append(p.plotOptions, opt)
	p.mu.Unlock()
}

// spectrum returns the averaged spectrum as (frequency, dB) points.
func (p *FFTPlotter) spectrum() plotter.XYs {
	var coeffs []complex128
	var freqFunc func(int) float64
	shiftFunc := func(i int) int { return i }

	win := fir.BlackmanWindow(p.len)
	norm := 0.42 * float64(p.len)

	if p.isComplex {
		f := fourier.NewCmplxFFT(p.len)
		data := make([]complex128, p.len)
		for i, v := range p.bufComplex {
			data[i] = complex128(v) * complex(float64(win[i])/norm, 0)
		}
		coeffs = f.Coefficients(nil, data)
		shiftFunc = f.ShiftIdx
		freqFunc = f.Freq
	} else {
		f := fourier.NewFFT(p.len)
		data := make([]float64, p.len)
		for i, v := range p.bufFloat {
			data[i] = float64(v) * float64(win[i]) / norm
		}
		coeffs = f.Coefficients(nil, data)
		freqFunc = f.Freq
	}

	ret := make(plotter.XYs, 0, len(coeffs))
	for i := 0; i < len(coeffs); i++ {
		idx := shiftFunc(i)
		mag := cmplx.Abs(coeffs[idx])
		p.averagePower[i] = (1.0-mixAvg)*p.averagePower[i] + mixAvg*mag

		db := -200.0
		if p.averagePower[i] > 0 {
			db = 20 * math.Log10(p.averagePower[i])
		}
		ret = append(ret, plotter.XY{X: freqFunc(idx) * float64(p.sampleRate), Y: db})
	}
	return ret
}

func (p *FFTPlotter) GetImage() *ImageContainer {
	p.mu.Lock()
	defer p.mu.Unlock()

	pl := plotWithDefaults()
	pl.Title.Text = p.name
	pl.Y.Label.Text = "Power (dB)"
	pl.X.Label.Text = "Frequency"
	pl.Y.Max = 0
	pl.Y.Min = -100

	for _, opt := range p.plotOptions {
		opt(pl)
	}

	pl.Add(plotter.NewGrid())
	if err := plotutil.AddLines(pl, "frequency", p.spectrum()); err != nil {
		return nil
	}

	return render(p.name, pl)
}
