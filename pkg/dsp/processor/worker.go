package processor

import (
	"fmt"

	"github.com/norasector/rmsagc/pkg/dsp/viz"
)

type DataType int

const (
	DataTypeComplex DataType = iota
	DataTypeFloat
)

func (d DataType) String() string {
	switch d {
	case DataTypeComplex:
		return "complex"
	case DataTypeFloat:
		return "float"
	default:
		return fmt.Sprintf("datatype(%d)", int(d))
	}
}

// Observer is called with the output of a block after every segment.
type Observer func(output []float32)

type DSPWorker struct {
	Name        string
	DisplayName string
	InputRate   int
	OutputRate  int

	inputDataType  DataType
	outputDataType DataType

	ccWorker CCWorker
	cfWorker CFWorker
	ffWorker FFWorker

	fOutputBuffer []float32
	cOutputBuffer []complex64

	fft        *viz.FFTPlotter
	timeDomain *viz.TimeDomainPlotter
	vizSize    int
	plotType   viz.PlotType
	floatFFT   bool

	plotOptions []viz.PlotOptions
	observers   []Observer
}

type DSPWorkerOption func(r *DSPWorker)

func WithPlotOptions(opts ...viz.PlotOptions) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.plotOptions = append(r.plotOptions, opts...)
	}
}

func WithVizLength(length int) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.vizSize = length
	}
}

func WithPlotType(plotType viz.PlotType) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.plotType = plotType
	}
}

// WithFloatFFTPlot adds a spectrum plot for a float output.
func WithFloatFFTPlot() DSPWorkerOption {
	return func(r *DSPWorker) {
		r.floatFFT = true
	}
}

// WithObserver registers fn to be called with every float output segment.
func WithObserver(fn Observer) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.observers = append(r.observers, fn)
	}
}

func newWorker(name, displayName string, inputRate, outputRate int, in, out DataType, opts []DSPWorkerOption) *DSPWorker {
	ret := &DSPWorker{
		Name:           name,
		DisplayName:    displayName,
		InputRate:      inputRate,
		OutputRate:     outputRate,
		inputDataType:  in,
		outputDataType: out,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func NewDSPWorkerCC(name, displayName string, inputRate, outputRate int, worker CCWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeComplex, DataTypeComplex, opts)
	ret.ccWorker = worker
	return ret
}

func NewDSPWorkerCF(name, displayName string, inputRate, outputRate int, worker CFWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeComplex, DataTypeFloat, opts)
	ret.cfWorker = worker
	return ret
}

func NewDSPWorkerFF(name, displayName string, inputRate, outputRate int, worker FFWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeFloat, DataTypeFloat, opts)
	ret.ffWorker = worker
	return ret
}

// Complex in, complex out
type CCWorker interface {
	WorkBuffer([]complex64, []complex64) int
	PredictOutputSize(int) int
}

// Complex in, float out
type CFWorker interface {
	WorkBuffer([]complex64, []float32) int
	PredictOutputSize(int) int
}

// Float in, float out
type FFWorker interface {
	WorkBuffer([]float32, []float32) int
	PredictOutputSize(int) int
}
