// Package processor runs a fixed, linear chain of DSP blocks over segments
// of samples.
package processor

import (
	"errors"
	"fmt"
	"time"

	"github.com/norasector/rmsagc/pkg/dsp/viz"
	"github.com/norasector/turbine-common/types"
)

const (
	defaultComplexVizLength = 1024
	defaultFloatVizLength   = 128
)

// Processor is not safe for concurrent use; blocks keep state between
// segments.
type Processor struct {
	Name        string
	InputName   string
	blocks      []*DSPWorker
	vizServer   *viz.Server
	initialized bool
	inputFFT    *viz.FFTPlotter
}

// NewProcessor returns an empty chain. vizServer may be nil.
func NewProcessor(name, inputName string, vizServer *viz.Server) *Processor {
	return &Processor{
		Name:      name,
		InputName: inputName,
		vizServer: vizServer,
	}
}

func (p *Processor) AddBlock(worker *DSPWorker) {
	p.blocks = append(p.blocks, worker)
}

func (p *Processor) Blocks() []*DSPWorker {
	return p.blocks
}

// InputType is the data type of the first block.
func (p *Processor) InputType() DataType {
	if len(p.blocks) == 0 {
		return DataTypeFloat
	}
	return p.blocks[0].inputDataType
}

// OutputRate is the sample rate of the last block.
func (p *Processor) OutputRate() int {
	if len(p.blocks) == 0 {
		return 0
	}
	return p.blocks[len(p.blocks)-1].OutputRate
}

func (p *Processor) Initialize() error {
	if p.initialized {
		return nil
	}
	if len(p.blocks) == 0 {
		return errors.New("must specify at least 1 block")
	}

	for i := 1; i < len(p.blocks); i++ {
		cur, next := p.blocks[i-1], p.blocks[i]
		if cur.outputDataType != next.inputDataType {
			return fmt.Errorf("cur: %s next %s data type mismatch (%s %s)", cur.Name, next.Name, cur.outputDataType, next.inputDataType)
		}
		if cur.OutputRate != next.InputRate {
			return fmt.Errorf("cur: %s next %s rate mismatch (%d %d)", cur.Name, next.Name, cur.OutputRate, next.InputRate)
		}
	}

	if p.vizServer != nil {
		p.registerPlots()
	}

	p.initialized = true
	return nil
}

func (p *Processor) registerPlots() {
	vizIndex := 0
	nextIndexString := func(s string) string {
		vizIndex++
		return fmt.Sprintf("%02d. %s", vizIndex, s)
	}

	first := p.blocks[0]
	if first.inputDataType == DataTypeComplex {
		p.inputFFT = viz.NewFFTPlotterComplex(nextIndexString(p.InputName), defaultComplexVizLength, first.InputRate)
	} else {
		p.inputFFT = viz.NewFFTPlotterFloat(nextIndexString(p.InputName), defaultComplexVizLength, first.InputRate)
	}
	p.vizServer.Register(p.Name, p.inputFFT)

	for _, cur := range p.blocks {
		switch cur.outputDataType {
		case DataTypeComplex:
			vizLength := defaultComplexVizLength
			if cur.vizSize > 0 {
				vizLength = cur.vizSize
			}
			cur.fft = viz.NewFFTPlotterComplex(nextIndexString(cur.DisplayName), vizLength, cur.OutputRate)
			for _, opt := range cur.plotOptions {
				cur.fft.AddPlotOption(opt)
			}
			p.vizServer.Register(p.Name, cur.fft)

		case DataTypeFloat:
			vizLength := defaultFloatVizLength
			if cur.vizSize > 0 {
				vizLength = cur.vizSize
			}
			cur.timeDomain = viz.NewTimeDomainPlotter(nextIndexString(cur.DisplayName), vizLength)
			for _, opt := range cur.plotOptions {
				cur.timeDomain.AddPlotOption(opt)
			}
			if cur.plotType != viz.PlotTypeDefault {
				cur.timeDomain.SetPlotType(cur.plotType)
			}
			p.vizServer.Register(p.Name, cur.timeDomain)

			if cur.floatFFT {
				cur.fft = viz.NewFFTPlotterFloat(nextIndexString(cur.DisplayName+" (FFT)"), defaultComplexVizLength, cur.OutputRate)
				p.vizServer.Register(p.Name, cur.fft)
			}
		}
	}
}

// processData runs the chain. Exactly one of cmplxInput and floatInput is
// used, selected by the input type of the first block.
func (p *Processor) processData(cmplxInput []complex64, floatInput []float32, metrics map[string]interface{}) ([]float32, error) {
	if !p.initialized {
		if err := p.Initialize(); err != nil {
			return nil, err
		}
	}

	if p.inputFFT != nil {
		p.inputFFT.AppendComplex(cmplxInput)
		p.inputFFT.AppendFloat(floatInput)
	}

	for _, block := range p.blocks {
		var work func()

		switch block.inputDataType {
		case DataTypeComplex:
			switch block.outputDataType {
			case DataTypeComplex:
				block.cOutputBuffer = growComplex(block.cOutputBuffer, block.ccWorker.PredictOutputSize(len(cmplxInput)))
				work = func() {
					length := block.ccWorker.WorkBuffer(cmplxInput, block.cOutputBuffer)
					cmplxInput = block.cOutputBuffer[:length]
					if block.fft != nil {
						block.fft.AppendComplex(cmplxInput)
					}
				}

			case DataTypeFloat:
				block.fOutputBuffer = growFloat(block.fOutputBuffer, block.cfWorker.PredictOutputSize(len(cmplxInput)))
				work = func() {
					length := block.cfWorker.WorkBuffer(cmplxInput, block.fOutputBuffer)
					floatInput = block.fOutputBuffer[:length]
					cmplxInput = nil
				}
			default:
				return nil, fmt.Errorf("%s unknown output type %s for input %s", block.Name, block.outputDataType, block.inputDataType)
			}

		case DataTypeFloat:
			if block.outputDataType != DataTypeFloat {
				return nil, fmt.Errorf("%s unknown output type %s for input %s", block.Name, block.outputDataType, block.inputDataType)
			}
			block.fOutputBuffer = growFloat(block.fOutputBuffer, block.ffWorker.PredictOutputSize(len(floatInput)))
			work = func() {
				length := block.ffWorker.WorkBuffer(floatInput, block.fOutputBuffer)
				floatInput = block.fOutputBuffer[:length]
			}

		default:
			return nil, fmt.Errorf("unknown input type %s", block.inputDataType)
		}

		start := time.Now()
		work()
		metrics[fmt.Sprintf("%s_duration", block.Name)] = time.Since(start).Microseconds()

		if block.outputDataType == DataTypeFloat {
			if block.timeDomain != nil {
				block.timeDomain.AppendFloat(floatInput)
			}
			if block.fft != nil {
				block.fft.AppendFloat(floatInput)
			}
			for _, fn := range block.observers {
				fn(floatInput)
			}
		}
	}

	// Block buffers are reused on the next segment.
	ret := make([]float32, len(floatInput))
	copy(ret, floatInput)
	return ret, nil
}

// growFloat returns buf when it can hold size samples; otherwise a new buffer
// with headroom for rate converters that overshoot their prediction.
func growFloat(buf []float32, size int) []float32 {
	if len(buf) >= size {
		return buf
	}
	return make([]float32, size*2)
}

func growComplex(buf []complex64, size int) []complex64 {
	if len(buf) >= size {
		return buf
	}
	return make([]complex64, size*2)
}

func (p *Processor) ProcessFloat(input *types.SegmentFloat32, metrics map[string]interface{}) (*types.SegmentFloat32, error) {
	if p.InputType() != DataTypeFloat {
		return nil, fmt.Errorf("invalid input type: got %s expected %s", DataTypeFloat, p.InputType())
	}

	out, err := p.processData(nil, input.Data, metrics)
	if err != nil {
		return nil, err
	}

	return &types.SegmentFloat32{
		SegmentNumber: input.SegmentNumber,
		Frequency:     input.Frequency,
		Data:          out,
	}, nil
}

func (p *Processor) ProcessComplexToFloat(input *types.SegmentComplex64, metrics map[string]interface{}) (*types.SegmentFloat32, error) {
	if p.InputType() != DataTypeComplex {
		return nil, fmt.Errorf("invalid input type: got %s expected %s", DataTypeComplex, p.InputType())
	}
	if len(p.blocks) > 0 && p.blocks[len(p.blocks)-1].outputDataType != DataTypeFloat {
		return nil, errors.New("invalid output type: chain must end in a float block")
	}

	out, err := p.processData(input.Data, nil, metrics)
	if err != nil {
		return nil, err
	}

	return &types.SegmentFloat32{
		SegmentNumber: input.SegmentNumber,
		Data:          out,
	}, nil
}
