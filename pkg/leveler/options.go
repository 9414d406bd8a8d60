package leveler

import (
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/rmsagc/pkg/dsp/viz"
	"github.com/norasector/rmsagc/pkg/leveler/config"
	"github.com/norasector/rmsagc/pkg/leveler/output"
	"github.com/rs/zerolog"
)

type Options struct {
	Input   config.Input
	AGC     config.AGC
	Filters config.Filters
	Stream  config.Stream

	// OutputRate resamples the leveled audio. Zero keeps the processing rate.
	OutputRate int
	// DropLate skips outputs whose receive channel is full instead of
	// waiting on them.
	DropLate bool

	AudioOutputs []output.AudioOutput
}

// OptionsFromConfig copies everything but the outputs from c.
func OptionsFromConfig(c *config.Config) Options {
	return Options{
		Input:      c.Input,
		AGC:        c.AGC,
		Filters:    c.Filters,
		Stream:     c.Stream,
		OutputRate: c.OutputRate,
		DropLate:   c.DropLate,
	}
}

type Option func(l *Leveler) error

func WithInfluxDB(writeAPI api.WriteAPI) Option {
	return func(l *Leveler) error {
		l.writeAPI = writeAPI
		return nil
	}
}

func WithImageServer(vizServer *viz.Server) Option {
	return func(l *Leveler) error {
		l.vizServer = vizServer
		return nil
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Leveler) error {
		l.logger = logger
		return nil
	}
}
