package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/rmsagc/pkg/dsp/viz"
	"github.com/norasector/rmsagc/pkg/leveler"
	"github.com/norasector/rmsagc/pkg/leveler/config"
	"github.com/norasector/rmsagc/pkg/leveler/output"
	"github.com/norasector/rmsagc/pkg/leveler/output/opus"
	"github.com/norasector/rmsagc/pkg/leveler/source"
	"github.com/norasector/rmsagc/pkg/util"
	"github.com/norasector/turbine-common/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)

	configFile := flag.String("config", "", "YAML config file")
	input := flag.String("input", "", "input file, - for stdin (overrides config)")
	format := flag.String("format", "", "input format: f32, cs8 or wav (overrides config)")
	sampleRate := flag.Int("rate", 0, "input sample rate for raw formats (overrides config)")
	outputPath := flag.String("output", "", "raw f32 output file, - for stdout (overrides config outputs)")
	alpha := flag.Float64("alpha", 0, "AGC smoothing coefficient in (0, 1]")
	k := flag.Float64("k", 0, "AGC reference level")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	if *debug {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	}

	opts := &config.Config{}
	if *configFile != "" {
		configContents, err := os.ReadFile(*configFile)
		if err != nil {
			log.Fatal().Err(err).Msg("error reading config file")
		}
		opts, err = config.Parse(configContents)
		if err != nil {
			log.Fatal().Err(err).Msg("error parsing config file")
		}
	}

	if *input != "" {
		opts.Input.Path = *input
	}
	if *format != "" {
		opts.Input.Format = *format
	}
	if *sampleRate != 0 {
		opts.Input.SampleRate = *sampleRate
	}
	if *outputPath != "" {
		opts.Outputs = []config.Output{{Type: config.OutputRaw, Path: *outputPath}}
	}
	if *alpha != 0 {
		opts.AGC.Alpha = *alpha
	}
	if *k != 0 {
		opts.AGC.K = *k
	}
	opts.ApplyDefaults()

	if err := opts.Validate(); err != nil {
		flag.Usage()
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := run(opts); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("exited program")
	}
}

func run(opts *config.Config) error {
	src, err := source.Open(opts.Input)
	if err != nil {
		return err
	}

	writeAPI := util.NewWriteAPI(opts.InfluxDB.Host, opts.InfluxDB.Token, opts.InfluxDB.Organization, opts.InfluxDB.Bucket)
	defer writeAPI.Flush()

	levelerOpts := []leveler.Option{
		leveler.WithInfluxDB(writeAPI),
		leveler.WithLogger(log.Logger),
	}
	if opts.VizServer.Port != 0 {
		levelerOpts = append(levelerOpts, leveler.WithImageServer(viz.NewServer(opts.VizServer.Port, opts.VizServer.UpdateInterval)))
	}

	lev, err := leveler.New(src, leveler.OptionsFromConfig(opts), levelerOpts...)
	if err != nil {
		src.Stop()
		return fmt.Errorf("failed to create leveler: %w", err)
	}

	closers, err := addOutputs(lev, opts, writeAPI)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	if err != nil {
		lev.Stop()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	eg.Go(func() error {
		select {
		case <-sigChan:
			log.Info().Msg("stopping")
		case <-ctx.Done():
		}
		return lev.Stop()
	})

	eg.Go(func() error {
		// Ends the signal watcher once the input is exhausted.
		defer cancel()
		return lev.Start(ctx)
	})

	return eg.Wait()
}

// addOutputs returns the files it opened, even on error.
func addOutputs(lev *leveler.Leveler, opts *config.Config, writeAPI api.WriteAPI) ([]io.Closer, error) {
	var closers []io.Closer
	outputRate := lev.OutputRate()

	for _, o := range opts.Outputs {
		switch o.Type {
		case config.OutputRaw:
			if o.Path == "-" {
				lev.AddOutput(output.NewRawOutput(os.Stdout))
				continue
			}
			f, err := os.Create(o.Path)
			if err != nil {
				return closers, fmt.Errorf("failed to create output: %w", err)
			}
			closers = append(closers, f)
			lev.AddOutput(output.NewRawOutput(f))

		case config.OutputWAV:
			f, err := os.Create(o.Path)
			if err != nil {
				return closers, fmt.Errorf("failed to create output: %w", err)
			}
			closers = append(closers, f)
			lev.AddOutput(output.NewWAVOutput(f, outputRate))

		case config.OutputOpus:
			dests, err := output.ResolveDestinations(o.Destinations)
			if err != nil {
				return closers, fmt.Errorf("failed to resolve destinations: %w", err)
			}
			enc, err := opus.NewOutput(outputRate,
				types.TalkGroup{SystemID: opts.Stream.SystemID, ID: opts.Stream.ID},
				output.NewUDPSender(dests, writeAPI, log.Logger))
			if err != nil {
				return closers, err
			}
			lev.AddOutput(enc)
		}
	}

	return closers, nil
}
