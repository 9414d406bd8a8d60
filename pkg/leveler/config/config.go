// Package config holds the YAML configuration of the leveler.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/norasector/rmsagc/pkg/dsp/agc/rmsagc"
	"gopkg.in/yaml.v2"
)

const (
	FormatFloat32 = "f32"
	FormatCS8     = "cs8"
	FormatWAV     = "wav"

	OutputRaw  = "raw"
	OutputWAV  = "wav"
	OutputOpus = "opus"

	DefaultSegmentSize = 4096
)

type Config struct {
	Input      Input          `yaml:"input"`
	AGC        AGC            `yaml:"agc"`
	Filters    Filters        `yaml:"filters"`
	OutputRate int            `yaml:"output_rate"`
	Outputs    []Output       `yaml:"outputs"`
	Stream     Stream         `yaml:"stream"`
	DropLate   bool           `yaml:"drop_late"`
	VizServer  VizServer      `yaml:"viz_server"`
	InfluxDB   InfluxDBConfig `yaml:"influxdb"`
}

type Input struct {
	Path        string `yaml:"path"`
	Format      string `yaml:"format"`
	SampleRate  int    `yaml:"sample_rate"`
	SegmentSize int    `yaml:"segment_size"`
	Realtime    bool   `yaml:"realtime"`

	// IQ (cs8) inputs only.
	TuneOffset int     `yaml:"tune_offset"`
	Deviation  int     `yaml:"deviation"`
	Decimation int     `yaml:"decimation"`
	Squelch    float64 `yaml:"squelch"`
}

type AGC struct {
	Alpha float64 `yaml:"alpha"`
	K     float64 `yaml:"k"`
}

type Filters struct {
	Window          string          `yaml:"window"`
	HighpassHz      float64         `yaml:"highpass_hz"`
	BandpassLowHz   float64         `yaml:"bandpass_low_hz"`
	BandpassHighHz  float64         `yaml:"bandpass_high_hz"`
	TransitionHz    float64         `yaml:"transition_hz"`
	Deemphasis      time.Duration   `yaml:"deemphasis"`
	ToneSuppression ToneSuppression `yaml:"tone_suppression"`
}

type ToneSuppression struct {
	Peaks       int     `yaml:"peaks"`
	Attenuation float64 `yaml:"attenuation"`
	CutoffHz    float64 `yaml:"cutoff_hz"`
}

type Output struct {
	Type         string              `yaml:"type"`
	Path         string              `yaml:"path"`
	Destinations []OutputDestination `yaml:"destinations"`
}

type OutputDestination struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Stream tags every output frame.
type Stream struct {
	SystemID int `yaml:"system_id"`
	ID       int `yaml:"id"`
}

type VizServer struct {
	Port           int           `yaml:"port"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

type InfluxDBConfig struct {
	Host         string `yaml:"host"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// Parse decodes a YAML document and fills in defaults.
func Parse(contents []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(contents, &c); err != nil {
		return nil, fmt.Errorf("error unmarshaling yaml: %w", err)
	}
	c.ApplyDefaults()
	return &c, nil
}

func (c *Config) ApplyDefaults() {
	if c.Input.Format == "" {
		c.Input.Format = FormatFloat32
	}
	if c.Input.SegmentSize == 0 {
		c.Input.SegmentSize = DefaultSegmentSize
	}
	if c.Input.Format == FormatCS8 {
		if c.Input.Deviation == 0 {
			c.Input.Deviation = 5000
		}
		if c.Input.Decimation == 0 {
			c.Input.Decimation = 1
		}
	}
	if c.AGC.Alpha == 0 {
		c.AGC.Alpha = rmsagc.DefaultAlpha
	}
	if c.AGC.K == 0 {
		c.AGC.K = rmsagc.DefaultK
	}
	if c.Filters.TransitionHz == 0 {
		c.Filters.TransitionHz = 100
	}
	if c.Stream.SystemID == 0 {
		c.Stream.SystemID = 1
	}
	if c.Stream.ID == 0 {
		c.Stream.ID = 1
	}
}

// Validate checks fields that cannot be defaulted. The sample rate of WAV
// inputs comes from the file header and may be left empty.
func (c *Config) Validate() error {
	switch c.Input.Format {
	case FormatFloat32, FormatCS8:
		if c.Input.SampleRate <= 0 {
			return fmt.Errorf("input sample_rate required for format %s", c.Input.Format)
		}
	case FormatWAV:
	default:
		return fmt.Errorf("unknown input format %q", c.Input.Format)
	}
	if c.Input.Path == "" {
		return errors.New("input path required")
	}
	if c.Input.SegmentSize < 0 {
		return fmt.Errorf("segment_size %d must be positive", c.Input.SegmentSize)
	}
	if c.OutputRate < 0 {
		return fmt.Errorf("output_rate %d must not be negative", c.OutputRate)
	}
	if _, err := rmsagc.New(c.AGC.Alpha, c.AGC.K); err != nil {
		return fmt.Errorf("agc: %w", err)
	}

	if len(c.Outputs) == 0 {
		return errors.New("at least one output required")
	}
	for i, o := range c.Outputs {
		switch o.Type {
		case OutputRaw, OutputWAV:
			if o.Path == "" {
				return fmt.Errorf("output %d (%s): path required", i, o.Type)
			}
		case OutputOpus:
			if len(o.Destinations) == 0 {
				return fmt.Errorf("output %d (%s): destinations required", i, o.Type)
			}
		default:
			return fmt.Errorf("output %d: unknown type %q", i, o.Type)
		}
	}
	return nil
}
