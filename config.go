package patcher

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultOutputPath = "/opt/etc/xray/configs/04_outbounds.generated.json"

type Options struct {
	// Output is the file the outbounds are written to.
	Output string `yaml:"output"`
	// RestartCommand runs after a changed config has been written.
	RestartCommand []string      `yaml:"restart-command"`
	Timeout        time.Duration `yaml:"timeout"`
	UserAgent      string        `yaml:"user-agent"`
	// Patch treats Output as a full Xray config and only replaces the generated outbounds in it.
	Patch bool `yaml:"patch"`
	// DryRun prints the resulting document instead of writing it.
	DryRun        bool           `yaml:"-"`
	Subscriptions []Subscription `yaml:"subscriptions"`
}

// LoadOptions reads a YAML options file. An empty file yields zero Options.
func LoadOptions(path string) (Options, error) {
	var o Options
	f, err := os.Open(path)
	if err != nil {
		return o, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err = dec.Decode(&o); err != nil && !errors.Is(err, io.EOF) {
		return o, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return o, nil
}

func (o Options) WithDefaults() Options {
	if len(o.Output) <= 0 {
		o.Output = DefaultOutputPath
	}
	if len(o.RestartCommand) <= 0 {
		o.RestartCommand = DefaultRestartCommand
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultFetchTimeout
	}
	if len(o.UserAgent) <= 0 {
		o.UserAgent = DefaultUserAgent
	}
	return o
}
