package config

import (
	cli "github.com/spf13/pflag"
)

// Flags are the command line overrides shared by the binaries.
type Flags struct {
	fs *cli.FlagSet

	ConfigPath *string
	EnvFile    *string

	logLevel *string
	input    *string
	device   *string
	engine   *string
	model    *string
	metrics  *string
	bus      *string
}

func RegisterFlags(fs *cli.FlagSet) *Flags {
	return &Flags{
		fs:         fs,
		ConfigPath: fs.StringP("config", "c", "", "YAML config file"),
		EnvFile:    fs.StringP("env", "e", ".env", "Env file path"),
		logLevel:   fs.StringP("log", "l", "info", "Log level"),
		input:      fs.StringP("input", "i", "", "Replay an audio file instead of the microphone"),
		device:     fs.StringP("device", "d", "", "Input device name substring"),
		engine:     fs.String("engine", "vosk", "Speech engine (vosk, whisper)"),
		model:      fs.StringP("model", "m", "model", "Speech model path"),
		metrics:    fs.String("metrics", "", "Serve Prometheus metrics on this address"),
		bus:        fs.String("bus", "", "Websocket URL to publish events to"),
	}
}

// Apply copies the flags set on the command line onto cfg.
func (f *Flags) Apply(cfg *Config) {
	set := func(name string, dst *string, v *string) {
		if f.fs.Changed(name) {
			*dst = *v
		}
	}
	set("log", &cfg.LogLevel, f.logLevel)
	set("input", &cfg.Audio.Input, f.input)
	set("device", &cfg.Audio.Device, f.device)
	set("engine", &cfg.Engine.Kind, f.engine)
	set("model", &cfg.Engine.Model, f.model)
	set("metrics", &cfg.Metrics.Addr, f.metrics)
	set("bus", &cfg.Bus.URL, f.bus)
}

// Load reads the config and env files named by the flags, then applies the
// flags themselves.
func (f *Flags) Load() (*Config, error) {
	cfg, err := Load(*f.ConfigPath, *f.EnvFile)
	if err != nil {
		return nil, err
	}
	f.Apply(cfg)
	return cfg, nil
}
