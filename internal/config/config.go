// Package config assembles the daemon configuration from built-in defaults,
// an optional YAML file, the environment (including a .env file) and command
// line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"telly/internal/transport"
)

const (
	BackendLlama  = "llama"
	BackendOpenAI = "openai"
)

var (
	validEngines   = []string{"vosk", "whisper"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Audio      AudioConfig      `yaml:"audio"`
	Engine     EngineConfig     `yaml:"engine"`
	Completion CompletionConfig `yaml:"completion"`
	Transport  TransportConfig  `yaml:"transport"`
	Control    ControlConfig    `yaml:"control"`
	Bus        BusConfig        `yaml:"bus"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Feedback   FeedbackConfig   `yaml:"feedback"`
}

type AudioConfig struct {
	// Device is a substring of the input device name; empty picks the
	// system default.
	Device       string `yaml:"device"`
	HardwareRate int    `yaml:"hardware_rate"`
	ModelRate    int    `yaml:"model_rate"`
	// ModelBlock is the frame length the engines see; the capture block is
	// ModelBlock times the decimation ratio.
	ModelBlock int `yaml:"model_block"`

	// Input replays an audio file instead of opening the microphone.
	Input    string `yaml:"input"`
	Realtime bool   `yaml:"realtime"`
}

type EngineConfig struct {
	Kind           string        `yaml:"kind"`
	Model          string        `yaml:"model"`
	WakePhrases    []string      `yaml:"wake_phrases"`
	CommandTimeout time.Duration `yaml:"command_timeout"`

	Language string `yaml:"language"`
	Threads  int    `yaml:"threads"`
	VADMode  int    `yaml:"vad_mode"`
}

type CompletionConfig struct {
	Backend     string        `yaml:"backend"`
	ControlURL  string        `yaml:"control_url"`
	ChatURL     string        `yaml:"chat_url"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`

	OpenAI OpenAIConfig `yaml:"openai"`
}

type OpenAIConfig struct {
	BaseURL      string `yaml:"base_url"`
	ControlModel string `yaml:"control_model"`
	ChatModel    string `yaml:"chat_model"`
	// SocksProxy routes requests through a SOCKS5 proxy when set.
	SocksProxy string `yaml:"socks_proxy"`
	// APIKey only comes from OPENAI_API_KEY.
	APIKey string `yaml:"-"`
}

type TransportConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

func (t TransportConfig) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

type ControlConfig struct {
	Socket string `yaml:"socket"`
}

type BusConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type FeedbackConfig struct {
	// Chime is an mp3 played on every wake.
	Chime string `yaml:"chime"`

	// Speak voices chat replies locally as well as forwarding them.
	Speak         bool   `yaml:"speak"`
	SpeakLanguage string `yaml:"speak_language"`
	SpeakRate     int    `yaml:"speak_rate"`

	// Duck lowers other playback streams while listening for a command.
	Duck       bool          `yaml:"duck"`
	DuckFactor float64       `yaml:"duck_factor"`
	DuckFloor  int           `yaml:"duck_floor"`
	DuckFade   time.Duration `yaml:"duck_fade"`
	DuckKeep   []string      `yaml:"duck_keep"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			HardwareRate: 48000,
			ModelRate:    16000,
			ModelBlock:   1024,
			Realtime:     true,
		},
		Engine: EngineConfig{
			Kind:           "vosk",
			Model:          "model",
			WakePhrases:    []string{"hi telly", "hey telly"},
			CommandTimeout: 5 * time.Second,
			Language:       "en",
			VADMode:        2,
		},
		Completion: CompletionConfig{
			Backend:     BackendLlama,
			ControlURL:  "http://127.0.0.1:8081/completion",
			ChatURL:     "http://127.0.0.1:8082/completion",
			Timeout:     10 * time.Second,
			Temperature: 0.1,
			MaxTokens:   32,
			OpenAI: OpenAIConfig{
				ControlModel: "gpt-4o-mini",
				ChatModel:    "gpt-4o-mini",
			},
		},
		Transport: TransportConfig{
			Host:    transport.DefaultHost,
			Port:    transport.DefaultPort,
			Timeout: transport.DefaultTimeout,
		},
		Control: ControlConfig{Socket: "/tmp/telly.sock"},
		Bus:     BusConfig{Timeout: 2 * time.Second},
		Feedback: FeedbackConfig{
			SpeakLanguage: "en",
			DuckFactor:    0.3,
			DuckFloor:     10,
			DuckFade:      200 * time.Millisecond,
		},
	}
}

// Load layers the YAML file at path (skipped when empty) and the environment
// over the defaults. envFile is loaded into the process environment first; a
// missing envFile is not an error.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: env file %q: %w", envFile, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"TELLY_LOG":          &cfg.LogLevel,
		"TELLY_DEVICE":       &cfg.Audio.Device,
		"TELLY_INPUT":        &cfg.Audio.Input,
		"TELLY_ENGINE":       &cfg.Engine.Kind,
		"TELLY_MODEL":        &cfg.Engine.Model,
		"TELLY_BACKEND":      &cfg.Completion.Backend,
		"TELLY_CONTROL_URL":  &cfg.Completion.ControlURL,
		"TELLY_CHAT_URL":     &cfg.Completion.ChatURL,
		"TELLY_SOCKS_PROXY":  &cfg.Completion.OpenAI.SocksProxy,
		"OPENAI_BASE_URL":    &cfg.Completion.OpenAI.BaseURL,
		"OPENAI_API_KEY":     &cfg.Completion.OpenAI.APIKey,
		"DISPATCH_TX_HOST":   &cfg.Transport.Host,
		"TELLY_SOCKET":       &cfg.Control.Socket,
		"TELLY_BUS_URL":      &cfg.Bus.URL,
		"TELLY_METRICS_ADDR": &cfg.Metrics.Addr,
		"TELLY_CHIME":        &cfg.Feedback.Chime,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("DISPATCH_TX_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: DISPATCH_TX_PORT %q: %w", v, err)
		}
		cfg.Transport.Port = port
	}
	return nil
}

// Validate returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", c.LogLevel))
	}

	a := c.Audio
	switch {
	case a.HardwareRate <= 0 || a.ModelRate <= 0:
		errs = append(errs, fmt.Errorf("audio rates must be positive, got %d and %d", a.HardwareRate, a.ModelRate))
	case a.HardwareRate%a.ModelRate != 0:
		errs = append(errs, fmt.Errorf("audio.hardware_rate %d is not a multiple of audio.model_rate %d", a.HardwareRate, a.ModelRate))
	}
	if a.ModelBlock <= 0 {
		errs = append(errs, fmt.Errorf("audio.model_block must be positive, got %d", a.ModelBlock))
	}

	e := c.Engine
	if !slices.Contains(validEngines, e.Kind) {
		errs = append(errs, fmt.Errorf("engine.kind %q is unknown; valid values: vosk, whisper", e.Kind))
	}
	if e.Model == "" {
		errs = append(errs, errors.New("engine.model is required"))
	}
	if len(e.WakePhrases) == 0 {
		errs = append(errs, errors.New("engine.wake_phrases must not be empty"))
	}
	for i, p := range e.WakePhrases {
		if p == "" {
			errs = append(errs, fmt.Errorf("engine.wake_phrases[%d] is empty", i))
		}
	}
	if e.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.command_timeout must be positive, got %s", e.CommandTimeout))
	}
	if e.VADMode < 0 || e.VADMode > 3 {
		errs = append(errs, fmt.Errorf("engine.vad_mode must be 0-3, got %d", e.VADMode))
	}

	cp := c.Completion
	switch cp.Backend {
	case BackendLlama:
		if cp.ControlURL == "" || cp.ChatURL == "" {
			errs = append(errs, errors.New("completion.control_url and completion.chat_url are required for the llama backend"))
		}
	case BackendOpenAI:
		if cp.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("completion.backend %q is unknown; valid values: llama, openai", cp.Backend))
	}
	if cp.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("completion.timeout must be positive, got %s", cp.Timeout))
	}

	if f := c.Feedback; f.Duck && (f.DuckFactor <= 0 || f.DuckFactor > 1) {
		errs = append(errs, fmt.Errorf("feedback.duck_factor must be in (0, 1], got %g", f.DuckFactor))
	}

	t := c.Transport
	if t.Host == "" || t.Port <= 0 || t.Port > 65535 {
		errs = append(errs, fmt.Errorf("transport address %q is invalid", t.Addr()))
	}
	if t.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("transport.timeout must be positive, got %s", t.Timeout))
	}

	return errors.Join(errs...)
}
