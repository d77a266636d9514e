package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"telly/internal/app"
	"telly/internal/audio"
	"telly/internal/bus"
	"telly/internal/config"
	"telly/internal/engine"
	"telly/internal/ipc"
	"telly/internal/nlu"
	"telly/internal/notify"
	"telly/internal/observe"
	"telly/internal/pipeline"
	"telly/internal/tts"
)

var version = "dev"

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	flags := config.RegisterFlags(cli.CommandLine)
	cli.Parse()

	cfg, err := flags.Load()
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[cfg.LogLevel],
	})))

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid config", "err", err)
		os.Exit(1)
	}

	log.Info("Booting up", "version", version)

	if err := run(cfg); err != nil {
		log.Error("Stopped", "err", err)
		os.Exit(1)
	}
	log.Info("Shut down")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		prov, err := observe.InitProvider(observe.ProviderConfig{ServiceName: "telly", ServiceVersion: version})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			prov.Shutdown(shutdownCtx)
		}()
		go func() {
			if err := prov.Serve(ctx, cfg.Metrics.Addr); err != nil {
				log.Error("Metrics server failed", "err", err)
			}
		}()
	}
	metrics := observe.DefaultMetrics()

	var pub pipeline.Publisher = bus.Nop{}
	if cfg.Bus.URL != "" {
		b, err := bus.Dial(cfg.Bus.URL, "telly", cfg.Bus.Timeout)
		if err != nil {
			log.Warn("Bus unavailable, events will not be published", "url", cfg.Bus.URL, "err", err)
		} else {
			defer b.Close()
			pub = b
		}
	}

	var sink nlu.Sink = app.NewSink(cfg.Transport, pub)
	if cfg.Feedback.Speak {
		sp, err := tts.NewSpeaker(tts.Voice{Language: cfg.Feedback.SpeakLanguage, Rate: cfg.Feedback.SpeakRate})
		if err != nil {
			return err
		}
		defer sp.Close()
		sink = tts.NewSpeakingSink(sink, sp)
		log.Debug("Loaded speaker", "lang", cfg.Feedback.SpeakLanguage)
	}

	disp, err := app.NewDispatcher(cfg, sink, metrics)
	if err != nil {
		return err
	}
	log.Debug("Loaded dispatcher", "sink", cfg.Transport.Addr(), "backend", cfg.Completion.Backend)

	engines, err := engine.Open(engine.Config{
		Kind:      cfg.Engine.Kind,
		ModelPath: cfg.Engine.Model,
		Rate:      cfg.Audio.ModelRate,
		Phrases:   cfg.Engine.WakePhrases,
		Language:  cfg.Engine.Language,
		Threads:   cfg.Engine.Threads,
		VADMode:   cfg.Engine.VADMode,
	})
	if err != nil {
		return err
	}
	defer engines.Close()
	log.Debug("Loaded engines", "kind", cfg.Engine.Kind, "model", cfg.Engine.Model)

	src, err := openSource(cfg.Audio)
	if err != nil {
		return err
	}
	defer src.Close()

	opts := []pipeline.Option{pipeline.WithMetrics(metrics), pipeline.WithPublisher(pub)}
	if cfg.Feedback.Chime != "" {
		chime, err := notify.LoadChime(cfg.Feedback.Chime)
		if err != nil {
			log.Warn("Chime unavailable", "path", cfg.Feedback.Chime, "err", err)
		} else {
			defer chime.Stop()
			opts = append(opts, pipeline.WithChime(chime))
		}
	}

	if cfg.Feedback.Duck {
		ducker := notify.NewDucker(notify.DuckConfig{
			Factor: cfg.Feedback.DuckFactor,
			Floor:  cfg.Feedback.DuckFloor,
			Fade:   cfg.Feedback.DuckFade,
			Keep:   cfg.Feedback.DuckKeep,
		})
		defer ducker.Close()
		opts = append(opts, pipeline.WithMachineOptions(pipeline.WithObserver(func(t pipeline.Transition) {
			if t.To == pipeline.ListeningForCommand {
				ducker.Duck()
			} else {
				ducker.Restore()
			}
		})))
	}

	p, err := pipeline.New(pipeline.Config{
		HardwareRate:   cfg.Audio.HardwareRate,
		ModelRate:      cfg.Audio.ModelRate,
		CommandTimeout: cfg.Engine.CommandTimeout,
	}, src, engines.Wake, engines.Command, disp, opts...)
	if err != nil {
		return err
	}

	if err := ipc.StartServer(ctx, cfg.Control.Socket, func(msg ipc.ControlMessage) {
		switch msg.Cmd {
		case ipc.CmdTrigger:
			p.Trigger()
		case ipc.CmdText:
			p.Inject(msg.Text)
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
		}
	}); err != nil {
		return err
	}

	log.Info("Boot up - successful", "phrases", cfg.Engine.WakePhrases)
	return p.Run(ctx)
}

func openSource(cfg config.AudioConfig) (audio.Source, error) {
	block := cfg.ModelBlock * (cfg.HardwareRate / cfg.ModelRate)
	if cfg.Input != "" {
		log.Info("Replaying file", "path", cfg.Input)
		f, err := audio.OpenFile(cfg.Input, cfg.HardwareRate, block, cfg.Realtime)
		if err != nil {
			return nil, err
		}
		return f, nil
	}

	mic, err := audio.OpenMic(audio.MicConfig{
		Device:     cfg.Device,
		SampleRate: cfg.HardwareRate,
		FrameSize:  block,
	})
	if err != nil {
		return nil, err
	}
	return mic, nil
}
