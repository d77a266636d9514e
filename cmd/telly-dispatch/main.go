// telly-dispatch feeds typed commands through the dispatcher, one per line,
// without audio or speech engines.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"telly/internal/app"
	"telly/internal/bus"
	"telly/internal/config"
	"telly/internal/nlu"
)

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

	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevelMap[cfg.LogLevel],
	})))

	disp, err := app.NewDispatcher(cfg, app.NewSink(cfg.Transport, bus.Nop{}), nil)
	if err != nil {
		log.Error("Failed to build dispatcher", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	sc := bufio.NewScanner(os.Stdin)
	fmt.Fprint(os.Stderr, "> ")
	for sc.Scan() {
		rep := disp.Dispatch(ctx, sc.Text())
		for _, p := range rep.Payloads {
			line, _ := p.Line()
			os.Stdout.Write(line)
		}
		if rep.Kind == nlu.KindRouted {
			fmt.Fprintf(os.Stderr, "%s route=%s delivered=%d/%d\n> ", rep.Kind, rep.Route, rep.Delivered, len(rep.Payloads))
		} else {
			fmt.Fprintf(os.Stderr, "%s delivered=%d/%d\n> ", rep.Kind, rep.Delivered, len(rep.Payloads))
		}
	}
	if err := sc.Err(); err != nil {
		log.Error("Read stdin", "err", err)
		os.Exit(1)
	}
}
