// codegrid-server runs the in-process CodeGrid server standalone, for
// local development against a real listening port.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/codegrid-project/codegrid-go/internal/testserver"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	maxGames := flag.Int("max-games", 0, "maximum concurrent games (0 = unlimited)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := testserver.New(testserver.Options{
		MaxGames: *maxGames,
		Logger:   &logger,
	})
	if err := srv.Run(ctx, *addr); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
