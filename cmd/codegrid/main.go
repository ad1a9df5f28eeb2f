// codegrid is a demonstration client for CodeGrid game servers: it creates,
// joins, resumes, and spectates games from the command line and prints the
// event traffic as it arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"

	codegrid "github.com/codegrid-project/codegrid-go"
	"github.com/codegrid-project/codegrid-go/store"
)

const usage = `Usage: codegrid [flags] <command> [args]

Commands:
  info                                  show server info
  create [--private] [--protected]      create a game
  join <game-id> <username> [secret]    join a game
  restore <username>                    resume a stored session
  spectate <game-id>                    watch a game
`

func main() {
	host := flag.String("host", "localhost:8080", "server host (no scheme)")
	dataDir := flag.String("data-dir", defaultDataDir(), "directory for stored sessions")
	verbose := flag.Bool("v", false, "debug logging")
	private := flag.Bool("private", false, "create: hide the game from listings")
	protected := flag.Bool("protected", false, "create: require a join secret")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()

	sessions, err := store.NewFileStore(*dataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open session store")
	}

	client, err := codegrid.New(codegrid.Config{
		Host:   *host,
		Logger: &logger,
		Store:  sessions,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &app{client: client, log: logger}

	args := flag.Args()
	switch args[0] {
	case "info":
		err = app.info(ctx)
	case "create":
		err = app.create(ctx, !*private, *protected)
	case "join":
		if len(args) < 3 {
			flag.Usage()
			os.Exit(2)
		}
		secret := ""
		if len(args) > 3 {
			secret = args[3]
		}
		err = app.join(ctx, args[1], args[2], secret)
	case "restore":
		if len(args) < 2 {
			flag.Usage()
			os.Exit(2)
		}
		err = app.restore(ctx, args[1])
	case "spectate":
		if len(args) < 2 {
			flag.Usage()
			os.Exit(2)
		}
		err = app.spectate(ctx, args[1])
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("command failed")
	}
}

type app struct {
	client *codegrid.Client
	log    zerolog.Logger
}

func (a *app) info(ctx context.Context) error {
	info, err := a.client.FetchInfo(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s (protocol %s)\n", info.Name, info.CGVersion)
	return nil
}

func (a *app) create(ctx context.Context, public, protected bool) error {
	created, err := a.client.Create(ctx, public, protected, nil)
	if err != nil {
		return err
	}
	fmt.Printf("game id: %s\n", created.GameID)
	if created.JoinSecret != "" {
		fmt.Printf("join secret: %s\n", created.JoinSecret)
	}
	return nil
}

func (a *app) join(ctx context.Context, gameID, username, joinSecret string) error {
	session, err := a.client.Join(ctx, gameID, username, joinSecret)
	if err != nil {
		return err
	}
	fmt.Printf("joined %s as %s (player %s)\n", session.GameID, session.Username, session.PlayerID)
	return a.watch(ctx, session.Username)
}

func (a *app) restore(ctx context.Context, username string) error {
	session, err := a.client.RestoreSession(ctx, username)
	if err != nil {
		return err
	}
	fmt.Printf("reconnected to %s as %s\n", session.GameID, session.Username)
	return a.watch(ctx, session.Username)
}

func (a *app) spectate(ctx context.Context, gameID string) error {
	if err := a.client.Spectate(ctx, gameID); err != nil {
		return err
	}
	fmt.Printf("spectating %s\n", gameID)
	return a.watch(ctx, "")
}

// watch prints event traffic until interrupted. When the connection drops
// and a username is known, it resumes the stored session with exponential
// backoff; reconnection is always driven from here, never by the library.
func (a *app) watch(ctx context.Context, username string) error {
	lost := make(chan struct{}, 1)

	a.client.On(codegrid.EventInfo, func(_ string, ev codegrid.Event) {
		var info codegrid.InfoData
		if err := ev.UnmarshalData(&info); err != nil {
			return
		}
		printRoster(info.Players)
	})
	a.client.On(codegrid.EventNewPlayer, func(origin string, ev codegrid.Event) {
		var data codegrid.NewPlayerData
		if err := ev.UnmarshalData(&data); err != nil {
			return
		}
		fmt.Printf("+ %s joined (%s)\n", data.Username, origin)
	})
	a.client.On(codegrid.EventLeft, func(origin string, _ codegrid.Event) {
		fmt.Printf("- player %s left\n", origin)
	})
	a.client.On(codegrid.EventClose, func(_ string, _ codegrid.Event) {
		select {
		case lost <- struct{}{}:
		default:
		}
	})

	for {
		select {
		case <-ctx.Done():
			a.client.Leave()
			return nil
		case <-lost:
			if username == "" {
				return fmt.Errorf("connection lost")
			}
			a.log.Warn().Msg("connection lost, attempting to resume session")
			if err := a.resume(ctx, username); err != nil {
				return err
			}
		}
	}
}

func (a *app) resume(ctx context.Context, username string) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxElapsedTime = 2 * time.Minute

	return backoff.Retry(func() error {
		_, err := a.client.RestoreSession(ctx, username)
		if err != nil {
			a.log.Debug().Err(err).Msg("resume attempt failed")
		}
		return err
	}, backoff.WithContext(policy, ctx))
}

func printRoster(players map[string]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Player ID", "Username"})
	for id, name := range players {
		table.Append([]string{id, name})
	}
	table.Render()
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codegrid"
	}
	return home + "/.codegrid"
}
