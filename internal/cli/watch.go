package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"live-session-service/internal/app"
	"live-session-service/internal/config"
	infraredis "live-session-service/internal/infra/redis"
)

// NewWatchCmd follows a session from any host that can reach Redis, without
// connecting to the instance that owns it.
func NewWatchCmd(configPath *string) *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a session's events and standings through Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Redis.Addr == "" {
				return errors.New("watch needs redis.addr")
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer client.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			events := infraredis.NewEventPublisher(client, logger)
			standings := infraredis.NewLeaderboardMirror(client, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour))
			return watchSession(ctx, events, standings, code, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "6-digit session code")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

type eventSource interface {
	Subscribe(ctx context.Context, code string, handler func(event string, payload json.RawMessage)) (func(), error)
}

type standingsReader interface {
	Standings(ctx context.Context, code string) ([]redis.Z, error)
}

// watchSession prints every event published for code and the standings after each
// leaderboard change. It returns when the session ends or ctx is done.
func watchSession(ctx context.Context, events eventSource, standings standingsReader, code string, out io.Writer) error {
	ended := make(chan struct{})
	var endOnce sync.Once
	changed := make(chan struct{}, 1)
	stop, err := events.Subscribe(ctx, code, func(event string, payload json.RawMessage) {
		fmt.Fprintf(out, "%s %s\n", event, payload)
		switch event {
		case app.EventLeaderboard:
			select {
			case changed <- struct{}{}:
			default:
			}
		case app.EventSessionEnded:
			endOnce.Do(func() { close(ended) })
		}
	})
	if err != nil {
		return err
	}
	defer stop()

	printStandings(ctx, standings, code, out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ended:
			return nil
		case <-changed:
			printStandings(ctx, standings, code, out)
		}
	}
}

func printStandings(ctx context.Context, standings standingsReader, code string, out io.Writer) {
	entries, err := standings.Standings(ctx, code)
	if err != nil {
		fmt.Fprintf(out, "read standings: %v\n", err)
		return
	}
	for i, z := range entries {
		fmt.Fprintf(out, "  %d. %v %.0f\n", i+1, z.Member, z.Score)
	}
}
