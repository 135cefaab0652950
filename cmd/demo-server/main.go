// Command demo-server runs an in-memory communityxp backend seeded with sample members and
// simulated community activity, for trying the API and WebSocket stream locally.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"communityxp/api/httpapi"
	"communityxp/core"
	"communityxp/engine"
	"communityxp/gamify"
	"communityxp/integrations/rocket"
	"communityxp/realtime"
)

var members = []core.User{
	{ID: "ada", Username: "ada", Name: "Ada", RocketID: "r-ada", Level: 1},
	{ID: "linus", Username: "linus", Name: "Linus", RocketID: "r-linus", Level: 1},
	{ID: "grace", Username: "grace", Name: "Grace", RocketID: "r-grace", Level: 1, IsCoreTeam: true},
}

func main() {
	// Use readable text logging for development/demo
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sys, err := gamify.New(
		gamify.WithRealtime(realtime.NewHub()),
		gamify.WithNotifier(engine.LogNotifier{Logger: logger}),
		gamify.WithLogger(logger),
	)
	if err != nil {
		logger.Error("build system", "error", err)
		os.Exit(1)
	}
	defer sys.Close()

	for _, m := range members {
		if err := sys.Service.Storage().SaveUser(ctx, m); err != nil {
			logger.Error("seed member", "user", m.ID, "error", err)
			os.Exit(1)
		}
	}

	addr := ":8080"
	if v := os.Getenv("DEMO_ADDR"); v != "" {
		addr = v
	}
	srv := &http.Server{
		Addr: addr,
		Handler: httpapi.NewMux(httpapi.Deps{
			Service:  sys.Service,
			Rankings: sys.Rankings,
			Messages: sys.Messages,
			Hub:      sys.Hub,
			Logger:   logger,
		}, httpapi.Options{PathPrefix: "/api", AllowCORSOrigin: "*"}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go simulate(ctx, sys, logger)
	go func() {
		logger.Info("demo server listening", "address", addr, "ws", "/api/ws")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// simulate posts chat messages and GitHub activity every couple of seconds.
func simulate(ctx context.Context, sys *gamify.System, logger *slog.Logger) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		m := members[rand.IntN(len(members))]
		if n%2 == 0 {
			out := sys.Messages.Handle(ctx, rocket.ChatMessage{
				ID:     fmt.Sprintf("demo-%d", n),
				RoomID: "general",
				Text:   "hello from " + m.Name,
				User:   rocket.Sender{ID: m.RocketID, Username: m.Username},
			})
			logger.Info("chat message", "user", m.ID, "outcome", out.Kind)
			continue
		}
		res, err := sys.Service.Process(ctx, core.RawEvent{
			Origin: core.OriginGitHub,
			Type:   core.TypePush,
			User:   m.ID,
			Value:  fmt.Sprintf("demo/repo@%d", n),
		})
		if err != nil {
			logger.Warn("github event", "error", err)
			continue
		}
		logger.Info("github push", "user", m.ID, "scored", res.Scored, "score", res.Interaction.Score)
	}
}
