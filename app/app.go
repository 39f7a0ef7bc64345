package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/searchktools/fastclient/config"
	"github.com/searchktools/fastclient/core"
)

// App wraps a core.Client with the teacher's signal-driven lifecycle:
// construct, run until a termination signal, then shut down within a
// grace period.
type App struct {
	cfg    config.Config
	client *core.Client
}

// New creates an application instance around a freshly built Client.
func New(cfg config.Config) *App {
	return &App{
		cfg:    cfg,
		client: core.New(cfg),
	}
}

// NewWithClient creates an application instance around a pre-configured
// Client, mirroring the teacher's NewWithEngine.
func NewWithClient(cfg config.Config, client *core.Client) *App {
	return &App{cfg: cfg, client: client}
}

// Client returns the underlying Client for issuing requests.
func (a *App) Client() *core.Client {
	return a.client
}

// Run blocks until SIGINT/SIGTERM, then shuts the Client down within
// gracePeriod before returning.
func (a *App) Run(gracePeriod time.Duration) {
	log.Printf("🚀 fastclient app started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Signal received: %v. Shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), gracePeriod)
	defer cancel()
	if err := a.client.Shutdown(ctx); err != nil {
		log.Printf("❌ shutdown did not complete cleanly: %v", err)
	}
}
