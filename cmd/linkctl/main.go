package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/crosslink/internal/config"
	"github.com/danmuck/crosslink/internal/host"
	"github.com/danmuck/crosslink/internal/link"
	"github.com/danmuck/crosslink/internal/logging"
	"github.com/danmuck/crosslink/internal/memnet"
	"github.com/danmuck/crosslink/internal/observability"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	logging.ConfigureRuntime()
	configPath := flag.String("config", "", "path to linkctl config.toml")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "linkctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, topo, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logging.ConfigureLevel(cfg.LogLevel)
	observability.RegisterMetrics()

	n, sys, err := boot(ctx, cfg, topo)
	if err != nil {
		return err
	}
	defer sys.Close()

	if err := provisionBridges(ctx, sys, topo.Bridges); err != nil {
		log.Warn().Err(err).Msg("linkctl.run bridge provisioning incomplete")
	}

	srv := &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           newAdminRouter(n, sys),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.AdminAddr).Str("domain", sys.Domain()).Msg("linkctl.run admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// boot builds the in-memory network, serves every remote origin a page that
// runs its own link.System, and opens the configured popups from the app.
func boot(ctx context.Context, cfg config.Config, topo topology) (*memnet.Network, *link.System, error) {
	n := memnet.NewNetwork(memnet.WithSendTimeout(cfg.SendTimeout))
	origins, err := topo.origins()
	if err != nil {
		return nil, nil, err
	}
	for _, origin := range origins {
		n.Serve(origin, func(ctx context.Context, c *memnet.Context) error {
			link.New(c, cfg, host.UniqueID()).Init(ctx)
			return nil
		})
	}

	app, err := n.NewTop(topo.AppURL)
	if err != nil {
		return nil, nil, fmt.Errorf("boot app %s: %w", topo.AppURL, err)
	}
	sys := link.New(app, cfg, host.UniqueID())
	sys.Init(ctx)

	for _, p := range topo.Popups {
		w, err := sys.Open(ctx, p.URL, p.Name)
		if err != nil {
			sys.Close()
			return nil, nil, fmt.Errorf("boot popup %s: %w", p.Name, err)
		}
		log.Info().Str("name", p.Name).Str("window", string(w.ID())).Msg("linkctl.boot popup opened")
	}
	return n, sys, nil
}

// provisionBridges opens every bridge concurrently and joins their failures.
func provisionBridges(ctx context.Context, sys *link.System, urls []string) error {
	errs := make([]error, len(urls))
	var g errgroup.Group
	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			relay, err := sys.Bridges.OpenBridge(ctx, url, "")
			if err != nil {
				errs[i] = fmt.Errorf("bridge %s: %w", url, err)
				return nil
			}
			log.Info().Str("url", url).Str("relay", string(relay.ID())).Msg("linkctl.provisionBridges ready")
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
