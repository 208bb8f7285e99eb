package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haukened/rr-portal/internal/portal/common/clock"
	"github.com/haukened/rr-portal/internal/portal/common/log"
	"github.com/haukened/rr-portal/internal/portal/config"
	"github.com/haukened/rr-portal/internal/portal/gateways/netif"
	"github.com/haukened/rr-portal/internal/portal/repos/credentials"
	"github.com/haukened/rr-portal/internal/portal/repos/probehosts"
	"github.com/haukened/rr-portal/internal/portal/repos/probehosts/bloom"
	"github.com/haukened/rr-portal/internal/portal/repos/probehosts/lru"
	"github.com/haukened/rr-portal/internal/portal/repos/scancache"
	"github.com/haukened/rr-portal/internal/portal/services/httpd"
	"github.com/haukened/rr-portal/internal/portal/services/portal"
	"github.com/haukened/rr-portal/internal/portal/services/streamio"
	"github.com/haukened/rr-portal/internal/portal/web"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-portald"

	// exitAborted is returned when the portal stops before credentials
	// were saved, so a supervisor can tell it apart from success.
	exitAborted = 2
)

// Application holds all the components of the provisioning portal
type Application struct {
	config *config.AppConfig
	store  credentials.Store
	portal *portal.Portal
}

func main() {
	// Load configuration from defaults, optional file and environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":   version,
		"env":       cfg.Env,
		"log_level": cfg.LogLevel,
		"portal_ip": cfg.PortalIP,
		"dns_port":  cfg.DNSPort,
		"http_port": cfg.HTTPPort,
		"store":     cfg.StoreKind,
	}, "Starting "+appName)

	// Build application with all dependencies
	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	// Handle shutdown signals; the run loop checks ctx once per tick
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome, err := app.Run(ctx)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Portal failed")
	}

	log.Info(map[string]any{"outcome": outcome.String()}, "Portal stopped")
	if outcome != portal.OutcomeSucceeded {
		stop()
		os.Exit(exitAborted)
	}
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := &clock.RealClock{}
	logger := log.GetLogger()

	store, err := credentials.Open(cfg.StoreKind, cfg.StorePath, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	log.Info(map[string]any{
		"kind": cfg.StoreKind,
		"path": cfg.StorePath,
	}, "Credential store opened")

	probes, err := buildProbeMatcher(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	scanner := scancache.New(scancache.StaticScanner(cfg.ScanSSIDs), cfg.ScanTTL(), clk)

	nif := netif.NewUnix()
	p, err := portal.New(nif, netif.NewPollSet(), portal.Options{
		DNSAddr:  cfg.ListenAddr(cfg.DNSPort),
		HTTPAddr: cfg.ListenAddr(cfg.HTTPPort),
		PortalIP: cfg.Portal(),
		Files:    web.Open(cfg.PublicDir),
		Store:    store,
		Scanner:  scanner,
		Probes:   probes,
		Limits: httpd.Limits{
			MaxHeader: cfg.MaxHeaderBytes,
			MaxBody:   cfg.MaxBodyBytes,
		},
		Stream: streamio.Options{
			MSS:      cfg.MSS,
			ReadSize: cfg.ReadSize,
		},
		PollTimeout:    cfg.PollTimeout(),
		SaveGraceTicks: cfg.SaveGraceTicks,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build portal: %w", err)
	}

	return &Application{config: cfg, store: store, portal: p}, nil
}

// buildProbeMatcher creates the connectivity-check host matcher
func buildProbeMatcher(cfg *config.AppConfig) (probehosts.Matcher, error) {
	cache, err := lru.New(cfg.ProbeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create probe decision cache: %w", err)
	}
	m := probehosts.NewMatcher(cfg.ProbeHosts, cache, bloom.NewFactory(), probehosts.DefaultFPRate)
	log.Info(map[string]any{
		"hosts":      m.Hosts(),
		"cache_size": cfg.ProbeCacheSize,
	}, "Probe host matcher configured")
	return m, nil
}

// Run serves the portal until credentials are saved or ctx is cancelled.
// The credential store is closed on return.
func (app *Application) Run(ctx context.Context) (portal.Outcome, error) {
	defer func() {
		if err := app.store.Close(); err != nil {
			log.Warn(map[string]any{"error": err}, "Error closing credential store")
		}
	}()

	outcome, err := app.portal.Serve(ctx, nil)
	if err != nil {
		return outcome, fmt.Errorf("failed to start portal: %w", err)
	}
	return outcome, nil
}
