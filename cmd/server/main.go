// Command server runs the KiroGate HTTP gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/kirogate/kirogate/internal/api"
	"github.com/kirogate/kirogate/internal/catalog"
	"github.com/kirogate/kirogate/internal/config"
	"github.com/kirogate/kirogate/internal/gateway"
	"github.com/kirogate/kirogate/internal/kiro"
	"github.com/kirogate/kirogate/internal/logging"
	"github.com/kirogate/kirogate/internal/monitoring"
)

var version = "dev" // set via -ldflags at release

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("kirogate", version)
		return
	}

	if err := run(*configPath); err != nil {
		log.Fatalf("kirogate: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := openSession(cfg)
	if err != nil {
		return err
	}

	var clientOpts []kiro.ClientOption
	if cfg.Kiro.Endpoint != "" {
		clientOpts = append(clientOpts, kiro.WithEndpoint(cfg.Kiro.Endpoint))
	}
	client := kiro.NewClient(session, clientOpts...)

	cache := catalog.New(nil, cfg.CatalogTTL())
	if err := cache.Refresh(ctx); err != nil {
		log.Warnf("initial catalog refresh failed: %v", err)
	}

	server := api.New(cfg, api.Deps{
		Version: version,
		Session: session,
		Gateway: gateway.New(client, gateway.WithIdleTimeout(cfg.StreamIdle())),
		Catalog: cache,
		Metrics: monitoring.New(nil),
	})

	go func() {
		if err := config.Watch(ctx, configPath, func(next *config.Config) {
			logging.Setup(next.Logging)
			server.ApplyConfig(next)
		}); err != nil {
			log.Warnf("config watcher stopped: %v", err)
		}
	}()

	return server.Run(ctx)
}

// openSession loads the stored credential, seeding it from the Amazon Q CLI
// database when configured and the token file does not exist yet.
func openSession(cfg *config.Config) (*kiro.Session, error) {
	store := kiro.NewTokenStore(cfg.Kiro.TokenFile)

	if _, err := os.Stat(cfg.Kiro.TokenFile); os.IsNotExist(err) && cfg.Kiro.ImportAmazonQ {
		dbPath, err := kiro.DefaultAmazonQDBPath()
		if err != nil {
			return nil, err
		}
		data, err := kiro.ImportAmazonQToken(dbPath)
		if err != nil {
			return nil, fmt.Errorf("import amazon-q credential: %w", err)
		}
		if err := store.Save(data); err != nil {
			return nil, err
		}
		log.Infof("imported amazon-q credential into %s", cfg.Kiro.TokenFile)
	}

	refresher := kiro.NewOAuthRefresher(nil, cfg.Kiro.GoogleClientID)
	return kiro.NewSession(store, refresher)
}
