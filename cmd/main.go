package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	planner "github.com/dcmshi/transit-planner"
	"github.com/dcmshi/transit-planner/config"
	"github.com/dcmshi/transit-planner/graph"
	"github.com/dcmshi/transit-planner/live"
	"github.com/dcmshi/transit-planner/reliability"
	"github.com/dcmshi/transit-planner/storage"
)

var rootCmd = &cobra.Command{
	Use:          "transit",
	Short:        "Transit route planner",
	Long:         "Searches transit routes and scores them by reliability",
	SilenceUsage: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
}

func main() {
	log.SetFlags(log.LstdFlags | log.LUTC)

	// Missing .env is fine; env vars may come from elsewhere.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.FromEnv()
	}
	return config.Load(configPath)
}

func openStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		return storage.NewSQLiteStorage(storage.SQLiteConfig{
			OnDisk:    true,
			Directory: cfg.Storage.Dir,
		})
	case "postgres":
		return storage.NewPSQLStorage(cfg.Storage.PostgresURL, false)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// app is the wired-up planner stack shared by all subcommands.
type app struct {
	cfg     *config.Config
	storage storage.Storage
	builder *graph.Builder
	history *reliability.History
	live    *live.Provider
	engine  *planner.Engine
	manager *planner.Manager
}

func buildApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	s, err := openStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	builder := graph.NewBuilder(cfg.Routing.MaxWalkMetres, cfg.Routing.WalkSpeedKPH)
	history := reliability.NewHistory(s)
	liveProvider := &live.Provider{}
	engine := planner.NewEngine(builder, history, liveProvider, cfg.Routing)
	manager := planner.NewManager(s, builder, engine, cfg.Feeds.StaticURL)

	return &app{
		cfg:     cfg,
		storage: s,
		builder: builder,
		history: history,
		live:    liveProvider,
		engine:  engine,
		manager: manager,
	}, nil
}
