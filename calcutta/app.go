package calcutta

import (
	"context"
	"log/slog"
	"time"

	"github.com/madpools/calcutta/backend"
	"github.com/madpools/calcutta/calcutta/auction"
	"github.com/madpools/calcutta/calcutta/database"
	"github.com/madpools/calcutta/calcutta/database/repositories"
	"github.com/madpools/calcutta/calcutta/payout"
)

// App owns every long-lived component of the engine process and wires them
// together.
type App struct {
	Config *Config
	DB     *database.DB

	AuctionStore auction.Store
	PayoutStore  payout.Store

	Hub          *auction.Hub
	Coordinator  *auction.Coordinator
	PayoutEngine *payout.Engine
	Retry        *payout.RetryScheduler
	Server       *backend.Server
}

func New(cfg *Config) *App {
	return &App{Config: cfg}
}

// SetupDB connects to Postgres and ensures the schema exists.
func (a *App) SetupDB(ctx context.Context) error {
	db, err := database.New(ctx, database.DBConfig{
		Host:     a.Config.DB.Host,
		Port:     a.Config.DB.Port,
		User:     a.Config.DB.User,
		Password: a.Config.DB.Password,
		Database: a.Config.DB.Database,
		PoolSize: a.Config.DB.PoolSize,
	})
	if err != nil {
		return err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return err
	}
	if err := db.InitializeSchema(ctx); err != nil {
		db.Close()
		return err
	}
	a.DB = db
	return nil
}

// SetupEngines builds the stores, event hub, coordinator, payout engine, and
// the gateway server.
func (a *App) SetupEngines() error {
	a.AuctionStore = repositories.NewAuctionStore(a.DB.BunDB())
	a.PayoutStore = repositories.NewPayoutStore(a.DB.BunDB())

	a.Hub = auction.NewHub()
	publisher := auction.MultiPublisher{auction.LogPublisher{}, a.Hub}

	a.Coordinator = auction.NewCoordinator(a.AuctionStore, publisher, auction.Config{
		ItemDuration:       a.Config.Auction.ItemDuration,
		ExtensionThreshold: a.Config.Auction.ExtensionThreshold,
		MaxItemDuration:    a.Config.Auction.MaxItemDuration,
		MinBidIncrement:    a.Config.Auction.MinBidIncrement,
	})

	a.PayoutEngine = payout.NewEngine(a.PayoutStore, publisher)
	a.Retry = payout.NewRetryScheduler(a.PayoutStore)

	server, err := backend.NewServer(backend.Config{
		Host:   a.Config.Server.Host,
		Port:   a.Config.Server.Port,
		APIKey: a.Config.Server.APIKey,
	}, a.Coordinator, a.PayoutEngine, a.AuctionStore, a.PayoutStore, a.Hub)
	if err != nil {
		return err
	}
	a.Server = server
	return nil
}

// Start re-arms auction timers from durable state and launches the payout
// retry loop.
func (a *App) Start(ctx context.Context) error {
	if err := a.Coordinator.Recover(ctx); err != nil {
		return err
	}
	return a.Retry.Start()
}

// Close shuts everything down in dependency order.
func (a *App) Close(ctx context.Context) {
	if a.Server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Gateway shutdown failed",
				slog.String("type", "sys"),
				slog.Any("error", err),
			)
		}
		cancel()
	}
	if a.Retry != nil {
		a.Retry.Stop()
	}
	if a.Coordinator != nil {
		a.Coordinator.Timers().Shutdown()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
