package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/madpools/calcutta/backend/handlers"
	"github.com/madpools/calcutta/backend/middleware"
	"github.com/madpools/calcutta/calcutta/auction"
	"github.com/madpools/calcutta/calcutta/payout"
)

// Config is the gateway listener configuration.
type Config struct {
	Host   string
	Port   int
	APIKey string
}

// Server is the HTTP gateway in front of the auction and payout engines.
type Server struct {
	app  *fiber.App
	addr string
}

func NewServer(cfg Config, coordinator *auction.Coordinator, engine *payout.Engine, store auction.Store, payoutStore payout.Store, hub *auction.Hub) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      "calcutta-gateway",
		ErrorHandler: middleware.CustomErrorHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.LoggingMiddleware())

	api := handlers.NewAPI(coordinator, engine, store, payoutStore, hub)

	app.Get("/health", api.Health)

	gate, err := middleware.NewCommissionerGate(store)
	if err != nil {
		return nil, err
	}

	v1 := app.Group("/api", middleware.APIKeyRequired(cfg.APIKey))

	// The game-result feed authenticates with the API key alone.
	v1.Post("/results", api.PostGameResult)

	user := v1.Group("", middleware.UserRequired(), middleware.RateLimit(30, time.Minute))

	pools := user.Group("/pools/:poolID")
	pools.Get("/state", api.PoolState)
	pools.Get("/items", api.PoolItems)
	pools.Get("/members", api.PoolMembers)
	pools.Get("/rules", api.PoolRules)
	pools.Get("/events", api.StreamEvents)

	// Commissioner-only lifecycle controls.
	admin := pools.Group("/auction", gate.Require())
	admin.Post("/start", api.StartAuction)
	admin.Post("/pause", api.PauseAuction)
	admin.Post("/resume", api.ResumeAuction)
	admin.Post("/next", api.NextItem)
	admin.Post("/sell-now", api.SellNow)
	admin.Post("/items/:itemID/revert", api.RevertSale)
	admin.Post("/items/:itemID/requeue", api.RequeueItem)

	wheel := pools.Group("/wheel", gate.Require())
	wheel.Post("/init", api.WheelInit)
	wheel.Post("/spin", api.WheelSpin)
	wheel.Post("/confirm", api.WheelConfirm)

	user.Post("/items/:itemID/bids", api.PlaceBid)
	user.Get("/items/:itemID/bids", api.ItemBids)

	return &Server{
		app:  app,
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}, nil
}

// Listen blocks serving HTTP until Shutdown is called.
func (s *Server) Listen() error {
	slog.Info("Gateway listening",
		slog.String("type", "sys"),
		slog.String("addr", s.addr),
	)
	return s.app.Listen(s.addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
