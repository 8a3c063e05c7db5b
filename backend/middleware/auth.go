package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	lru "github.com/hashicorp/golang-lru"

	"github.com/madpools/calcutta/backend/utils"
	"github.com/madpools/calcutta/calcutta/auction"
)

// APIKeyRequired rejects requests that do not carry the shared gateway key.
func APIKeyRequired(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		provided := c.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			slog.Warn("Rejected request with bad API key",
				slog.String("path", c.Path()),
				slog.String("ip", utils.GetIPAddress(c)),
			)
			return utils.SendUnauthorized(c, "Invalid API key")
		}
		return c.Next()
	}
}

// UserRequired ensures the acting user is identified and stashes the ID in
// the request context.
func UserRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := utils.GetUserID(c)
		if userID == "" {
			return utils.SendUnauthorized(c, "X-User-ID header required")
		}
		c.Locals("userID", userID)
		return c.Next()
	}
}

// CommissionerGate verifies that the acting user is the commissioner of the
// pool named in the route. Pool lookups are cached; commissioners do not
// change mid-auction.
type CommissionerGate struct {
	store auction.Store
	cache *lru.Cache // poolID -> commissionerID
}

func NewCommissionerGate(store auction.Store) (*CommissionerGate, error) {
	cache, err := lru.New(256)
	if err != nil {
		return nil, err
	}
	return &CommissionerGate{store: store, cache: cache}, nil
}

// Require is the middleware enforcing commissioner-only access.
func (g *CommissionerGate) Require() fiber.Handler {
	return func(c *fiber.Ctx) error {
		poolID, err := strconv.ParseInt(c.Params("poolID"), 10, 64)
		if err != nil {
			return utils.SendBadRequest(c, "BAD_POOL_ID", "pool id must be numeric")
		}

		commissionerID, err := g.commissioner(c.Context(), poolID)
		if err != nil {
			return utils.SendNotFound(c, "pool not found")
		}

		userID, _ := c.Locals("userID").(string)
		if userID != commissionerID {
			slog.Warn("Commissioner-only operation rejected",
				slog.String("path", c.Path()),
				slog.Int64("pool_id", poolID),
				slog.String("user_id", userID),
			)
			return utils.SendForbidden(c, "commissioner access required")
		}
		return c.Next()
	}
}

func (g *CommissionerGate) commissioner(ctx context.Context, poolID int64) (string, error) {
	if v, ok := g.cache.Get(poolID); ok {
		return v.(string), nil
	}
	pool, err := g.store.Pool(ctx, poolID)
	if err != nil {
		return "", err
	}
	g.cache.Add(poolID, pool.CommissionerID)
	return pool.CommissionerID, nil
}
