package payout

import (
	"context"

	"github.com/madpools/calcutta/calcutta/database/models"
)

// Store is the persistence port for the payout engine. Single-row lookups
// return models.ErrNotFound for missing rows.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error

	PoolsForTournament(ctx context.Context, tournamentID string) ([]*models.Pool, error)
	Pool(ctx context.Context, poolID int64) (*models.Pool, error)

	Rules(ctx context.Context, poolID int64) ([]*models.PayoutRule, error)

	GameProcessed(ctx context.Context, poolID int64, gameID string) (bool, error)
	MarkGameProcessed(ctx context.Context, log *models.PayoutLog) error

	SoldItemByTeam(ctx context.Context, poolID int64, teamID string) (*models.AuctionItem, error)
	OwnershipsForItem(ctx context.Context, itemID int64) ([]*models.Ownership, error)

	InsertPayout(ctx context.Context, payout *models.Payout) error
	UpdatePayout(ctx context.Context, payout *models.Payout) error
	FailedPayouts(ctx context.Context, limit int) ([]*models.Payout, error)

	Member(ctx context.Context, poolID int64, userID string) (*models.PoolMember, error)
	UpdateMember(ctx context.Context, member *models.PoolMember) error
}
