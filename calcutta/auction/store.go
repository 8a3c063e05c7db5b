package auction

import (
	"context"

	"github.com/madpools/calcutta/calcutta/database/models"
)

// Store is the persistence port for the auction engine. The production
// implementation lives in database/repositories; tests substitute an
// in-memory fake.
//
// InTx runs fn against a transactional view of the same store. Row-locking
// reads (ItemForUpdate) are only meaningful inside InTx.
//
// Single-row lookups return models.ErrNotFound for missing rows, except
// NextPendingItem and LastSoldItem which return (nil, nil) when the pool has
// no matching item.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error

	Pool(ctx context.Context, poolID int64) (*models.Pool, error)
	UpdatePool(ctx context.Context, pool *models.Pool) error

	Member(ctx context.Context, poolID int64, userID string) (*models.PoolMember, error)
	Members(ctx context.Context, poolID int64) ([]*models.PoolMember, error)
	UpdateMember(ctx context.Context, member *models.PoolMember) error

	Session(ctx context.Context, poolID int64) (*models.AuctionSession, error)
	CreateSession(ctx context.Context, session *models.AuctionSession) error
	UpdateSession(ctx context.Context, session *models.AuctionSession) error
	ActiveSessions(ctx context.Context) ([]*models.AuctionSession, error)

	Item(ctx context.Context, itemID int64) (*models.AuctionItem, error)
	ItemForUpdate(ctx context.Context, itemID int64) (*models.AuctionItem, error)
	UpdateItem(ctx context.Context, item *models.AuctionItem) error
	Items(ctx context.Context, poolID int64) ([]*models.AuctionItem, error)
	PendingItems(ctx context.Context, poolID int64) ([]*models.AuctionItem, error)
	NextPendingItem(ctx context.Context, poolID int64) (*models.AuctionItem, error)
	MaxQueueOrder(ctx context.Context, poolID int64) (int, error)
	LastSoldItem(ctx context.Context, poolID int64) (*models.AuctionItem, error)

	AppendBid(ctx context.Context, bid *models.Bid) error
	ClearWinningBid(ctx context.Context, itemID int64) error
	BidsForItem(ctx context.Context, itemID int64) ([]*models.Bid, error)

	InsertOwnership(ctx context.Context, ownership *models.Ownership) error
	DeleteOwnerships(ctx context.Context, itemID int64) error
	OwnershipsForItem(ctx context.Context, itemID int64) ([]*models.Ownership, error)
}
