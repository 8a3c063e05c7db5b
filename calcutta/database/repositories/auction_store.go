package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/madpools/calcutta/calcutta/auction"
	"github.com/madpools/calcutta/calcutta/database/models"
	"github.com/madpools/calcutta/calcutta/economy"
)

// AuctionStore is the bun-backed implementation of auction.Store. The root
// store runs statements on the shared *bun.DB; InTx derives a transactional
// view over a serializable transaction.
type AuctionStore struct {
	db  bun.IDB
	txm *economy.TxManager
}

var _ auction.Store = (*AuctionStore)(nil)

func NewAuctionStore(db *bun.DB) *AuctionStore {
	return &AuctionStore{db: db, txm: economy.NewTxManager(db)}
}

func (st *AuctionStore) InTx(ctx context.Context, fn func(ctx context.Context, s auction.Store) error) error {
	if st.txm == nil {
		// Already transactional; nested calls join the outer transaction.
		return fn(ctx, st)
	}
	return st.txm.WithTransaction(ctx, economy.SerializableTransactionOptions(), func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &AuctionStore{db: tx})
	})
}

func (st *AuctionStore) Pool(ctx context.Context, poolID int64) (*models.Pool, error) {
	pool := new(models.Pool)
	err := st.db.NewSelect().
		Model(pool).
		Where("p.id = ?", poolID).
		Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err, "pool %d", poolID)
	}
	return pool, nil
}

func (st *AuctionStore) UpdatePool(ctx context.Context, pool *models.Pool) error {
	pool.UpdatedAt = time.Now()
	_, err := st.db.NewUpdate().
		Model(pool).
		WherePK().
		Exec(ctx)
	return err
}

func (st *AuctionStore) Member(ctx context.Context, poolID int64, userID string) (*models.PoolMember, error) {
	member := new(models.PoolMember)
	err := st.db.NewSelect().
		Model(member).
		Where("pm.pool_id = ?", poolID).
		Where("pm.user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err, "member %s in pool %d", userID, poolID)
	}
	return member, nil
}

func (st *AuctionStore) Members(ctx context.Context, poolID int64) ([]*models.PoolMember, error) {
	var members []*models.PoolMember
	err := st.db.NewSelect().
		Model(&members).
		Where("pm.pool_id = ?", poolID).
		Order("pm.user_id ASC").
		Scan(ctx)
	return members, err
}

func (st *AuctionStore) UpdateMember(ctx context.Context, member *models.PoolMember) error {
	member.UpdatedAt = time.Now()
	_, err := st.db.NewUpdate().
		Model(member).
		WherePK().
		Exec(ctx)
	return err
}

func (st *AuctionStore) Session(ctx context.Context, poolID int64) (*models.AuctionSession, error) {
	session := new(models.AuctionSession)
	err := st.db.NewSelect().
		Model(session).
		Where("s.pool_id = ?", poolID).
		Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err, "session for pool %d", poolID)
	}
	return session, nil
}

func (st *AuctionStore) CreateSession(ctx context.Context, session *models.AuctionSession) error {
	_, err := st.db.NewInsert().
		Model(session).
		Exec(ctx)
	return err
}

func (st *AuctionStore) UpdateSession(ctx context.Context, session *models.AuctionSession) error {
	session.UpdatedAt = time.Now()
	_, err := st.db.NewUpdate().
		Model(session).
		WherePK().
		Exec(ctx)
	return err
}

func (st *AuctionStore) ActiveSessions(ctx context.Context) ([]*models.AuctionSession, error) {
	var sessions []*models.AuctionSession
	err := st.db.NewSelect().
		Model(&sessions).
		Where("s.status = ?", models.SessionInProgress).
		Scan(ctx)
	return sessions, err
}

func (st *AuctionStore) Item(ctx context.Context, itemID int64) (*models.AuctionItem, error) {
	return st.item(ctx, itemID, false)
}

func (st *AuctionStore) ItemForUpdate(ctx context.Context, itemID int64) (*models.AuctionItem, error) {
	return st.item(ctx, itemID, true)
}

func (st *AuctionStore) item(ctx context.Context, itemID int64, forUpdate bool) (*models.AuctionItem, error) {
	item := new(models.AuctionItem)
	q := st.db.NewSelect().
		Model(item).
		Where("ai.id = ?", itemID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, wrapNotFound(err, "auction item %d", itemID)
	}
	return item, nil
}

func (st *AuctionStore) UpdateItem(ctx context.Context, item *models.AuctionItem) error {
	item.UpdatedAt = time.Now()
	_, err := st.db.NewUpdate().
		Model(item).
		WherePK().
		Exec(ctx)
	return err
}

func (st *AuctionStore) Items(ctx context.Context, poolID int64) ([]*models.AuctionItem, error) {
	var items []*models.AuctionItem
	err := st.db.NewSelect().
		Model(&items).
		Where("ai.pool_id = ?", poolID).
		Order("ai.queue_order ASC").
		Scan(ctx)
	return items, err
}

func (st *AuctionStore) PendingItems(ctx context.Context, poolID int64) ([]*models.AuctionItem, error) {
	var items []*models.AuctionItem
	err := st.db.NewSelect().
		Model(&items).
		Where("ai.pool_id = ?", poolID).
		Where("ai.status = ?", models.ItemPending).
		Order("ai.queue_order ASC").
		Scan(ctx)
	return items, err
}

func (st *AuctionStore) NextPendingItem(ctx context.Context, poolID int64) (*models.AuctionItem, error) {
	item := new(models.AuctionItem)
	err := st.db.NewSelect().
		Model(item).
		Where("ai.pool_id = ?", poolID).
		Where("ai.status = ?", models.ItemPending).
		Order("ai.queue_order ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (st *AuctionStore) MaxQueueOrder(ctx context.Context, poolID int64) (int, error) {
	var max int
	err := st.db.NewSelect().
		Model((*models.AuctionItem)(nil)).
		ColumnExpr("COALESCE(MAX(queue_order), 0)").
		Where("pool_id = ?", poolID).
		Scan(ctx, &max)
	return max, err
}

func (st *AuctionStore) LastSoldItem(ctx context.Context, poolID int64) (*models.AuctionItem, error) {
	item := new(models.AuctionItem)
	err := st.db.NewSelect().
		Model(item).
		Where("ai.pool_id = ?", poolID).
		Where("ai.status = ?", models.ItemSold).
		Order("ai.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (st *AuctionStore) AppendBid(ctx context.Context, bid *models.Bid) error {
	_, err := st.db.NewInsert().
		Model(bid).
		Exec(ctx)
	return err
}

func (st *AuctionStore) ClearWinningBid(ctx context.Context, itemID int64) error {
	_, err := st.db.NewUpdate().
		Model((*models.Bid)(nil)).
		Set("is_winning = ?", false).
		Where("item_id = ?", itemID).
		Where("is_winning = ?", true).
		Exec(ctx)
	return err
}

func (st *AuctionStore) BidsForItem(ctx context.Context, itemID int64) ([]*models.Bid, error) {
	var bids []*models.Bid
	err := st.db.NewSelect().
		Model(&bids).
		Where("b.item_id = ?", itemID).
		Order("b.created_at DESC").
		Scan(ctx)
	return bids, err
}

func (st *AuctionStore) InsertOwnership(ctx context.Context, ownership *models.Ownership) error {
	_, err := st.db.NewInsert().
		Model(ownership).
		Exec(ctx)
	return err
}

func (st *AuctionStore) DeleteOwnerships(ctx context.Context, itemID int64) error {
	_, err := st.db.NewDelete().
		Model((*models.Ownership)(nil)).
		Where("auction_item_id = ?", itemID).
		Exec(ctx)
	return err
}

func (st *AuctionStore) OwnershipsForItem(ctx context.Context, itemID int64) ([]*models.Ownership, error) {
	var ownerships []*models.Ownership
	err := st.db.NewSelect().
		Model(&ownerships).
		Where("o.auction_item_id = ?", itemID).
		Order("o.percentage DESC").
		Scan(ctx)
	return ownerships, err
}
