package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/madpools/calcutta/calcutta/database/models"
	"github.com/madpools/calcutta/calcutta/economy"
	"github.com/madpools/calcutta/calcutta/payout"
)

// PayoutStore is the bun-backed implementation of payout.Store.
type PayoutStore struct {
	db  bun.IDB
	txm *economy.TxManager
}

var _ payout.Store = (*PayoutStore)(nil)

func NewPayoutStore(db *bun.DB) *PayoutStore {
	return &PayoutStore{db: db, txm: economy.NewTxManager(db)}
}

func (st *PayoutStore) InTx(ctx context.Context, fn func(ctx context.Context, s payout.Store) error) error {
	if st.txm == nil {
		return fn(ctx, st)
	}
	return st.txm.WithTransaction(ctx, economy.SerializableTransactionOptions(), func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &PayoutStore{db: tx})
	})
}

func (st *PayoutStore) PoolsForTournament(ctx context.Context, tournamentID string) ([]*models.Pool, error) {
	var pools []*models.Pool
	err := st.db.NewSelect().
		Model(&pools).
		Where("p.tournament_id = ?", tournamentID).
		Scan(ctx)
	return pools, err
}

func (st *PayoutStore) Pool(ctx context.Context, poolID int64) (*models.Pool, error) {
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

func (st *PayoutStore) Rules(ctx context.Context, poolID int64) ([]*models.PayoutRule, error) {
	var rules []*models.PayoutRule
	err := st.db.NewSelect().
		Model(&rules).
		Where("pr.pool_id = ?", poolID).
		Order("pr.rule_order ASC").
		Scan(ctx)
	return rules, err
}

func (st *PayoutStore) GameProcessed(ctx context.Context, poolID int64, gameID string) (bool, error) {
	return st.db.NewSelect().
		Model((*models.PayoutLog)(nil)).
		Where("pl.pool_id = ?", poolID).
		Where("pl.game_id = ?", gameID).
		Exists(ctx)
}

func (st *PayoutStore) MarkGameProcessed(ctx context.Context, log *models.PayoutLog) error {
	_, err := st.db.NewInsert().
		Model(log).
		Exec(ctx)
	return err
}

func (st *PayoutStore) SoldItemByTeam(ctx context.Context, poolID int64, teamID string) (*models.AuctionItem, error) {
	item := new(models.AuctionItem)
	err := st.db.NewSelect().
		Model(item).
		Where("ai.pool_id = ?", poolID).
		Where("ai.team_id = ?", teamID).
		Where("ai.status = ?", models.ItemSold).
		Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err, "sold item for team %s in pool %d", teamID, poolID)
	}
	return item, nil
}

func (st *PayoutStore) OwnershipsForItem(ctx context.Context, itemID int64) ([]*models.Ownership, error) {
	var ownerships []*models.Ownership
	err := st.db.NewSelect().
		Model(&ownerships).
		Where("o.auction_item_id = ?", itemID).
		Order("o.percentage DESC").
		Scan(ctx)
	return ownerships, err
}

func (st *PayoutStore) InsertPayout(ctx context.Context, p *models.Payout) error {
	_, err := st.db.NewInsert().
		Model(p).
		Exec(ctx)
	return err
}

func (st *PayoutStore) UpdatePayout(ctx context.Context, p *models.Payout) error {
	p.UpdatedAt = time.Now()
	_, err := st.db.NewUpdate().
		Model(p).
		WherePK().
		Exec(ctx)
	return err
}

func (st *PayoutStore) FailedPayouts(ctx context.Context, limit int) ([]*models.Payout, error) {
	var payouts []*models.Payout
	err := st.db.NewSelect().
		Model(&payouts).
		Where("po.status = ?", models.PayoutFailed).
		Order("po.created_at ASC").
		Limit(limit).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return payouts, err
}

func (st *PayoutStore) Member(ctx context.Context, poolID int64, userID string) (*models.PoolMember, error) {
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

func (st *PayoutStore) UpdateMember(ctx context.Context, member *models.PoolMember) error {
	member.UpdatedAt = time.Now()
	_, err := st.db.NewUpdate().
		Model(member).
		WherePK().
		Exec(ctx)
	return err
}
