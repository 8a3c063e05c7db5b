package payout

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/madpools/calcutta/calcutta/database/models"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu *sync.Mutex
	d  *memData
	tx bool
}

type memData struct {
	pools   map[int64]*models.Pool
	members map[int64]map[string]*models.PoolMember
	rules   map[int64][]*models.PayoutRule
	items   map[int64]*models.AuctionItem
	owners  []*models.Ownership
	payouts []*models.Payout
	logs    map[string]bool // poolID|gameID

	nextID int64
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		mu: &sync.Mutex{},
		d: &memData{
			pools:   make(map[int64]*models.Pool),
			members: make(map[int64]map[string]*models.PoolMember),
			rules:   make(map[int64][]*models.PayoutRule),
			items:   make(map[int64]*models.AuctionItem),
			logs:    make(map[string]bool),
		},
	}
}

func (m *memStore) lock() func() {
	if m.tx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *memStore) id() int64 {
	m.d.nextID++
	return m.d.nextID
}

func logKey(poolID int64, gameID string) string {
	return fmt.Sprintf("%d|%s", poolID, gameID)
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	if m.tx {
		return fn(ctx, m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, &memStore{mu: m.mu, d: m.d, tx: true})
}

func (m *memStore) addPool(p *models.Pool) *models.Pool {
	defer m.lock()()
	if p.ID == 0 {
		p.ID = m.id()
	}
	cp := *p
	m.d.pools[p.ID] = &cp
	return p
}

func (m *memStore) addMember(mem *models.PoolMember) *models.PoolMember {
	defer m.lock()()
	if mem.ID == 0 {
		mem.ID = m.id()
	}
	if m.d.members[mem.PoolID] == nil {
		m.d.members[mem.PoolID] = make(map[string]*models.PoolMember)
	}
	cp := *mem
	m.d.members[mem.PoolID][mem.UserID] = &cp
	return mem
}

func (m *memStore) addRule(r *models.PayoutRule) *models.PayoutRule {
	defer m.lock()()
	if r.ID == 0 {
		r.ID = m.id()
	}
	cp := *r
	m.d.rules[r.PoolID] = append(m.d.rules[r.PoolID], &cp)
	return r
}

func (m *memStore) addItem(item *models.AuctionItem) *models.AuctionItem {
	defer m.lock()()
	if item.ID == 0 {
		item.ID = m.id()
	}
	cp := *item
	m.d.items[item.ID] = &cp
	return item
}

func (m *memStore) addOwnership(o *models.Ownership) *models.Ownership {
	defer m.lock()()
	if o.ID == 0 {
		o.ID = m.id()
	}
	cp := *o
	m.d.owners = append(m.d.owners, &cp)
	return o
}

func (m *memStore) PoolsForTournament(_ context.Context, tournamentID string) ([]*models.Pool, error) {
	defer m.lock()()
	var out []*models.Pool
	for _, p := range m.d.pools {
		if p.TournamentID == tournamentID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) Pool(_ context.Context, poolID int64) (*models.Pool, error) {
	defer m.lock()()
	p, ok := m.d.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("pool %d: %w", poolID, models.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) Rules(_ context.Context, poolID int64) ([]*models.PayoutRule, error) {
	defer m.lock()()
	var out []*models.PayoutRule
	for _, r := range m.d.rules[poolID] {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleOrder < out[j].RuleOrder })
	return out, nil
}

func (m *memStore) GameProcessed(_ context.Context, poolID int64, gameID string) (bool, error) {
	defer m.lock()()
	return m.d.logs[logKey(poolID, gameID)], nil
}

func (m *memStore) MarkGameProcessed(_ context.Context, log *models.PayoutLog) error {
	defer m.lock()()
	m.d.logs[logKey(log.PoolID, log.GameID)] = true
	return nil
}

func (m *memStore) SoldItemByTeam(_ context.Context, poolID int64, teamID string) (*models.AuctionItem, error) {
	defer m.lock()()
	for _, item := range m.d.items {
		if item.PoolID == poolID && item.TeamID == teamID && item.Status == models.ItemSold {
			cp := *item
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("sold item for team %s: %w", teamID, models.ErrNotFound)
}

func (m *memStore) OwnershipsForItem(_ context.Context, itemID int64) ([]*models.Ownership, error) {
	defer m.lock()()
	var out []*models.Ownership
	for _, o := range m.d.owners {
		if o.AuctionItemID == itemID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Percentage.GreaterThan(out[j].Percentage) })
	return out, nil
}

func (m *memStore) InsertPayout(_ context.Context, p *models.Payout) error {
	defer m.lock()()
	if p.ID == 0 {
		p.ID = m.id()
	}
	cp := *p
	m.d.payouts = append(m.d.payouts, &cp)
	return nil
}

func (m *memStore) UpdatePayout(_ context.Context, p *models.Payout) error {
	defer m.lock()()
	for i, existing := range m.d.payouts {
		if existing.ID == p.ID {
			cp := *p
			m.d.payouts[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("payout %d: %w", p.ID, models.ErrNotFound)
}

func (m *memStore) FailedPayouts(_ context.Context, limit int) ([]*models.Payout, error) {
	defer m.lock()()
	var out []*models.Payout
	for _, p := range m.d.payouts {
		if p.Status == models.PayoutFailed {
			cp := *p
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) Member(_ context.Context, poolID int64, userID string) (*models.PoolMember, error) {
	defer m.lock()()
	mem, ok := m.d.members[poolID][userID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", userID, models.ErrNotFound)
	}
	cp := *mem
	return &cp, nil
}

func (m *memStore) UpdateMember(_ context.Context, member *models.PoolMember) error {
	defer m.lock()()
	cp := *member
	m.d.members[member.PoolID][member.UserID] = &cp
	return nil
}

func (m *memStore) payoutsFor(poolID int64) []*models.Payout {
	defer m.lock()()
	var out []*models.Payout
	for _, p := range m.d.payouts {
		if p.PoolID == poolID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}
