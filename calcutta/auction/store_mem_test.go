package auction

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/madpools/calcutta/calcutta/database/models"
)

// memStore is an in-memory Store for tests. InTx serializes callers on one
// mutex, which mirrors the row-lock ordering the real store gets from
// FOR UPDATE. Failed transactions are not rolled back; the engines validate
// before mutating.
type memStore struct {
	mu *sync.Mutex
	d  *memData
	tx bool
}

type memData struct {
	pools    map[int64]*models.Pool
	members  map[int64]map[string]*models.PoolMember
	sessions map[int64]*models.AuctionSession
	items    map[int64]*models.AuctionItem
	bids     []*models.Bid
	owners   []*models.Ownership

	nextID  int64
	seq     int64
	itemSeq map[int64]int64 // itemID -> last update seq
}

func newMemStore() *memStore {
	return &memStore{
		mu: &sync.Mutex{},
		d: &memData{
			pools:    make(map[int64]*models.Pool),
			members:  make(map[int64]map[string]*models.PoolMember),
			sessions: make(map[int64]*models.AuctionSession),
			items:    make(map[int64]*models.AuctionItem),
			itemSeq:  make(map[int64]int64),
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

func (m *memStore) addItem(item *models.AuctionItem) *models.AuctionItem {
	defer m.lock()()
	if item.ID == 0 {
		item.ID = m.id()
	}
	cp := *item
	m.d.items[item.ID] = &cp
	return item
}

func (m *memStore) addSession(s *models.AuctionSession) *models.AuctionSession {
	defer m.lock()()
	if s.ID == 0 {
		s.ID = m.id()
	}
	cp := *s
	m.d.sessions[s.PoolID] = &cp
	return s
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

func (m *memStore) UpdatePool(_ context.Context, pool *models.Pool) error {
	defer m.lock()()
	cp := *pool
	m.d.pools[pool.ID] = &cp
	return nil
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

func (m *memStore) Members(_ context.Context, poolID int64) ([]*models.PoolMember, error) {
	defer m.lock()()
	var out []*models.PoolMember
	for _, mem := range m.d.members[poolID] {
		cp := *mem
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memStore) UpdateMember(_ context.Context, member *models.PoolMember) error {
	defer m.lock()()
	cp := *member
	m.d.members[member.PoolID][member.UserID] = &cp
	return nil
}

func (m *memStore) Session(_ context.Context, poolID int64) (*models.AuctionSession, error) {
	defer m.lock()()
	s, ok := m.d.sessions[poolID]
	if !ok {
		return nil, fmt.Errorf("session for pool %d: %w", poolID, models.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) CreateSession(_ context.Context, session *models.AuctionSession) error {
	defer m.lock()()
	if session.ID == 0 {
		session.ID = m.id()
	}
	cp := *session
	m.d.sessions[session.PoolID] = &cp
	return nil
}

func (m *memStore) UpdateSession(_ context.Context, session *models.AuctionSession) error {
	defer m.lock()()
	cp := *session
	m.d.sessions[session.PoolID] = &cp
	return nil
}

func (m *memStore) ActiveSessions(_ context.Context) ([]*models.AuctionSession, error) {
	defer m.lock()()
	var out []*models.AuctionSession
	for _, s := range m.d.sessions {
		if s.Status == models.SessionInProgress {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) Item(_ context.Context, itemID int64) (*models.AuctionItem, error) {
	defer m.lock()()
	item, ok := m.d.items[itemID]
	if !ok {
		return nil, fmt.Errorf("item %d: %w", itemID, models.ErrNotFound)
	}
	cp := *item
	return &cp, nil
}

func (m *memStore) ItemForUpdate(ctx context.Context, itemID int64) (*models.AuctionItem, error) {
	return m.Item(ctx, itemID)
}

func (m *memStore) UpdateItem(_ context.Context, item *models.AuctionItem) error {
	defer m.lock()()
	cp := *item
	m.d.items[item.ID] = &cp
	m.d.seq++
	m.d.itemSeq[item.ID] = m.d.seq
	return nil
}

func (m *memStore) Items(_ context.Context, poolID int64) ([]*models.AuctionItem, error) {
	defer m.lock()()
	var out []*models.AuctionItem
	for _, item := range m.d.items {
		if item.PoolID == poolID {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueueOrder < out[j].QueueOrder })
	return out, nil
}

func (m *memStore) PendingItems(ctx context.Context, poolID int64) ([]*models.AuctionItem, error) {
	items, _ := m.Items(ctx, poolID)
	var out []*models.AuctionItem
	for _, item := range items {
		if item.Status == models.ItemPending {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memStore) NextPendingItem(ctx context.Context, poolID int64) (*models.AuctionItem, error) {
	pending, _ := m.PendingItems(ctx, poolID)
	if len(pending) == 0 {
		return nil, nil
	}
	return pending[0], nil
}

func (m *memStore) MaxQueueOrder(_ context.Context, poolID int64) (int, error) {
	defer m.lock()()
	max := 0
	for _, item := range m.d.items {
		if item.PoolID == poolID && item.QueueOrder > max {
			max = item.QueueOrder
		}
	}
	return max, nil
}

func (m *memStore) LastSoldItem(_ context.Context, poolID int64) (*models.AuctionItem, error) {
	defer m.lock()()
	var last *models.AuctionItem
	var lastSeq int64 = -1
	for _, item := range m.d.items {
		if item.PoolID == poolID && item.Status == models.ItemSold && m.d.itemSeq[item.ID] > lastSeq {
			last = item
			lastSeq = m.d.itemSeq[item.ID]
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (m *memStore) AppendBid(_ context.Context, bid *models.Bid) error {
	defer m.lock()()
	if bid.ID == 0 {
		bid.ID = m.id()
	}
	cp := *bid
	m.d.bids = append(m.d.bids, &cp)
	return nil
}

func (m *memStore) ClearWinningBid(_ context.Context, itemID int64) error {
	defer m.lock()()
	for _, b := range m.d.bids {
		if b.ItemID == itemID {
			b.IsWinning = false
		}
	}
	return nil
}

func (m *memStore) BidsForItem(_ context.Context, itemID int64) ([]*models.Bid, error) {
	defer m.lock()()
	var out []*models.Bid
	for _, b := range m.d.bids {
		if b.ItemID == itemID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) InsertOwnership(_ context.Context, ownership *models.Ownership) error {
	defer m.lock()()
	if ownership.ID == 0 {
		ownership.ID = m.id()
	}
	cp := *ownership
	m.d.owners = append(m.d.owners, &cp)
	return nil
}

func (m *memStore) DeleteOwnerships(_ context.Context, itemID int64) error {
	defer m.lock()()
	kept := m.d.owners[:0]
	for _, o := range m.d.owners {
		if o.AuctionItemID != itemID {
			kept = append(kept, o)
		}
	}
	m.d.owners = kept
	return nil
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
	return out, nil
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *capturePublisher) Publish(_ context.Context, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
