package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/conference-booking/internal/model"
)

// MemoryStore keeps every record in process. Transactions stage their writes
// and apply them atomically on commit after re-checking record versions, so
// its semantics match the Postgres adapter.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]model.User
	conferences map[string]model.Conference
	bookings    map[string]model.Booking

	locks *keyedLocks
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]model.User),
		conferences: make(map[string]model.Conference),
		bookings:    make(map[string]model.Booking),
		locks:       newKeyedLocks(),
	}
}

// RunInTx implements Store.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return retryTx(ctx, func() error {
		tx := s.begin()
		defer tx.release()

		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.commit()
	})
}

func (s *MemoryStore) begin() *memoryTx {
	return &memoryTx{
		store:        s,
		held:         make(map[string]bool),
		users:        make(map[string]model.User),
		conferences:  make(map[string]model.Conference),
		bookings:     make(map[string]model.Booking),
		created:      make(map[string]bool),
		confBase:     make(map[string]int64),
		bookingBase:  make(map[string]int64),
		newUsers:     make(map[string]bool),
		newConfNames: make(map[string]bool),
	}
}

type memoryTx struct {
	store *MemoryStore
	held  map[string]bool
	order []string

	// staged writes, overlaid on committed state for reads
	users       map[string]model.User
	conferences map[string]model.Conference
	bookings    map[string]model.Booking

	created      map[string]bool
	newUsers     map[string]bool
	newConfNames map[string]bool

	// version each updated record had when this tx first wrote it
	confBase    map[string]int64
	bookingBase map[string]int64
}

func (t *memoryTx) lock(ctx context.Context, key string) error {
	if t.held[key] {
		return nil
	}
	if err := t.store.locks.acquire(ctx, key); err != nil {
		return err
	}
	t.held[key] = true
	t.order = append(t.order, key)
	return nil
}

func (t *memoryTx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.store.locks.release(t.order[i])
	}
	t.order = nil
	t.held = map[string]bool{}
}

func (t *memoryTx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, base := range t.confBase {
		if cur, ok := s.conferences[name]; !ok || cur.Version != base {
			return fmt.Errorf("conference %s: %w", name, ErrTxConflict)
		}
	}
	for id, base := range t.bookingBase {
		if cur, ok := s.bookings[id]; !ok || cur.Version != base {
			return fmt.Errorf("booking %s: %w", id, ErrTxConflict)
		}
	}
	for id := range t.newUsers {
		if _, ok := s.users[id]; ok {
			return fmt.Errorf("user %s: %w", id, ErrDuplicate)
		}
	}
	for name := range t.newConfNames {
		if _, ok := s.conferences[name]; ok {
			return fmt.Errorf("conference %s: %w", name, ErrDuplicate)
		}
	}
	for id := range t.created {
		b := t.bookings[id]
		if b.Status == model.StatusCancelled {
			continue
		}
		for _, cur := range s.bookings {
			if cur.Active() && cur.UserID == b.UserID && cur.ConferenceName == b.ConferenceName {
				return fmt.Errorf("active booking for %s/%s: %w", b.UserID, b.ConferenceName, ErrDuplicate)
			}
		}
	}

	for id, u := range t.users {
		s.users[id] = u
	}
	for name, c := range t.conferences {
		s.conferences[name] = c
	}
	for id, b := range t.bookings {
		s.bookings[id] = b
	}
	return nil
}

// reads

func (t *memoryTx) user(id string) (model.User, bool) {
	if u, ok := t.users[id]; ok {
		return u, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	u, ok := t.store.users[id]
	return u, ok
}

func (t *memoryTx) conference(name string) (model.Conference, bool) {
	if c, ok := t.conferences[name]; ok {
		return c, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	c, ok := t.store.conferences[name]
	return c, ok
}

func (t *memoryTx) booking(id string) (model.Booking, bool) {
	if b, ok := t.bookings[id]; ok {
		return b, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	b, ok := t.store.bookings[id]
	return b, ok
}

// allBookings returns committed bookings overlaid with staged ones.
func (t *memoryTx) allBookings() []model.Booking {
	t.store.mu.RLock()
	out := make([]model.Booking, 0, len(t.store.bookings)+len(t.bookings))
	for id, b := range t.store.bookings {
		if _, staged := t.bookings[id]; !staged {
			out = append(out, b)
		}
	}
	t.store.mu.RUnlock()
	for _, b := range t.bookings {
		out = append(out, b)
	}
	return out
}

func (t *memoryTx) LockUser(ctx context.Context, userID string) (*model.User, error) {
	if err := t.lock(ctx, "user:"+userID); err != nil {
		return nil, err
	}
	return t.GetUser(ctx, userID)
}

func (t *memoryTx) LockConference(ctx context.Context, name string) (*model.Conference, error) {
	if err := t.lock(ctx, "conference:"+name); err != nil {
		return nil, err
	}
	return t.GetConference(ctx, name)
}

func (t *memoryTx) GetUser(_ context.Context, userID string) (*model.User, error) {
	u, ok := t.user(userID)
	if !ok {
		return nil, ErrNotFound
	}
	u.InterestedTopics = append([]string(nil), u.InterestedTopics...)
	return &u, nil
}

func (t *memoryTx) GetConference(_ context.Context, name string) (*model.Conference, error) {
	c, ok := t.conference(name)
	if !ok {
		return nil, ErrNotFound
	}
	c.Topics = append([]string(nil), c.Topics...)
	return &c, nil
}

func (t *memoryTx) GetBooking(_ context.Context, id string) (*model.Booking, error) {
	b, ok := t.booking(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (t *memoryTx) FindActiveBooking(_ context.Context, userID, conference string) (*model.Booking, error) {
	for _, b := range t.allBookings() {
		if b.UserID == userID && b.ConferenceName == conference && b.Active() {
			return &b, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memoryTx) ListBookingsByConference(_ context.Context, conference string, status model.BookingStatus) ([]*model.Booking, error) {
	var out []*model.Booking
	for _, b := range t.allBookings() {
		if b.ConferenceName == conference && b.Status == status {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WaitlistSeq != out[j].WaitlistSeq {
			return out[i].WaitlistSeq < out[j].WaitlistSeq
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memoryTx) ListUserBookings(_ context.Context, userID string, statuses ...model.BookingStatus) ([]*model.UserBooking, error) {
	var out []*model.UserBooking
	for _, b := range t.allBookings() {
		if b.UserID != userID || !hasStatus(b.Status, statuses) {
			continue
		}
		c, ok := t.conference(b.ConferenceName)
		if !ok {
			continue
		}
		out = append(out, &model.UserBooking{Booking: b, Window: c.Window()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// writes

func (t *memoryTx) CreateUser(_ context.Context, u *model.User) error {
	if _, ok := t.user(u.UserID); ok {
		return fmt.Errorf("user %s: %w", u.UserID, ErrDuplicate)
	}
	cp := *u
	cp.InterestedTopics = append([]string(nil), u.InterestedTopics...)
	t.users[u.UserID] = cp
	t.newUsers[u.UserID] = true
	return nil
}

func (t *memoryTx) CreateConference(_ context.Context, c *model.Conference) error {
	if _, ok := t.conference(c.Name); ok {
		return fmt.Errorf("conference %s: %w", c.Name, ErrDuplicate)
	}
	c.Version = 1
	cp := *c
	cp.Topics = append([]string(nil), c.Topics...)
	t.conferences[c.Name] = cp
	t.newConfNames[c.Name] = true
	return nil
}

func (t *memoryTx) CreateBooking(ctx context.Context, b *model.Booking) error {
	if b.Active() {
		if _, err := t.FindActiveBooking(ctx, b.UserID, b.ConferenceName); err == nil {
			return fmt.Errorf("active booking for %s/%s: %w", b.UserID, b.ConferenceName, ErrDuplicate)
		}
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.Version = 1
	t.bookings[b.ID] = *b
	t.created[b.ID] = true
	return nil
}

func (t *memoryTx) UpdateBooking(_ context.Context, b *model.Booking) error {
	cur, ok := t.booking(b.ID)
	if !ok {
		return fmt.Errorf("booking %s: %w", b.ID, ErrNotFound)
	}
	if cur.Version != b.Version {
		return fmt.Errorf("booking %s: %w", b.ID, ErrTxConflict)
	}
	if _, staged := t.bookings[b.ID]; !staged {
		t.bookingBase[b.ID] = b.Version
	}
	b.Version++
	t.bookings[b.ID] = *b
	return nil
}

func (t *memoryTx) UpdateConference(_ context.Context, c *model.Conference) error {
	cur, ok := t.conference(c.Name)
	if !ok {
		return fmt.Errorf("conference %s: %w", c.Name, ErrNotFound)
	}
	if cur.Version != c.Version {
		return fmt.Errorf("conference %s: %w", c.Name, ErrTxConflict)
	}
	if _, staged := t.conferences[c.Name]; !staged && !t.newConfNames[c.Name] {
		t.confBase[c.Name] = c.Version
	}
	c.Version++
	cp := *c
	cp.Topics = append([]string(nil), c.Topics...)
	t.conferences[c.Name] = cp
	return nil
}

// keyedLocks is a set of exclusive locks addressed by string key. Waiting for
// a lock honours context cancellation.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]chan struct{})}
}

func (k *keyedLocks) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	return ch
}

func (k *keyedLocks) acquire(ctx context.Context, key string) error {
	select {
	case k.slot(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *keyedLocks) release(key string) {
	<-k.slot(key)
}
