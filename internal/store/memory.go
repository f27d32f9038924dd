package store

import (
	"context"
	"sort"
	"sync"

	"github.com/punchamoorthee/warrantyops/internal/domain"
)

// Memory is the in-memory Store used by unit tests and local development.
// A single mutex serializes operations, matching the one-call-at-a-time
// execution model; Atomic runs against a deep copy and swaps it in on
// success, so a failed operation leaves nothing behind.
type Memory struct {
	mu   *sync.Mutex
	st   *memState
	inTx bool
}

type memState struct {
	accounts       map[string]int64
	transfers      []domain.Transfer
	nextTransferID int64
	entries        []domain.LedgerEntry

	warranties     map[int64]domain.Warranty
	nextWarrantyID int64
	maintenance    map[int64][]domain.MaintenanceRecord
	warrantyClaims map[int64]domain.WarrantyClaim

	policies     map[int64]domain.InsurancePolicy
	nextPolicyID int64
	insClaims    map[int64]domain.InsuranceClaim

	certs       map[int64]domain.Certificate
	ratings     map[int64]map[string]domain.Rating
	events      []domain.Event
	nextEventID int64

	idem map[string]domain.IdempotencyRecord
}

func newMemState() *memState {
	return &memState{
		accounts:       make(map[string]int64),
		nextTransferID: 1,
		warranties:     make(map[int64]domain.Warranty),
		nextWarrantyID: 1,
		maintenance:    make(map[int64][]domain.MaintenanceRecord),
		warrantyClaims: make(map[int64]domain.WarrantyClaim),
		policies:       make(map[int64]domain.InsurancePolicy),
		nextPolicyID:   1,
		insClaims:      make(map[int64]domain.InsuranceClaim),
		certs:          make(map[int64]domain.Certificate),
		ratings:        make(map[int64]map[string]domain.Rating),
		nextEventID:    1,
		idem:           make(map[string]domain.IdempotencyRecord),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts:       make(map[string]int64, len(s.accounts)),
		transfers:      append([]domain.Transfer(nil), s.transfers...),
		nextTransferID: s.nextTransferID,
		entries:        append([]domain.LedgerEntry(nil), s.entries...),
		warranties:     make(map[int64]domain.Warranty, len(s.warranties)),
		nextWarrantyID: s.nextWarrantyID,
		maintenance:    make(map[int64][]domain.MaintenanceRecord, len(s.maintenance)),
		warrantyClaims: make(map[int64]domain.WarrantyClaim, len(s.warrantyClaims)),
		policies:       make(map[int64]domain.InsurancePolicy, len(s.policies)),
		nextPolicyID:   s.nextPolicyID,
		insClaims:      make(map[int64]domain.InsuranceClaim, len(s.insClaims)),
		certs:          make(map[int64]domain.Certificate, len(s.certs)),
		ratings:        make(map[int64]map[string]domain.Rating, len(s.ratings)),
		events:         append([]domain.Event(nil), s.events...),
		nextEventID:    s.nextEventID,
		idem:           make(map[string]domain.IdempotencyRecord, len(s.idem)),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.warranties {
		c.warranties[k] = v
	}
	for k, v := range s.maintenance {
		c.maintenance[k] = append([]domain.MaintenanceRecord(nil), v...)
	}
	for k, v := range s.warrantyClaims {
		c.warrantyClaims[k] = v
	}
	for k, v := range s.policies {
		c.policies[k] = v
	}
	for k, v := range s.insClaims {
		c.insClaims[k] = v
	}
	for k, v := range s.certs {
		c.certs[k] = v
	}
	for k, v := range s.ratings {
		m := make(map[string]domain.Rating, len(v))
		for rk, rv := range v {
			m[rk] = rv
		}
		c.ratings[k] = m
	}
	for k, v := range s.idem {
		c.idem[k] = v
	}
	return c
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{mu: &sync.Mutex{}, st: newMemState()}
}

func (m *Memory) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// Atomic runs fn against a copy of the state and swaps the copy in only
// when fn succeeds. Nested calls join the enclosing transaction.
func (m *Memory) Atomic(_ context.Context, fn func(Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.st.clone()
	child := &Memory{mu: m.mu, st: next, inTx: true}
	if err := fn(child); err != nil {
		return err
	}
	m.st = next
	return nil
}

// ─── Accounts and ledger ────────────────────────────────────────────────

func (m *Memory) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	defer m.lock()()
	bal, ok := m.st.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.Account{ID: id, Balance: bal}, nil
}

func (m *Memory) GetAccountForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	// The global mutex already serializes; row locking is a no-op here.
	return m.GetAccount(ctx, id)
}

func (m *Memory) EnsureAccount(_ context.Context, id string) error {
	defer m.lock()()
	if _, ok := m.st.accounts[id]; !ok {
		m.st.accounts[id] = 0
	}
	return nil
}

func (m *Memory) AdjustBalance(_ context.Context, id string, delta int64) error {
	defer m.lock()()
	if _, ok := m.st.accounts[id]; !ok {
		return domain.ErrNotFound
	}
	m.st.accounts[id] += delta
	return nil
}

func (m *Memory) CreateTransfer(_ context.Context, t *domain.Transfer) (int64, error) {
	defer m.lock()()
	t.ID = m.st.nextTransferID
	m.st.nextTransferID++
	m.st.transfers = append(m.st.transfers, *t)
	return t.ID, nil
}

func (m *Memory) AppendLedgerEntries(_ context.Context, entries []domain.LedgerEntry) error {
	defer m.lock()()
	m.st.entries = append(m.st.entries, entries...)
	return nil
}

func (m *Memory) ListLedgerEntries(_ context.Context, accountID string) ([]domain.LedgerEntry, error) {
	defer m.lock()()
	if _, ok := m.st.accounts[accountID]; !ok {
		return nil, domain.ErrNotFound
	}
	var out []domain.LedgerEntry
	for _, e := range m.st.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ─── Warranties ─────────────────────────────────────────────────────────

func (m *Memory) CreateWarranty(_ context.Context, w *domain.Warranty) (int64, error) {
	defer m.lock()()
	w.ID = m.st.nextWarrantyID
	m.st.nextWarrantyID++
	m.st.warranties[w.ID] = *w
	return w.ID, nil
}

func (m *Memory) GetWarranty(_ context.Context, id int64) (*domain.Warranty, error) {
	defer m.lock()()
	w, ok := m.st.warranties[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &w, nil
}

func (m *Memory) UpdateWarranty(_ context.Context, w *domain.Warranty) error {
	defer m.lock()()
	if _, ok := m.st.warranties[w.ID]; !ok {
		return domain.ErrNotFound
	}
	m.st.warranties[w.ID] = *w
	return nil
}

func (m *Memory) AppendMaintenance(_ context.Context, rec *domain.MaintenanceRecord) error {
	defer m.lock()()
	m.st.maintenance[rec.WarrantyID] = append(m.st.maintenance[rec.WarrantyID], *rec)
	return nil
}

func (m *Memory) ListMaintenance(_ context.Context, warrantyID int64) ([]domain.MaintenanceRecord, error) {
	defer m.lock()()
	return append([]domain.MaintenanceRecord(nil), m.st.maintenance[warrantyID]...), nil
}

// ─── Warranty claims ────────────────────────────────────────────────────

func (m *Memory) PutWarrantyClaim(_ context.Context, c *domain.WarrantyClaim) error {
	defer m.lock()()
	m.st.warrantyClaims[c.WarrantyID] = *c
	return nil
}

func (m *Memory) GetWarrantyClaim(_ context.Context, warrantyID int64) (*domain.WarrantyClaim, error) {
	defer m.lock()()
	c, ok := m.st.warrantyClaims[warrantyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

// ─── Insurance ──────────────────────────────────────────────────────────

func (m *Memory) CreatePolicy(_ context.Context, p *domain.InsurancePolicy) (int64, error) {
	defer m.lock()()
	p.ID = m.st.nextPolicyID
	m.st.nextPolicyID++
	m.st.policies[p.ID] = *p
	return p.ID, nil
}

func (m *Memory) GetPolicy(_ context.Context, id int64) (*domain.InsurancePolicy, error) {
	defer m.lock()()
	p, ok := m.st.policies[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (m *Memory) UpdatePolicy(_ context.Context, p *domain.InsurancePolicy) error {
	defer m.lock()()
	if _, ok := m.st.policies[p.ID]; !ok {
		return domain.ErrNotFound
	}
	m.st.policies[p.ID] = *p
	return nil
}

func (m *Memory) PutInsuranceClaim(_ context.Context, c *domain.InsuranceClaim) error {
	defer m.lock()()
	m.st.insClaims[c.PolicyID] = *c
	return nil
}

func (m *Memory) GetInsuranceClaim(_ context.Context, policyID int64) (*domain.InsuranceClaim, error) {
	defer m.lock()()
	c, ok := m.st.insClaims[policyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

// ─── Certificates, ratings, events ──────────────────────────────────────

func (m *Memory) CreateCertificate(_ context.Context, c *domain.Certificate) error {
	defer m.lock()()
	if _, ok := m.st.certs[c.WarrantyID]; ok {
		return domain.ErrAlreadyExists
	}
	m.st.certs[c.WarrantyID] = *c
	return nil
}

func (m *Memory) GetCertificate(_ context.Context, warrantyID int64) (*domain.Certificate, error) {
	defer m.lock()()
	c, ok := m.st.certs[warrantyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *Memory) PutRating(_ context.Context, r *domain.Rating) error {
	defer m.lock()()
	byRater, ok := m.st.ratings[r.WarrantyID]
	if !ok {
		byRater = make(map[string]domain.Rating)
		m.st.ratings[r.WarrantyID] = byRater
	}
	byRater[r.Rater] = *r
	return nil
}

func (m *Memory) ListRatings(_ context.Context, warrantyID int64) ([]domain.Rating, error) {
	defer m.lock()()
	var out []domain.Rating
	for _, r := range m.st.ratings[warrantyID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rater < out[j].Rater })
	return out, nil
}

func (m *Memory) AppendEvent(_ context.Context, e *domain.Event) error {
	defer m.lock()()
	e.ID = m.st.nextEventID
	m.st.nextEventID++
	m.st.events = append(m.st.events, *e)
	return nil
}

func (m *Memory) ListEvents(_ context.Context, warrantyID int64) ([]domain.Event, error) {
	defer m.lock()()
	var out []domain.Event
	for _, e := range m.st.events {
		if e.WarrantyID == warrantyID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ─── Idempotency ────────────────────────────────────────────────────────

func (m *Memory) GetIdempotencyRecord(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	defer m.lock()()
	rec, ok := m.st.idem[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (m *Memory) ReserveIdempotencyKey(_ context.Context, key, requestHash string) error {
	defer m.lock()()
	if _, ok := m.st.idem[key]; ok {
		return ErrIdempotencyConflict
	}
	m.st.idem[key] = domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdemInProgress,
	}
	return nil
}

func (m *Memory) CompleteIdempotencyKey(_ context.Context, key string, status int, body []byte) error {
	defer m.lock()()
	rec, ok := m.st.idem[key]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = domain.IdemCompleted
	rec.ResponseStatus = status
	rec.ResponseBody = append([]byte(nil), body...)
	m.st.idem[key] = rec
	return nil
}

var _ Store = (*Memory)(nil)
