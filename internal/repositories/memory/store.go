// Package memory is an in-process SettlementRepository used for local
// development, sandbox deployments and engine tests. Transactions are
// serialized behind one mutex and rolled back by restoring a snapshot.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "settlr/internal/errors"
	"settlr/internal/models"
	"settlr/internal/repositories"

	"github.com/shopspring/decimal"
)

type recipientKey struct {
	provider models.Provider
	account  string
	bank     string
}

type state struct {
	users      map[uint]models.User
	records    map[string]models.SettlementRecord
	byProvider map[string]string
	entries    []models.LedgerEntry
	recipients map[recipientKey]models.PayoutRecipient
	nextID     uint
}

func (s *state) clone() *state {
	c := &state{
		users:      make(map[uint]models.User, len(s.users)),
		records:    make(map[string]models.SettlementRecord, len(s.records)),
		byProvider: make(map[string]string, len(s.byProvider)),
		entries:    append([]models.LedgerEntry(nil), s.entries...),
		recipients: make(map[recipientKey]models.PayoutRecipient, len(s.recipients)),
		nextID:     s.nextID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.byProvider {
		c.byProvider[k] = v
	}
	for k, v := range s.recipients {
		c.recipients[k] = v
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: &state{
		users:      make(map[uint]models.User),
		records:    make(map[string]models.SettlementRecord),
		byProvider: make(map[string]string),
		recipients: make(map[recipientKey]models.PayoutRecipient),
		nextID:     1,
	}}
}

var _ repositories.SettlementRepository = (*Store)(nil)

// AddUser seeds a user. A zero ID is assigned automatically.
func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.st.nextID
		s.st.nextID++
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.st.users[u.ID] = u
	return u
}

// Balance returns the user's balance, for tests and diagnostics.
func (s *Store) Balance(userID uint) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.users[userID].Balance
}

// AllLedgerEntries returns a copy of the whole audit trail.
func (s *Store) AllLedgerEntries() []models.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LedgerEntry(nil), s.st.entries...)
}

func (s *Store) GetByReference(_ context.Context, ref string) (*models.SettlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.find(ref)
}

func (s *Store) List(_ context.Context, f repositories.SettlementFilter) ([]models.SettlementRecord, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.SettlementRecord
	for _, rec := range s.st.records {
		if f.Kind != "" && rec.Kind != f.Kind {
			continue
		}
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if f.Provider != "" && rec.Provider != f.Provider {
			continue
		}
		if f.UserID != 0 && rec.UserID != f.UserID {
			continue
		}
		if !f.CreatedBefore.IsZero() && !rec.CreatedAt.Before(f.CreatedBefore) {
			continue
		}
		if f.ExcludeHeld && rec.ReconciliationHold {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if f.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

// SetHold flags a record for manual reconciliation outside any transaction.
func (s *Store) SetHold(_ context.Context, reference string, hold bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.st.records[reference]
	if !ok {
		return apperrors.ErrSettlementNotFound
	}
	rec.ReconciliationHold = hold
	rec.UpdatedAt = time.Now()
	s.st.records[reference] = rec
	return nil
}

func (s *Store) GetUser(_ context.Context, userID uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.user(userID)
}

func (s *Store) UpdatePayoutAccount(_ context.Context, userID uint, dest models.PayoutDestination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	u.AccountNumber = dest.AccountNumber
	u.BankCode = dest.BankCode
	u.AccountName = dest.AccountName
	s.st.users[userID] = u
	return nil
}

func (s *Store) GetRecipient(_ context.Context, provider models.Provider, accountNumber, bankCode string) (*models.PayoutRecipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.st.recipients[recipientKey{provider, accountNumber, bankCode}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *Store) SaveRecipient(_ context.Context, r *models.PayoutRecipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.st.recipients[recipientKey{r.Provider, r.AccountNumber, r.BankCode}] = *r
	return nil
}

func (s *Store) ExecuteInTransaction(ctx context.Context, fn func(repositories.SettlementTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&tx{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (st *state) find(ref string) (*models.SettlementRecord, error) {
	if rec, ok := st.records[ref]; ok {
		return &rec, nil
	}
	if primary, ok := st.byProvider[ref]; ok {
		rec := st.records[primary]
		return &rec, nil
	}
	return nil, apperrors.ErrSettlementNotFound
}

func (st *state) user(userID uint) (*models.User, error) {
	u, ok := st.users[userID]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return &u, nil
}

// tx operates on the live state while Store.mu is held by ExecuteInTransaction.
type tx struct {
	st *state
}

func (t *tx) CreateSettlement(rec *models.SettlementRecord) error {
	if _, exists := t.st.records[rec.Reference]; exists {
		return apperrors.ErrDuplicateReference
	}
	now := time.Now()
	rec.ID = t.st.nextID
	t.st.nextID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	t.st.records[rec.Reference] = *rec
	if ref := rec.ProviderRef(); ref != "" {
		t.st.byProvider[ref] = rec.Reference
	}
	return nil
}

func (t *tx) LockSettlement(ref string) (*models.SettlementRecord, error) {
	return t.st.find(ref)
}

func (t *tx) SaveSettlement(rec *models.SettlementRecord) error {
	if _, ok := t.st.records[rec.Reference]; !ok {
		return apperrors.ErrSettlementNotFound
	}
	rec.UpdatedAt = time.Now()
	t.st.records[rec.Reference] = *rec
	if ref := rec.ProviderRef(); ref != "" {
		t.st.byProvider[ref] = rec.Reference
	}
	return nil
}

func (t *tx) GetUser(userID uint) (*models.User, error) {
	return t.st.user(userID)
}

func (t *tx) AdjustBalance(userID uint, delta decimal.Decimal) (decimal.Decimal, error) {
	u, ok := t.st.users[userID]
	if !ok {
		return decimal.Zero, apperrors.ErrUserNotFound
	}
	next := u.Balance.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, apperrors.ErrInsufficientFunds
	}
	u.Balance = next
	t.st.users[userID] = u
	return next, nil
}

func (t *tx) AppendLedgerEntry(entry *models.LedgerEntry) error {
	for _, e := range t.st.entries {
		if e.Reference == entry.Reference && e.Kind == entry.Kind {
			return apperrors.ErrInconsistentState
		}
	}
	entry.ID = uint(len(t.st.entries) + 1)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	t.st.entries = append(t.st.entries, *entry)
	return nil
}

func (t *tx) LedgerEntries(reference string) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for _, e := range t.st.entries {
		if e.Reference == reference {
			out = append(out, e)
		}
	}
	return out, nil
}
