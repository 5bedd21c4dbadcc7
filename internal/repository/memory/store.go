// Package memory is an in-process ports.Store.  It enforces the same
// uniqueness rules as the MySQL schema and gives InTx all-or-nothing
// semantics by running each transaction against a copy of the state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/beat-license-registry/internal/model"
	"github.com/iliyamo/beat-license-registry/internal/ports"
	"github.com/iliyamo/beat-license-registry/internal/repository"
)

type state struct {
	beats     map[string]model.Beat
	stores    map[string]model.Store
	users     map[string]model.User
	purchases map[string]model.Purchase
	licenses  map[string]model.BeatLicense
}

func newState() *state {
	return &state{
		beats:     map[string]model.Beat{},
		stores:    map[string]model.Store{},
		users:     map[string]model.User{},
		purchases: map[string]model.Purchase{},
		licenses:  map[string]model.BeatLicense{},
	}
}

// clone copies every map.  Values are replaced wholesale on write, never
// mutated in place, so a shallow copy of each entry is enough.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.beats {
		c.beats[k] = v
	}
	for k, v := range s.stores {
		c.stores[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.purchases {
		c.purchases[k] = v
	}
	for k, v := range s.licenses {
		c.licenses[k] = v
	}
	return c
}

// Store is safe for concurrent use.  Transactions are serialised.
type Store struct {
	mu     sync.RWMutex
	st     *state
	faults map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), faults: map[string]error{}}
}

// PutBeat inserts or replaces a beat.
func (s *Store) PutBeat(b model.Beat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.Tiers = cloneTiers(b.Tiers)
	s.st.beats[b.ID] = b
}

// DeleteBeat removes a beat, leaving its licenses in place.
func (s *Store) DeleteBeat(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.beats, id)
}

// DeleteStore removes a store, leaving its licenses in place.
func (s *Store) DeleteStore(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.stores, id)
}

func (s *Store) PutStore(st model.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.stores[st.ID] = st
}

func (s *Store) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[u.ID] = u
}

// PutPurchase seeds a ledger entry without going through a purchase.
func (s *Store) PutPurchase(p model.Purchase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.purchases[p.ID] = p
}

// FailOn makes the named Tx operation return err until cleared with a
// nil err.  Names match the ports.Tx method names.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// Counts reports how many purchases and licenses are stored.
func (s *Store) Counts() (purchases, licenses int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.purchases), len(s.st.licenses)
}

// InTx runs fn against a private copy of the state and publishes the
// copy only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(&memTx{st: work, faults: s.faults}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) GetBeat(_ context.Context, id string) (model.Beat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBeat(s.st, id)
}

func (s *Store) GetStore(_ context.Context, id string) (model.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.st.stores[id]
	if !ok {
		return model.Store{}, repository.ErrNotFound
	}
	return st, nil
}

func (s *Store) GetUser(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUser(s.st, id)
}

func (s *Store) GetPurchase(_ context.Context, id string) (model.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.purchases[id]
	if !ok {
		return model.Purchase{}, repository.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetLicense(_ context.Context, id string) (model.BeatLicense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.st.licenses[id]
	if !ok {
		return model.BeatLicense{}, repository.ErrNotFound
	}
	return cloneLicense(l), nil
}

func (s *Store) GetLicenseByPurchase(_ context.Context, purchaseID string) (model.BeatLicense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.st.licenses {
		if l.PurchaseID == purchaseID {
			return cloneLicense(l), nil
		}
	}
	return model.BeatLicense{}, repository.ErrNotFound
}

func (s *Store) ListLicensesByUser(_ context.Context, userID string) ([]model.BeatLicense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterLicenses(s.st, 0, func(l model.BeatLicense) bool { return l.UserID == userID }), nil
}

func (s *Store) ListLicensesByStore(_ context.Context, storeID string, limit int) ([]model.BeatLicense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterLicenses(s.st, limit, func(l model.BeatLicense) bool { return l.StoreID == storeID }), nil
}

func (s *Store) ListLicensesByUserBeat(_ context.Context, userID, beatID string, tierType model.TierType) ([]model.BeatLicense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listByUserBeat(s.st, userID, beatID, tierType), nil
}

func (s *Store) SetContractGeneratedAt(_ context.Context, licenseID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.st.licenses[licenseID]
	if !ok {
		return repository.ErrNotFound
	}
	at = at.UTC()
	l.ContractGeneratedAt = &at
	s.st.licenses[licenseID] = l
	return nil
}

func (s *Store) UpdateBeatTiers(_ context.Context, beatID string, tiers []model.Tier, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := getBeat(s.st, beatID)
	if err != nil {
		return err
	}
	if b.IsExclusivelySold() {
		return repository.ErrConflict
	}
	b.Tiers = cloneTiers(tiers)
	b.UpdatedAt = at.UTC()
	s.st.beats[beatID] = b
	return nil
}

// memTx works on the transaction's private state; the Store lock is
// held for its whole lifetime.
type memTx struct {
	st     *state
	faults map[string]error
}

func (t *memTx) fault(op string) error {
	return t.faults[op]
}

func (t *memTx) GetBeatForUpdate(_ context.Context, beatID string) (model.Beat, error) {
	if err := t.fault("GetBeatForUpdate"); err != nil {
		return model.Beat{}, err
	}
	return getBeat(t.st, beatID)
}

func (t *memTx) ListLicensesByUserBeat(_ context.Context, userID, beatID string, tierType model.TierType) ([]model.BeatLicense, error) {
	if err := t.fault("ListLicensesByUserBeat"); err != nil {
		return nil, err
	}
	return listByUserBeat(t.st, userID, beatID, tierType), nil
}

func (t *memTx) GetStoreByOwner(_ context.Context, ownerUserID string) (model.Store, error) {
	if err := t.fault("GetStoreByOwner"); err != nil {
		return model.Store{}, err
	}
	// Deterministic pick when a test seeds several stores for one owner.
	ids := make([]string, 0)
	for id, st := range t.st.stores {
		if st.OwnerUserID == ownerUserID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return model.Store{}, repository.ErrNotFound
	}
	sort.Strings(ids)
	return t.st.stores[ids[0]], nil
}

func (t *memTx) GetUser(_ context.Context, userID string) (model.User, error) {
	if err := t.fault("GetUser"); err != nil {
		return model.User{}, err
	}
	return getUser(t.st, userID)
}

func (t *memTx) GetPurchase(_ context.Context, purchaseID string) (model.Purchase, error) {
	if err := t.fault("GetPurchase"); err != nil {
		return model.Purchase{}, err
	}
	p, ok := t.st.purchases[purchaseID]
	if !ok {
		return model.Purchase{}, repository.ErrNotFound
	}
	return p, nil
}

func (t *memTx) CreatePurchase(_ context.Context, p model.Purchase) error {
	if err := t.fault("CreatePurchase"); err != nil {
		return err
	}
	if _, dup := t.st.purchases[p.ID]; dup {
		return repository.ErrConflict
	}
	t.st.purchases[p.ID] = p
	return nil
}

func (t *memTx) CreateBeatLicense(_ context.Context, l model.BeatLicense) error {
	if err := t.fault("CreateBeatLicense"); err != nil {
		return err
	}
	if _, ok := t.st.purchases[l.PurchaseID]; !ok {
		return fmt.Errorf("%w: purchase %s for license", repository.ErrNotFound, l.PurchaseID)
	}
	for _, other := range t.st.licenses {
		switch {
		case other.ID == l.ID, other.PurchaseID == l.PurchaseID:
			return repository.ErrConflict
		case other.UserID == l.UserID && other.BeatID == l.BeatID && other.TierType == l.TierType:
			return repository.ErrConflict
		case l.TierType == model.TierExclusive && other.TierType == model.TierExclusive && other.BeatID == l.BeatID:
			return repository.ErrConflict
		}
	}
	t.st.licenses[l.ID] = cloneLicense(l)
	return nil
}

func (t *memTx) LinkPurchaseLicense(_ context.Context, purchaseID, licenseID string) error {
	if err := t.fault("LinkPurchaseLicense"); err != nil {
		return err
	}
	p, ok := t.st.purchases[purchaseID]
	if !ok {
		return repository.ErrNotFound
	}
	id := licenseID
	p.BeatLicenseID = &id
	t.st.purchases[purchaseID] = p
	return nil
}

func (t *memTx) MarkBeatExclusivelySold(_ context.Context, beatID, userID, purchaseID string, at time.Time) error {
	if err := t.fault("MarkBeatExclusivelySold"); err != nil {
		return err
	}
	b, err := getBeat(t.st, beatID)
	if err != nil {
		return err
	}
	if b.IsExclusivelySold() {
		return repository.ErrConflict
	}
	at = at.UTC()
	to, pid := userID, purchaseID
	b.ExclusiveSoldAt = &at
	b.ExclusiveSoldTo = &to
	b.ExclusivePurchaseID = &pid
	b.IsPublished = false
	b.UpdatedAt = at
	t.st.beats[beatID] = b
	return nil
}

func getBeat(st *state, id string) (model.Beat, error) {
	b, ok := st.beats[id]
	if !ok {
		return model.Beat{}, repository.ErrNotFound
	}
	b.Tiers = cloneTiers(b.Tiers)
	return b, nil
}

func getUser(st *state, id string) (model.User, error) {
	u, ok := st.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func listByUserBeat(st *state, userID, beatID string, tierType model.TierType) []model.BeatLicense {
	return filterLicenses(st, 0, func(l model.BeatLicense) bool {
		return l.UserID == userID && l.BeatID == beatID && (tierType == "" || l.TierType == tierType)
	})
}

// filterLicenses returns matches newest first, ties broken by id; a
// limit of zero or less means unlimited.
func filterLicenses(st *state, limit int, keep func(model.BeatLicense) bool) []model.BeatLicense {
	out := make([]model.BeatLicense, 0)
	for _, l := range st.licenses {
		if keep(l) {
			out = append(out, cloneLicense(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cloneTiers(in []model.Tier) []model.Tier {
	if in == nil {
		return nil
	}
	out := make([]model.Tier, len(in))
	for i, t := range in {
		t.UsageRights = t.UsageRights.Clone()
		out[i] = t
	}
	return out
}

func cloneLicense(l model.BeatLicense) model.BeatLicense {
	l.Rights = l.Rights.Clone()
	if l.DeliveredFiles != nil {
		l.DeliveredFiles = append([]string(nil), l.DeliveredFiles...)
	}
	return l
}

// CustomerRepo is an in-process CRM keyed by (lower-cased email, store).
type CustomerRepo struct {
	mu   sync.Mutex
	rows map[string]model.Customer
}

func NewCustomerRepo() *CustomerRepo {
	return &CustomerRepo{rows: map[string]model.Customer{}}
}

func (r *CustomerRepo) Upsert(_ context.Context, in ports.CustomerUpsert) error {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return fmt.Errorf("%w: customer email is empty", repository.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := email + "\x00" + in.StoreID
	c, ok := r.rows[key]
	if !ok {
		c = model.Customer{
			ID:           uuid.NewString(),
			Email:        email,
			StoreID:      in.StoreID,
			SellerUserID: in.SellerUserID,
			Name:         in.Name,
			Type:         model.CustomerTypeLead,
			Source:       in.Source,
		}
	}
	if in.AmountCents > 0 {
		c.Type = model.CustomerTypePaying
	}
	c.Status = model.CustomerStatusActive
	c.TotalSpentCents += in.AmountCents
	c.LastActivity = in.At.UTC()
	r.rows[key] = c
	return nil
}

// Get returns the record for (email, store).
func (r *CustomerRepo) Get(email, storeID string) (model.Customer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[strings.ToLower(strings.TrimSpace(email))+"\x00"+storeID]
	return c, ok
}

var (
	_ ports.Store              = (*Store)(nil)
	_ ports.Tx                 = (*memTx)(nil)
	_ ports.CustomerRepository = (*CustomerRepo)(nil)
)
