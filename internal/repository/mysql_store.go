package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/beat-license-registry/internal/model"
	"github.com/iliyamo/beat-license-registry/internal/ports"
)

// maxTxAttempts bounds how often a transaction that lost a deadlock or
// lock-wait race is replayed.
const maxTxAttempts = 3

// MySQLStore implements ports.Store on top of the table repositories.
type MySQLStore struct {
	db       *sql.DB
	Beats    *BeatRepo
	Stores   *StoreRepo
	Users    *UserRepo
	Purchase *PurchaseRepo
	Licenses *BeatLicenseRepo
}

// NewMySQLStore wires every repository to db.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{
		db:       db,
		Beats:    NewBeatRepo(db),
		Stores:   NewStoreRepo(db),
		Users:    NewUserRepo(db),
		Purchase: NewPurchaseRepo(db),
		Licenses: NewBeatLicenseRepo(db),
	}
}

// DB exposes the pool for health checks and migrations.
func (s *MySQLStore) DB() *sql.DB { return s.db }

// InTx runs fn inside a READ COMMITTED transaction.  The beat row lock
// taken by GetBeatForUpdate serialises competing purchases; deadlocks
// and lock wait timeouts replay fn from the start.
func (s *MySQLStore) InTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func (s *MySQLStore) runTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&mysqlTx{s: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *MySQLStore) GetBeat(ctx context.Context, id string) (model.Beat, error) {
	return s.Beats.GetByID(ctx, id)
}

func (s *MySQLStore) GetStore(ctx context.Context, id string) (model.Store, error) {
	return s.Stores.GetByID(ctx, id)
}

func (s *MySQLStore) GetUser(ctx context.Context, id string) (model.User, error) {
	return s.Users.GetByID(ctx, id)
}

func (s *MySQLStore) GetLicense(ctx context.Context, id string) (model.BeatLicense, error) {
	return s.Licenses.GetByID(ctx, id)
}

func (s *MySQLStore) GetLicenseByPurchase(ctx context.Context, purchaseID string) (model.BeatLicense, error) {
	return s.Licenses.GetByPurchase(ctx, purchaseID)
}

func (s *MySQLStore) ListLicensesByUser(ctx context.Context, userID string) ([]model.BeatLicense, error) {
	return s.Licenses.ListByUser(ctx, userID)
}

func (s *MySQLStore) ListLicensesByStore(ctx context.Context, storeID string, limit int) ([]model.BeatLicense, error) {
	return s.Licenses.ListByStore(ctx, storeID, limit)
}

func (s *MySQLStore) ListLicensesByUserBeat(ctx context.Context, userID, beatID string, tierType model.TierType) ([]model.BeatLicense, error) {
	return s.Licenses.ListByUserBeat(ctx, userID, beatID, tierType)
}

func (s *MySQLStore) SetContractGeneratedAt(ctx context.Context, licenseID string, at time.Time) error {
	return s.Licenses.SetContractGeneratedAt(ctx, licenseID, at)
}

func (s *MySQLStore) UpdateBeatTiers(ctx context.Context, beatID string, tiers []model.Tier, at time.Time) error {
	return s.Beats.UpdateTiers(ctx, beatID, tiers, at)
}

// mysqlTx binds the repositories' ...Tx methods to one *sql.Tx.
type mysqlTx struct {
	s  *MySQLStore
	tx *sql.Tx
}

func (t *mysqlTx) GetBeatForUpdate(ctx context.Context, beatID string) (model.Beat, error) {
	return t.s.Beats.GetForUpdateTx(ctx, t.tx, beatID)
}

func (t *mysqlTx) ListLicensesByUserBeat(ctx context.Context, userID, beatID string, tierType model.TierType) ([]model.BeatLicense, error) {
	return t.s.Licenses.ListByUserBeatTx(ctx, t.tx, userID, beatID, tierType)
}

func (t *mysqlTx) GetStoreByOwner(ctx context.Context, ownerUserID string) (model.Store, error) {
	return t.s.Stores.GetByOwnerTx(ctx, t.tx, ownerUserID)
}

func (t *mysqlTx) GetUser(ctx context.Context, userID string) (model.User, error) {
	return t.s.Users.GetByIDTx(ctx, t.tx, userID)
}

func (t *mysqlTx) GetPurchase(ctx context.Context, purchaseID string) (model.Purchase, error) {
	return t.s.Purchase.GetByIDTx(ctx, t.tx, purchaseID)
}

func (t *mysqlTx) CreatePurchase(ctx context.Context, p model.Purchase) error {
	return t.s.Purchase.CreateTx(ctx, t.tx, p)
}

func (t *mysqlTx) CreateBeatLicense(ctx context.Context, l model.BeatLicense) error {
	return t.s.Licenses.CreateTx(ctx, t.tx, l)
}

func (t *mysqlTx) LinkPurchaseLicense(ctx context.Context, purchaseID, licenseID string) error {
	return t.s.Purchase.LinkBeatLicenseTx(ctx, t.tx, purchaseID, licenseID)
}

func (t *mysqlTx) MarkBeatExclusivelySold(ctx context.Context, beatID, userID, purchaseID string, at time.Time) error {
	return t.s.Beats.MarkExclusivelySoldTx(ctx, t.tx, beatID, userID, purchaseID, at)
}

var (
	_ ports.Store = (*MySQLStore)(nil)
	_ ports.Tx    = (*mysqlTx)(nil)
)
