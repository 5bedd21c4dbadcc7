package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/beat-license-registry/internal/model"
	"github.com/iliyamo/beat-license-registry/internal/ports"
	"github.com/iliyamo/beat-license-registry/internal/repository"
)

func seed(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.PutBeat(model.Beat{ID: "beat-1", OwnerUserID: "producer", Title: "Night Drive", IsPublished: true})
	return s
}

func purchase(id string) model.Purchase {
	return model.Purchase{ID: id, UserID: "buyer", ProductID: "beat-1", AmountCents: 100}
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := seed(t)
	boom := errors.New("boom")
	err := s.InTx(context.Background(), func(tx ports.Tx) error {
		if err := tx.CreatePurchase(context.Background(), purchase("p1")); err != nil {
			return err
		}
		if err := tx.MarkBeatExclusivelySold(context.Background(), "beat-1", "buyer", "p1", time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx error = %v, want boom", err)
	}
	if p, l := s.Counts(); p != 0 || l != 0 {
		t.Fatalf("counts after rollback = %d purchases, %d licenses", p, l)
	}
	b, err := s.GetBeat(context.Background(), "beat-1")
	if err != nil {
		t.Fatalf("GetBeat: %v", err)
	}
	if b.IsExclusivelySold() || !b.IsPublished {
		t.Fatalf("beat state leaked from rolled back tx: %+v", b)
	}
}

func TestFailOnInjectsError(t *testing.T) {
	s := seed(t)
	injected := errors.New("disk full")
	s.FailOn("CreateBeatLicense", injected)
	err := s.InTx(context.Background(), func(tx ports.Tx) error {
		_ = tx.CreatePurchase(context.Background(), purchase("p1"))
		return tx.CreateBeatLicense(context.Background(), model.BeatLicense{ID: "l1", PurchaseID: "p1"})
	})
	if !errors.Is(err, injected) {
		t.Fatalf("err = %v, want injected", err)
	}
	s.FailOn("CreateBeatLicense", nil)
	if p, _ := s.Counts(); p != 0 {
		t.Fatalf("purchase kept after failed tx")
	}
}

func TestCreateBeatLicenseUniqueness(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	create := func(purchaseID, licenseID, user string, tier model.TierType) error {
		return s.InTx(ctx, func(tx ports.Tx) error {
			p := purchase(purchaseID)
			p.UserID = user
			if err := tx.CreatePurchase(ctx, p); err != nil {
				return err
			}
			return tx.CreateBeatLicense(ctx, model.BeatLicense{
				ID: licenseID, PurchaseID: purchaseID, BeatID: "beat-1", UserID: user, TierType: tier,
			})
		})
	}
	if err := create("p1", "l1", "u1", model.TierBasic); err != nil {
		t.Fatalf("first basic: %v", err)
	}
	if err := create("p2", "l2", "u1", model.TierBasic); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("same user, beat and tier: err = %v, want ErrConflict", err)
	}
	if err := create("p3", "l3", "u1", model.TierPremium); err != nil {
		t.Fatalf("other tier: %v", err)
	}
	if err := create("p4", "l4", "u2", model.TierExclusive); err != nil {
		t.Fatalf("first exclusive: %v", err)
	}
	if err := create("p5", "l5", "u3", model.TierExclusive); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("second exclusive: err = %v, want ErrConflict", err)
	}
	if p, l := s.Counts(); p != 3 || l != 3 {
		t.Fatalf("counts = %d/%d, want 3/3", p, l)
	}
}

func TestMarkBeatExclusivelySoldOnce(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	mark := func(pid string) error {
		return s.InTx(ctx, func(tx ports.Tx) error {
			return tx.MarkBeatExclusivelySold(ctx, "beat-1", "buyer", pid, time.Unix(1700000000, 0))
		})
	}
	if err := mark("p1"); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := mark("p2"); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("second mark: err = %v, want ErrConflict", err)
	}
	b, _ := s.GetBeat(ctx, "beat-1")
	if b.ExclusivePurchaseID == nil || *b.ExclusivePurchaseID != "p1" {
		t.Fatalf("exclusive purchase = %v, want p1", b.ExclusivePurchaseID)
	}
}

func TestListLicensesByStoreOrderAndLimit(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		id, at := id, base.Add(time.Duration(i)*time.Hour)
		err := s.InTx(ctx, func(tx ports.Tx) error {
			if err := tx.CreatePurchase(ctx, purchase("p-"+id)); err != nil {
				return err
			}
			return tx.CreateBeatLicense(ctx, model.BeatLicense{
				ID: id, PurchaseID: "p-" + id, BeatID: "beat-1", UserID: "u-" + id,
				StoreID: "store", TierType: model.TierBasic, CreatedAt: at,
			})
		})
		if err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	got, err := s.ListLicensesByStore(ctx, "store", 2)
	if err != nil {
		t.Fatalf("ListLicensesByStore: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("got %+v, want c then b", got)
	}
}

func TestUpdateBeatTiersRejectsSoldBeat(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	tiers := []model.Tier{{Type: model.TierBasic, Enabled: true, Name: "Basic", PriceCents: 2999}}
	if err := s.UpdateBeatTiers(ctx, "beat-1", tiers, time.Now()); err != nil {
		t.Fatalf("UpdateBeatTiers: %v", err)
	}
	tiers[0].PriceCents = 1
	b, _ := s.GetBeat(ctx, "beat-1")
	if b.Tiers[0].PriceCents != 2999 {
		t.Fatalf("stored tiers alias caller slice")
	}
	_ = s.InTx(ctx, func(tx ports.Tx) error {
		return tx.MarkBeatExclusivelySold(ctx, "beat-1", "buyer", "p1", time.Now())
	})
	if err := s.UpdateBeatTiers(ctx, "beat-1", tiers, time.Now()); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if err := s.UpdateBeatTiers(ctx, "missing", tiers, time.Now()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCustomerUpsertAccumulates(t *testing.T) {
	r := NewCustomerRepo()
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := r.Upsert(ctx, ports.CustomerUpsert{Email: "Buyer@Example.com", StoreID: "s1", Name: "Buyer", AmountCents: 0, Source: "Beat License: A", At: at}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	c, ok := r.Get("buyer@example.com", "s1")
	if !ok || c.Type != model.CustomerTypeLead {
		t.Fatalf("free purchase customer = %+v", c)
	}
	if err := r.Upsert(ctx, ports.CustomerUpsert{Email: "buyer@example.com", StoreID: "s1", Name: "Other", AmountCents: 2999, Source: "Beat License: B", At: at.Add(time.Hour)}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	c, _ = r.Get("buyer@example.com", "s1")
	if c.Type != model.CustomerTypePaying || c.TotalSpentCents != 2999 || c.Name != "Buyer" || c.Source != "Beat License: A" {
		t.Fatalf("merged customer = %+v", c)
	}
	if err := r.Upsert(ctx, ports.CustomerUpsert{StoreID: "s1"}); !errors.Is(err, repository.ErrInvalidInput) {
		t.Fatalf("empty email err = %v", err)
	}
}
