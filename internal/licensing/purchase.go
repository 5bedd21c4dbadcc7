package licensing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/beat-license-registry/internal/logging"
	"github.com/iliyamo/beat-license-registry/internal/model"
	"github.com/iliyamo/beat-license-registry/internal/ports"
	"github.com/iliyamo/beat-license-registry/internal/repository"
	"github.com/iliyamo/beat-license-registry/internal/tier"
)

const (
	defaultCurrency      = "USD"
	defaultPaymentMethod = "stripe"
	unknownProducer      = "Unknown Producer"
)

// PurchaseInput is a confirmed payment for one beat tier.  It comes from
// the trusted payment pipeline, never from the buyer directly.
type PurchaseInput struct {
	BeatID        string         `json:"beat_id"`
	TierType      model.TierType `json:"tier_type"`
	TierName      string         `json:"tier_name"`
	UserID        string         `json:"user_id"`
	StoreID       string         `json:"store_id"`
	AmountCents   int64          `json:"amount_cents"`
	Currency      string         `json:"currency,omitempty"`
	PaymentMethod string         `json:"payment_method,omitempty"`
	TransactionID *string        `json:"transaction_id,omitempty"`
	BuyerEmail    string         `json:"buyer_email"`
	BuyerName     *string        `json:"buyer_name,omitempty"`
}

// PurchaseResult identifies the records written for a purchase.
type PurchaseResult struct {
	PurchaseID    string `json:"purchase_id"`
	BeatLicenseID string `json:"beat_license_id"`
}

func (in *PurchaseInput) normalize() error {
	in.BeatID = strings.TrimSpace(in.BeatID)
	in.UserID = strings.TrimSpace(in.UserID)
	in.StoreID = strings.TrimSpace(in.StoreID)
	in.BuyerEmail = strings.TrimSpace(in.BuyerEmail)
	switch {
	case in.BeatID == "":
		return fmt.Errorf("%w: beat_id is required", repository.ErrInvalidInput)
	case in.UserID == "":
		return fmt.Errorf("%w: user_id is required", repository.ErrInvalidInput)
	case in.StoreID == "":
		return fmt.Errorf("%w: store_id is required", repository.ErrInvalidInput)
	case !in.TierType.Valid():
		return fmt.Errorf("%w: unknown tier type %q", repository.ErrInvalidInput, in.TierType)
	case in.AmountCents < 0:
		return fmt.Errorf("%w: amount must not be negative", repository.ErrInvalidInput)
	}
	if in.Currency == "" {
		in.Currency = defaultCurrency
	}
	in.Currency = strings.ToUpper(in.Currency)
	if in.PaymentMethod == "" {
		in.PaymentMethod = defaultPaymentMethod
	}
	return nil
}

// committedPurchase carries what the post-commit side effects need.
type committedPurchase struct {
	in       PurchaseInput
	beat     model.Beat
	purchase model.Purchase
	license  model.BeatLicense
}

// CreateBeatLicensePurchase turns a confirmed payment into a purchase and
// a license.  Validation failures and core write failures leave no
// records behind.  For the exclusive tier the beat is withdrawn from
// sale in the same transaction.
func (r *Registry) CreateBeatLicensePurchase(ctx context.Context, in PurchaseInput) (PurchaseResult, error) {
	if err := in.normalize(); err != nil {
		return PurchaseResult{}, err
	}

	logger := logging.WithContext(ctx, r.logger)
	var done committedPurchase
	err := r.store.InTx(ctx, func(tx ports.Tx) error {
		// Retries rerun the closure; allocate ids per attempt.
		var err error
		done, err = r.issue(ctx, tx, in)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
			logger.Info("beat license purchase rejected",
				zap.String(logging.FieldBeatID, in.BeatID),
				zap.String("tier", string(in.TierType)),
				zap.String("user_id", in.UserID),
				zap.Error(err))
		}
		return PurchaseResult{}, err
	}

	logger.Info("beat license purchase committed",
		zap.String(logging.FieldPurchaseID, done.purchase.ID),
		zap.String(logging.FieldLicenseID, done.license.ID),
		zap.String(logging.FieldBeatID, in.BeatID),
		zap.String("tier", string(in.TierType)))
	if in.TierType == model.TierExclusive {
		logger.Info("beat withdrawn from sale",
			zap.String(logging.FieldBeatID, in.BeatID),
			zap.String(logging.FieldPurchaseID, done.purchase.ID))
	}

	r.afterPurchase(done)
	return PurchaseResult{PurchaseID: done.purchase.ID, BeatLicenseID: done.license.ID}, nil
}

func (r *Registry) issue(ctx context.Context, tx ports.Tx, in PurchaseInput) (committedPurchase, error) {
	beat, err := tx.GetBeatForUpdate(ctx, in.BeatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return committedPurchase{}, ErrBeatNotFound
		}
		return committedPurchase{}, err
	}
	if beat.IsExclusivelySold() {
		return committedPurchase{}, ErrExclusivelySold
	}

	tr, err := tier.Find(beat.Tiers, in.TierType)
	if err != nil {
		return committedPurchase{}, err
	}

	if err := checkDuplicate(ctx, tx, in); err != nil {
		return committedPurchase{}, err
	}

	store, err := tx.GetStoreByOwner(ctx, beat.OwnerUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return committedPurchase{}, ErrStoreNotFound
		}
		return committedPurchase{}, err
	}

	producerName := unknownProducer
	if producer, err := tx.GetUser(ctx, beat.OwnerUserID); err == nil {
		if n := producer.DisplayName(); n != "" {
			producerName = n
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return committedPurchase{}, err
	}

	now := r.clock()
	purchase := model.Purchase{
		ID:             r.newID(),
		UserID:         in.UserID,
		ProductID:      beat.ID,
		StoreID:        in.StoreID,
		SellerUserID:   beat.OwnerUserID,
		AmountCents:    in.AmountCents,
		Currency:       in.Currency,
		Status:         model.PurchaseStatusCompleted,
		PaymentMethod:  in.PaymentMethod,
		TransactionID:  in.TransactionID,
		ProductType:    model.ProductTypeBeatLease,
		AccessGranted:  true,
		DownloadCount:  0,
		LastAccessedAt: now,
		CreatedAt:      now,
	}
	if err := tx.CreatePurchase(ctx, purchase); err != nil {
		return committedPurchase{}, fmt.Errorf("create purchase: %w", err)
	}

	tierName := in.TierName
	if tierName == "" {
		tierName = tr.Name
	}
	license := model.BeatLicense{
		ID:             r.newID(),
		PurchaseID:     purchase.ID,
		BeatID:         beat.ID,
		UserID:         in.UserID,
		StoreID:        store.ID,
		TierType:       tr.Type,
		TierName:       tierName,
		PriceCents:     tr.PriceCents,
		Rights:         tr.UsageRights.Clone(),
		DeliveredFiles: tier.DeliveredFiles(tr.Type),
		BuyerEmail:     in.BuyerEmail,
		BuyerName:      in.BuyerName,
		BeatTitle:      beat.Title,
		ProducerName:   producerName,
		CreatedAt:      now,
	}
	if err := tx.CreateBeatLicense(ctx, license); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// A unique index caught a purchase the checks above missed.
			return committedPurchase{}, duplicateError(in.TierType)
		}
		return committedPurchase{}, fmt.Errorf("create beat license: %w", err)
	}
	if err := tx.LinkPurchaseLicense(ctx, purchase.ID, license.ID); err != nil {
		return committedPurchase{}, fmt.Errorf("link purchase license: %w", err)
	}
	purchase.BeatLicenseID = &license.ID

	if tr.Type == model.TierExclusive {
		if err := tx.MarkBeatExclusivelySold(ctx, beat.ID, in.UserID, purchase.ID, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return committedPurchase{}, ErrExclusivelySold
			}
			return committedPurchase{}, fmt.Errorf("mark beat exclusively sold: %w", err)
		}
	}

	return committedPurchase{in: in, beat: beat, purchase: purchase, license: license}, nil
}

// checkDuplicate applies the ownership rules: an exclusive purchase is
// blocked by any license the buyer holds for the beat, any other tier
// only by a license of the same tier.
func checkDuplicate(ctx context.Context, tx ports.Tx, in PurchaseInput) error {
	filter := in.TierType
	if in.TierType == model.TierExclusive {
		filter = ""
	}
	existing, err := tx.ListLicensesByUserBeat(ctx, in.UserID, in.BeatID, filter)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return duplicateError(in.TierType)
	}
	return nil
}

func duplicateError(t model.TierType) error {
	if t == model.TierExclusive {
		return ErrAlreadyLicensed
	}
	return tierOwnedError(t)
}

// MarkBeatAsExclusivelySold withdraws a beat from sale on behalf of an
// exclusive purchase.  Purchases of the exclusive tier already do this,
// so repeating it for the purchase that sold the beat succeeds without
// change; a beat sold by any other purchase is a conflict.  The purchase
// must exist and belong to the same beat and buyer.
func (r *Registry) MarkBeatAsExclusivelySold(ctx context.Context, beatID, userID, purchaseID string) error {
	beatID, userID, purchaseID = strings.TrimSpace(beatID), strings.TrimSpace(userID), strings.TrimSpace(purchaseID)
	if beatID == "" || userID == "" || purchaseID == "" {
		return fmt.Errorf("%w: beat_id, user_id and purchase_id are required", repository.ErrInvalidInput)
	}
	changed := false
	err := r.store.InTx(ctx, func(tx ports.Tx) error {
		changed = false
		beat, err := tx.GetBeatForUpdate(ctx, beatID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBeatNotFound
			}
			return err
		}
		p, err := tx.GetPurchase(ctx, purchaseID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrPurchaseNotFound
			}
			return err
		}
		if p.ProductID != beatID || p.UserID != userID {
			return fmt.Errorf("%w: purchase %s is not for this beat and buyer", repository.ErrInvalidInput, purchaseID)
		}
		if beat.IsExclusivelySold() {
			if beat.ExclusivePurchaseID != nil && *beat.ExclusivePurchaseID == purchaseID {
				return nil
			}
			return ErrExclusivelySold
		}
		if err := tx.MarkBeatExclusivelySold(ctx, beatID, userID, purchaseID, r.clock()); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrExclusivelySold
			}
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		r.logger.Info("beat withdrawn from sale",
			zap.String(logging.FieldBeatID, beatID),
			zap.String(logging.FieldPurchaseID, purchaseID))
		r.invalidate(beatID)
	}
	return nil
}

// afterPurchase schedules the best-effort work for a committed purchase.
func (r *Registry) afterPurchase(done committedPurchase) {
	fields := []zap.Field{
		zap.String(logging.FieldPurchaseID, done.purchase.ID),
		zap.String(logging.FieldBeatID, done.beat.ID),
	}
	if r.customers != nil {
		r.runner.Go("customer_upsert", fields, func(ctx context.Context) error {
			return r.upsertCustomer(ctx, done)
		})
	}
	if r.notifier != nil {
		n := notificationFor(done)
		r.runner.Go("purchase_notification", fields, func(ctx context.Context) error {
			return r.notifier.NotifyPurchase(ctx, n)
		})
	}
	r.invalidate(done.beat.ID)
}

func (r *Registry) invalidate(beatID string) {
	if r.cache == nil {
		return
	}
	r.runner.Go("cache_invalidation", []zap.Field{zap.String(logging.FieldBeatID, beatID)}, func(ctx context.Context) error {
		return r.cache.InvalidateBeat(ctx, beatID)
	})
}

// upsertCustomer records the buyer in the seller CRM.  The buyer's
// account email wins over the email captured at checkout.
func (r *Registry) upsertCustomer(ctx context.Context, done committedPurchase) error {
	var buyer model.User
	if u, err := r.store.GetUser(ctx, done.in.UserID); err == nil {
		buyer = u
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("load buyer: %w", err)
	}

	email := buyer.Email
	if email == "" {
		email = done.in.BuyerEmail
	}
	name := firstNonEmpty(deref(done.in.BuyerName), buyer.Name, email, "Unknown")
	return r.customers.Upsert(ctx, ports.CustomerUpsert{
		Email:        email,
		StoreID:      done.in.StoreID,
		SellerUserID: done.beat.OwnerUserID,
		Name:         name,
		AmountCents:  done.in.AmountCents,
		Source:       "Beat License: " + done.beat.Title,
		At:           done.purchase.CreatedAt,
	})
}

func notificationFor(done committedPurchase) model.PurchaseNotification {
	return model.PurchaseNotification{
		StoreID:       done.in.StoreID,
		CustomerEmail: done.in.BuyerEmail,
		CustomerName:  firstNonEmpty(deref(done.in.BuyerName), done.in.BuyerEmail),
		ProductID:     done.beat.ID,
		ProductName:   fmt.Sprintf("%s - %s License", done.beat.Title, done.license.TierName),
		ProductType:   model.ProductTypeBeatLease,
		OrderID:       done.purchase.ID,
		AmountCents:   done.in.AmountCents,
		Currency:      done.in.Currency,
		TierType:      done.license.TierType,
		PurchasedAt:   done.purchase.CreatedAt.Format(time.RFC3339),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
