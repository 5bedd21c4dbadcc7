// Package licensing issues beat licenses and enforces exclusivity.
//
// A purchase runs as one store transaction: the beat is loaded for
// update, the duplicate and exclusivity rules are checked, and the
// purchase, the license and (for exclusive tiers) the beat's sold state
// are written together.  CRM, notification and cache work runs after
// commit on a Runner and can never fail the purchase.
package licensing

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/beat-license-registry/internal/ports"
)

// Registry is the entry point of the licensing core.
type Registry struct {
	store     ports.Store
	customers ports.CustomerRepository
	notifier  ports.PurchaseNotifier
	cache     ports.CacheInvalidator
	runner    *Runner
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithCustomers enables the CRM upsert after each purchase.
func WithCustomers(c ports.CustomerRepository) Option {
	return func(r *Registry) { r.customers = c }
}

// WithNotifier enables purchase notifications.
func WithNotifier(n ports.PurchaseNotifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithCacheInvalidator drops cached beat responses after writes.
func WithCacheInvalidator(c ports.CacheInvalidator) Option {
	return func(r *Registry) { r.cache = c }
}

// WithRunner replaces the default side-effect runner.
func WithRunner(run *Runner) Option {
	return func(r *Registry) { r.runner = run }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides uuid.NewString for purchase and license ids.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) { r.newID = gen }
}

// New returns a Registry over store.  Side effects without a configured
// collaborator are skipped.
func New(store ports.Store, logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runner == nil {
		r.runner = NewRunner(logger, DefaultTaskTimeout)
	}
	return r
}

// Wait blocks until pending side effects have finished.
func (r *Registry) Wait() { r.runner.Wait() }

func (r *Registry) clock() time.Time { return r.now().UTC() }
