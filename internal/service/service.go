// Package service implements the dispatch back office use cases on top of
// the repositories: company registration, the operator console, the fleet
// registry, the load ledger, the dashboard and the document center.
//
// Every tenant-scoped method takes an Actor and reads or writes only rows of
// Actor.TenantID.  Mutations that span tables run in one transaction;
// activity events are published after the commit.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/iliyamo/dispatch-backoffice/internal/config"
	"github.com/iliyamo/dispatch-backoffice/internal/metrics"
	"github.com/iliyamo/dispatch-backoffice/internal/model"
	"github.com/iliyamo/dispatch-backoffice/internal/queue"
	"github.com/iliyamo/dispatch-backoffice/internal/repository"
	"github.com/iliyamo/dispatch-backoffice/internal/storage"
)

// Actor is the authenticated caller as resolved for one request.
type Actor struct {
	UserID     uint64
	TenantID   uint64 // 0 for operators and identities without a company
	Role       string
	IsOperator bool
}

// Options wires the services.  Zero values get sensible defaults.
type Options struct {
	Plans        config.Plans
	Events       EventPublisher
	Store        storage.Store
	Log          *zap.Logger
	Now          func() time.Time
	ApprovalDays int
	BcryptCost   int
}

// Services groups every use case behind one constructor.
type Services struct {
	Directory    *Directory
	Lifecycle    *Lifecycle
	Fleet        *Fleet
	Loads        *Loads
	Dashboard    *Dashboard
	Documents    *Documents
	Subscription *Subscription
	Company      *Company
}

type base struct {
	tx      *repository.TxManager
	users   *repository.UserRepo
	tokens  *repository.TokenRepo
	tenants *repository.TenantRepo
	members *repository.MembershipRepo
	fleet   *repository.FleetRepo
	loads   *repository.LoadRepo

	plans        config.Plans
	events       EventPublisher
	store        storage.Store
	log          *zap.Logger
	now          func() time.Time
	approvalDays int
	bcryptCost   int
}

// New builds the services over db.
func New(db *gorm.DB, opts Options) *Services {
	b := &base{
		tx:           repository.NewTxManager(db),
		users:        repository.NewUserRepo(db),
		tokens:       repository.NewTokenRepo(db),
		tenants:      repository.NewTenantRepo(db),
		members:      repository.NewMembershipRepo(db),
		fleet:        repository.NewFleetRepo(db),
		loads:        repository.NewLoadRepo(db),
		plans:        opts.Plans,
		events:       opts.Events,
		store:        opts.Store,
		log:          opts.Log,
		now:          opts.Now,
		approvalDays: opts.ApprovalDays,
		bcryptCost:   opts.BcryptCost,
	}
	if b.plans == nil {
		b.plans = config.DefaultPlans()
	}
	if b.events == nil {
		b.events = NopPublisher{}
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	if b.now == nil {
		b.now = func() time.Time { return time.Now().UTC() }
	}
	if b.approvalDays <= 0 {
		b.approvalDays = 30
	}
	if b.bcryptCost == 0 {
		b.bcryptCost = 12
	}
	return &Services{
		Directory:    &Directory{b},
		Lifecycle:    &Lifecycle{b},
		Fleet:        &Fleet{b},
		Loads:        &Loads{b},
		Dashboard:    &Dashboard{b},
		Documents:    &Documents{b},
		Subscription: &Subscription{b},
		Company:      &Company{b},
	}
}

// Plans exposes the catalog the services were built with.
func (s *Services) Plans() config.Plans { return s.Directory.plans }

// Now is the clock the services decide with.
func (s *Services) Now() time.Time { return s.Directory.now() }

// publish sends ev and only logs a failure.
func (b *base) publish(ctx context.Context, ev queue.ActivityEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = b.now()
	}
	if err := b.events.Publish(ctx, ev); err != nil {
		metrics.EventPublishFailures.Inc()
		b.log.Warn("publish activity event failed", zap.String("type", ev.Type), zap.Uint64("tenant_id", ev.TenantID), zap.Error(err))
	}
}

// tenantOf returns the actor's tenant or ErrNoTenant.
func (b *base) tenantOf(ctx context.Context, a Actor) (*model.Tenant, error) {
	if a.TenantID == 0 {
		return nil, ErrNoTenant
	}
	return b.tenants.GetByID(ctx, a.TenantID)
}

// requireTenant rejects operators and identities without a company.
func requireTenant(a Actor) error {
	if a.IsOperator {
		return ErrPermissionDenied
	}
	if a.TenantID == 0 {
		return ErrNoTenant
	}
	return nil
}

// requireDispatcher admits only the dispatcher of a company; owners and
// drivers have read access.
func requireDispatcher(a Actor) error {
	if err := requireTenant(a); err != nil {
		return err
	}
	if a.Role != model.RoleDispatcher {
		return ErrPermissionDenied
	}
	return nil
}

func requireOperator(a Actor) error {
	if !a.IsOperator {
		return ErrPermissionDenied
	}
	return nil
}
