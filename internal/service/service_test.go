package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/iliyamo/dispatch-backoffice/internal/database"
	"github.com/iliyamo/dispatch-backoffice/internal/model"
	"github.com/iliyamo/dispatch-backoffice/internal/policy"
	"github.com/iliyamo/dispatch-backoffice/internal/queue"
	"github.com/iliyamo/dispatch-backoffice/internal/storage"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Services
	db     *gorm.DB
	events *RecordingPublisher
	store  *storage.Local
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	store, err := storage.NewLocal(t.TempDir(), 1<<20)
	require.NoError(t, err)

	f := &fixture{db: db, events: &RecordingPublisher{}, store: store, now: testNow}
	f.svc = New(db, Options{
		Events:     f.events,
		Store:      store,
		Now:        func() time.Time { return f.now },
		BcryptCost: bcrypt.MinCost,
	})
	return f
}

var operator = Actor{UserID: 999, Role: model.RoleOperator, IsOperator: true}

// register creates a company and returns its dispatcher.
func (f *fixture) register(t *testing.T, username, plan string) Actor {
	t.Helper()
	reg, err := f.svc.Directory.Register(context.Background(), RegisterInput{
		Username:     username,
		Email:        username + "@example.com",
		Password:     "correct-horse",
		CompanyInput: CompanyInput{Name: username + " Trucking", Plan: plan},
	})
	require.NoError(t, err)
	res, err := f.svc.Directory.Resolve(context.Background(), reg.User.ID)
	require.NoError(t, err)
	return res.Actor()
}

func (f *fixture) count(t *testing.T, m any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(m)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func unitInput(n string) FleetInput {
	return FleetInput{Name: "Driver " + n, UnitNumber: "U-" + n}
}

func loadInput(ref string, unit *uint64) LoadInput {
	return LoadInput{
		FleetUnitID:    unit,
		Reference:      ref,
		Origin:         "Dallas, TX",
		Destination:    "Memphis, TN",
		PickupAt:       testNow,
		DeliveryAt:     testNow.Add(36 * time.Hour),
		RateCents:      250000,
		Miles:          452,
		ExpensesCents:  20000,
		DriverPayCents: 50000,
	}
}

func TestRegisterCreatesInactiveCompany(t *testing.T) {
	f := newFixture(t)
	reg, err := f.svc.Directory.Register(context.Background(), RegisterInput{
		Username:     "acme",
		Email:        "ops@acme.example",
		Password:     "correct-horse",
		CompanyInput: CompanyInput{Name: "  Acme Freight ", DOTNumber: "1234567"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Acme Freight", reg.Tenant.Name)
	assert.Equal(t, model.PlanStarter, reg.Tenant.Plan)
	assert.False(t, reg.Tenant.Active)
	assert.False(t, reg.Tenant.Approved)
	assert.Equal(t, model.RoleDispatcher, reg.Membership.Role)
	assert.Equal(t, reg.User.ID, reg.Tenant.OwnerID)
	assert.NotEqual(t, "correct-horse", reg.User.PasswordHash)
	assert.Equal(t, []string{queue.EventTenantRegistered}, f.events.Types())

	st, err := f.svc.Subscription.Status(context.Background(), Actor{UserID: reg.User.ID, TenantID: reg.Tenant.ID, Role: model.RoleDispatcher})
	require.NoError(t, err)
	assert.Equal(t, policy.NeedsSubscription, st.Gate)
	assert.Len(t, st.Plans, 3)
}

func TestRegisterIsAtomic(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_memberships", func(db *gorm.DB) {
		if db.Statement.Table == "memberships" {
			_ = db.AddError(errors.New("boom"))
		}
	}))

	_, err := f.svc.Directory.Register(context.Background(), RegisterInput{
		Username:     "acme",
		Email:        "ops@acme.example",
		Password:     "correct-horse",
		CompanyInput: CompanyInput{Name: "Acme Freight"},
	})
	require.Error(t, err)

	assert.Zero(t, f.count(t, &model.User{}, ""))
	assert.Zero(t, f.count(t, &model.Tenant{}, ""))
	assert.Zero(t, f.count(t, &model.Membership{}, ""))
	assert.Empty(t, f.events.Events())
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "acme", "")

	_, err := f.svc.Directory.Register(ctx, RegisterInput{
		Username: "ACME", Email: "new@example.com", Password: "correct-horse",
		CompanyInput: CompanyInput{Name: "Other"},
	})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	_, err = f.svc.Directory.Register(ctx, RegisterInput{
		Username: "other", Email: "ACME@example.com", Password: "correct-horse",
		CompanyInput: CompanyInput{Name: "Other"},
	})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	_, err = f.svc.Directory.Register(ctx, RegisterInput{
		Username: "acme@example.com", Email: "other@example.com", Password: "correct-horse",
		CompanyInput: CompanyInput{Name: "Other"},
	})
	var v *ValidationError
	require.ErrorAs(t, err, &v, "a username shaped like another login's email")
	assert.Contains(t, v.Fields, "username")

	_, err = f.svc.Directory.Register(ctx, RegisterInput{
		Username: "x", Email: "not-an-email", Password: "short",
		CompanyInput: CompanyInput{Plan: "platinum"},
	})
	require.ErrorAs(t, err, &v)
	assert.Contains(t, v.Fields, "username")
	assert.Contains(t, v.Fields, "email")
	assert.Contains(t, v.Fields, "password")
	assert.Contains(t, v.Fields, "company_name")
	assert.Contains(t, v.Fields, "plan")

	assert.EqualValues(t, 1, f.count(t, &model.Tenant{}, ""))
}

func TestRegisterCompanyForExistingLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "acme", "")

	_, err := f.svc.Directory.RegisterCompany(ctx, a, CompanyInput{Name: "Second"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.Directory.RegisterCompany(ctx, operator, CompanyInput{Name: "Ops Co"})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "alpha", model.PlanPro)
	b := f.register(t, "bravo", model.PlanPro)

	unit, err := f.svc.Fleet.Create(ctx, a, unitInput("1"))
	require.NoError(t, err)
	load, err := f.svc.Loads.Create(ctx, a, loadInput("A-100", &unit.ID))
	require.NoError(t, err)

	_, err = f.svc.Fleet.Get(ctx, b, unit.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Loads.Get(ctx, b, load.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Loads.UpdateStatus(ctx, b, load.ID, "active")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svc.Fleet.Delete(ctx, b, unit.ID), ErrNotFound)
	_, err = f.svc.Loads.Create(ctx, b, loadInput("B-100", &unit.ID))
	assert.ErrorIs(t, err, ErrNotFound)

	units, err := f.svc.Fleet.List(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, units)
	loads, err := f.svc.Loads.List(ctx, b, LoadQuery{})
	require.NoError(t, err)
	assert.Empty(t, loads)

	_, err = f.svc.Fleet.List(ctx, operator)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.svc.Fleet.List(ctx, Actor{UserID: 5})
	assert.ErrorIs(t, err, ErrNoTenant)
}

func TestFleetQuotaPerPlan(t *testing.T) {
	cases := []struct {
		plan    string
		allowed int
		limit   int
	}{
		{model.PlanStarter, 3, 3},
		{model.PlanPro, 10, 10},
		{model.PlanEnterprise, 25, -1},
	}
	for _, tc := range cases {
		t.Run(tc.plan, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			a := f.register(t, "co_"+tc.plan, tc.plan)
			for i := 0; i < tc.allowed; i++ {
				_, err := f.svc.Fleet.Create(ctx, a, unitInput(string(rune('a'+i))))
				require.NoError(t, err, "unit %d", i+1)
			}
			_, err := f.svc.Fleet.Create(ctx, a, unitInput("extra"))
			if tc.limit < 0 {
				assert.NoError(t, err)
				return
			}
			var q *QuotaError
			require.ErrorAs(t, err, &q)
			assert.ErrorIs(t, err, ErrQuotaExceeded)
			assert.Equal(t, tc.limit, q.Limit)
			assert.Equal(t, tc.allowed, q.Current)
			assert.EqualValues(t, tc.allowed, f.count(t, &model.FleetUnit{}, "tenant_id = ?", a.TenantID))
		})
	}
}

func TestFleetQuotaConcurrent(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "acme", model.PlanStarter)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		denied  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Fleet.Create(context.Background(), a, unitInput(string(rune('a'+i))))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrQuotaExceeded):
				denied++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, created)
	assert.Equal(t, workers-3, denied)
	assert.EqualValues(t, 3, f.count(t, &model.FleetUnit{}, "tenant_id = ?", a.TenantID))
}

func TestChangePlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "acme", model.PlanPro)
	var ids []uint64
	for i := 0; i < 5; i++ {
		u, err := f.svc.Fleet.Create(ctx, a, unitInput(string(rune('a'+i))))
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}

	_, err := f.svc.Subscription.ChangePlan(ctx, a, model.PlanStarter)
	var q *QuotaError
	require.ErrorAs(t, err, &q)
	assert.Equal(t, 5, q.Current)

	require.NoError(t, f.svc.Fleet.Delete(ctx, a, ids[0]))
	require.NoError(t, f.svc.Fleet.Delete(ctx, a, ids[1]))
	tn, err := f.svc.Subscription.ChangePlan(ctx, a, "Starter")
	require.NoError(t, err)
	assert.Equal(t, model.PlanStarter, tn.Plan, "downgrades apply at once")
	assert.Empty(t, tn.RequestedPlan)
	assert.Contains(t, f.events.Types(), queue.EventPlanChanged)

	_, err = f.svc.Subscription.ChangePlan(ctx, a, "gold")
	var v *ValidationError
	assert.ErrorAs(t, err, &v)
}

func TestPlanUpgradeWaitsForApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "acme", model.PlanStarter)
	_, err := f.svc.Lifecycle.Approve(ctx, operator, a.TenantID)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Fleet.Create(ctx, a, unitInput(string(rune('a'+i))))
		require.NoError(t, err)
	}

	tn, err := f.svc.Subscription.ChangePlan(ctx, a, "Enterprise")
	require.NoError(t, err)
	assert.Equal(t, model.PlanStarter, tn.Plan)
	assert.Equal(t, model.PlanEnterprise, tn.RequestedPlan)
	assert.Contains(t, f.events.Types(), queue.EventPlanRequested)
	assert.NotContains(t, f.events.Types(), queue.EventPlanChanged)

	_, err = f.svc.Fleet.Create(ctx, a, unitInput("d"))
	assert.ErrorIs(t, err, ErrQuotaExceeded, "the starter limit holds until the upgrade is approved")

	st, err := f.svc.Subscription.Status(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, model.PlanStarter, st.Plan)
	assert.Equal(t, model.PlanEnterprise, st.RequestedPlan)

	tn, err = f.svc.Subscription.ChangePlan(ctx, a, model.PlanStarter)
	require.NoError(t, err)
	assert.Empty(t, tn.RequestedPlan, "asking for the current tier withdraws the request")

	_, err = f.svc.Subscription.ChangePlan(ctx, a, model.PlanPro)
	require.NoError(t, err)
	_, err = f.svc.Subscription.SubmitReceipt(ctx, a, "pro.pdf", bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)
	tn, err = f.svc.Lifecycle.Approve(ctx, operator, a.TenantID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanPro, tn.Plan)
	assert.Empty(t, tn.RequestedPlan)

	_, err = f.svc.Fleet.Create(ctx, a, unitInput("d"))
	assert.NoError(t, err)
}

func TestReadOnlyMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "acme", "")

	m, err := f.svc.Directory.AddMember(ctx, a, MemberInput{Username: "owner1", Email: "owner1@example.com", Password: "correct-horse", Role: "Owner"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, m.Role)

	res, err := f.svc.Directory.Resolve(ctx, m.UserID)
	require.NoError(t, err)
	owner := res.Actor()
	assert.Equal(t, a.TenantID, owner.TenantID)

	_, err = f.svc.Fleet.Create(ctx, owner, unitInput("1"))
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.svc.Directory.AddMember(ctx, owner, MemberInput{Username: "x1", Email: "x1@example.com", Password: "correct-horse", Role: "driver"})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.svc.Fleet.List(ctx, owner)
	assert.NoError(t, err)

	_, err = f.svc.Directory.AddMember(ctx, a, MemberInput{Username: "boss", Email: "boss@example.com", Password: "correct-horse", Role: "operator"})
	var v *ValidationError
	assert.ErrorAs(t, err, &v)

	members, err := f.svc.Directory.ListMembers(ctx, a)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestLoadLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "acme", "")

	l, err := f.svc.Loads.Create(ctx, a, loadInput("L-1", nil))
	require.NoError(t, err)
	assert.Equal(t, model.LoadBooked, l.Status)
	assert.EqualValues(t, 180000, l.NetProfitCents)
	assert.Equal(t, "TBD", l.BrokerName)
	assert.Equal(t, "000000", l.BrokerMC)

	in := loadInput("L-1", nil)
	in.ExpensesCents = 70000
	l, err = f.svc.Loads.Update(ctx, a, l.ID, in)
	require.NoError(t, err)
	assert.EqualValues(t, 130000, l.NetProfitCents)
	stored, err := f.svc.Loads.Get(ctx, a, l.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 130000, stored.NetProfitCents)

	bad := loadInput("L-2", nil)
	bad.DeliveryAt = bad.PickupAt.Add(-time.Hour)
	bad.RateCents = -1
	_, err = f.svc.Loads.Create(ctx, a, bad)
	var v *ValidationError
	require.ErrorAs(t, err, &v)
	assert.Contains(t, v.Fields, "delivery_at")
	assert.Contains(t, v.Fields, "rate_cents")
}

func TestLoadStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "acme", "")
	l, err := f.svc.Loads.Create(ctx, a, loadInput("L-1", nil))
	require.NoError(t, err)

	l, err = f.svc.Loads.UpdateStatus(ctx, a, l.ID, "In_Transit")
	require.NoError(t, err)
	assert.Equal(t, model.LoadActive, l.Status)

	_, err = f.svc.Loads.UpdateStatus(ctx, a, l.ID, "booked")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Loads.UpdateStatus(ctx, a, l.ID, "lost")
	var v *ValidationError
	assert.ErrorAs(t, err, &v)

	before := len(f.events.Events())
	_, err = f.svc.Loads.UpdateStatus(ctx, a, l.ID, "active")
	require.NoError(t, err)
	assert.Len(t, f.events.Events(), before)

	for _, s := range []string{"delivered", "paid"} {
		l, err = f.svc.Loads.UpdateStatus(ctx, a, l.ID, s)
		require.NoError(t, err)
	}
	_, err = f.svc.Loads.UpdateStatus(ctx, a, l.ID, "cancelled")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	active, err := f.svc.Loads.List(ctx, a, LoadQuery{Ledger: "active"})
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := f.svc.Loads.List(ctx, a, LoadQuery{Ledger: "all"})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	last := f.events.Events()[len(f.events.Events())-1]
	assert.Equal(t, queue.EventLoadStatusChanged, last.Type)
	assert.Equal(t, model.LoadDelivered, last.FromStatus)
	assert.Equal(t, model.LoadPaid, last.ToStatus)
}

func TestFleetDeleteUnassignsLoads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "acme", "")
	u, err := f.svc.Fleet.Create(ctx, a, unitInput("1"))
	require.NoError(t, err)
	l, err := f.svc.Loads.Create(ctx, a, loadInput("L-1", &u.ID))
	require.NoError(t, err)
	_, err = f.svc.Fleet.AttachDocument(ctx, a, u.ID, DocCDL, "cdl.pdf", bytes.NewReader([]byte("%PDF")))
	require.NoError(t, err)

	require.NoError(t, f.svc.Fleet.Delete(ctx, a, u.ID))

	l, err = f.svc.Loads.Get(ctx, a, l.ID)
	require.NoError(t, err)
	assert.Nil(t, l.FleetUnitID)
	assert.EqualValues(t, 180000, l.NetProfitCents)
	_, err = f.svc.Fleet.Get(ctx, a, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOperatorLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "acme", "")

	_, err := f.svc.Lifecycle.Approve(ctx, a, a.TenantID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	tn, err := f.svc.Lifecycle.Approve(ctx, operator, a.TenantID)
	require.NoError(t, err)
	assert.True(t, tn.Active)
	assert.True(t, tn.Approved)
	require.NotNil(t, tn.SubscriptionExpiresAt)
	assert.True(t, tn.SubscriptionExpiresAt.Equal(testNow.AddDate(0, 0, 30)))
	assert.Equal(t, policy.Allow, policy.Decide(policy.Identity{UserID: a.UserID}, tn, testNow))

	tn, err = f.svc.Lifecycle.ExtendAccess(ctx, operator, a.TenantID, 15)
	require.NoError(t, err)
	tn, err = f.svc.Lifecycle.ExtendAccess(ctx, operator, a.TenantID, 15)
	require.NoError(t, err)
	assert.True(t, tn.SubscriptionExpiresAt.Equal(testNow.AddDate(0, 0, 60)))
	tn, err = f.svc.Lifecycle.ExtendAccess(ctx, operator, a.TenantID, -10)
	require.NoError(t, err)
	assert.True(t, tn.SubscriptionExpiresAt.Equal(testNow.AddDate(0, 0, 50)))
	_, err = f.svc.Lifecycle.ExtendAccess(ctx, operator, a.TenantID, 0)
	var v *ValidationError
	assert.ErrorAs(t, err, &v)

	tn, err = f.svc.Lifecycle.Pause(ctx, operator, a.TenantID)
	require.NoError(t, err)
	assert.False(t, tn.Active)
	assert.True(t, tn.Approved)
	assert.Equal(t, policy.NeedsSubscription, policy.Decide(policy.Identity{UserID: a.UserID}, tn, testNow))

	_, err = f.svc.Lifecycle.Approve(ctx, operator, a.TenantID)
	require.NoError(t, err)
	tn, err = f.svc.Lifecycle.Reject(ctx, operator, a.TenantID)
	require.NoError(t, err)
	assert.Equal(t, policy.NeedsApproval, policy.Decide(policy.Identity{UserID: a.UserID}, tn, testNow))

	_, err = f.svc.Lifecycle.Approve(ctx, operator, 424242)
	assert.ErrorIs(t, err, ErrNotFound)

	f.now = testNow.AddDate(0, 0, 31)
	s, err := f.svc.Lifecycle.GetTenant(ctx, operator, a.TenantID)
	require.NoError(t, err)
	assert.False(t, s.HasAccess)
	assert.Equal(t, policy.NeedsSubscription, s.Gate)
}

func TestReceiptThenApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "acme", "")

	_, err := f.svc.Subscription.SubmitReceipt(ctx, a, "receipt.exe", bytes.NewReader([]byte("MZ")))
	var v *ValidationError
	require.ErrorAs(t, err, &v)

	tn, err := f.svc.Subscription.SubmitReceipt(ctx, a, "receipt.pdf", bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)
	assert.True(t, tn.PaymentPending(f.now))
	assert.NotEmpty(t, tn.PaymentReceiptRef)

	st, err := f.svc.Subscription.Status(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, policy.PaymentPending, st.Gate)

	pending, err := f.svc.Lifecycle.ListTenants(ctx, operator, "pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.TenantID, pending[0].ID)

	rc, err := f.svc.Documents.Open(ctx, a, tn.PaymentReceiptRef)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "%PDF-1.4", string(body))

	_, err = f.svc.Lifecycle.Approve(ctx, operator, a.TenantID)
	require.NoError(t, err)
	st, err = f.svc.Subscription.Status(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, policy.Allow, st.Gate)
	assert.False(t, st.PaymentPending)
	assert.Equal(t, 30, st.DaysRemaining)

	pending, err = f.svc.Lifecycle.ListTenants(ctx, operator, "pending")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestExtendAccessWithoutExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "acme", "")

	tn, err := f.svc.Lifecycle.ExtendAccess(ctx, operator, a.TenantID, 30)
	require.NoError(t, err)
	require.NotNil(t, tn.SubscriptionExpiresAt)
	assert.True(t, tn.SubscriptionExpiresAt.Equal(testNow.AddDate(0, 0, 30)))
	assert.False(t, tn.Active)

	tn, err = f.svc.Lifecycle.ExtendAccess(ctx, operator, a.TenantID, 15)
	require.NoError(t, err)
	assert.True(t, tn.SubscriptionExpiresAt.Equal(testNow.AddDate(0, 0, 45)))
}

func TestRenewalAfterLapse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "acme", "")
	_, err := f.svc.Lifecycle.Approve(ctx, operator, a.TenantID)
	require.NoError(t, err)

	_, err = f.svc.Subscription.SubmitReceipt(ctx, a, "early.pdf", bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)
	st, err := f.svc.Subscription.Status(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, policy.Allow, st.Gate, "an early renewal keeps access")
	assert.False(t, st.PaymentPending)

	f.now = testNow.AddDate(0, 0, 31)
	_, err = f.svc.Subscription.SubmitReceipt(ctx, a, "renewal.pdf", bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)

	st, err = f.svc.Subscription.Status(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, policy.PaymentPending, st.Gate)
	assert.True(t, st.PaymentPending)

	pending, err := f.svc.Lifecycle.ListTenants(ctx, operator, "pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.TenantID, pending[0].ID)

	r, err := f.svc.Lifecycle.Rollup(ctx, operator)
	require.NoError(t, err)
	assert.Equal(t, 1, r.PendingPayments)

	_, err = f.svc.Lifecycle.Approve(ctx, operator, a.TenantID)
	require.NoError(t, err)
	st, err = f.svc.Subscription.Status(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, policy.Allow, st.Gate)
}

func TestOperatorOpensReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "acme", "")
	b := f.register(t, "bravo", "")

	_, _, err := f.svc.Lifecycle.OpenReceipt(ctx, operator, a.TenantID)
	assert.ErrorIs(t, err, ErrNotFound, "no receipt yet")

	_, err = f.svc.Subscription.SubmitReceipt(ctx, a, "receipt.pdf", bytes.NewReader([]byte("%PDF-1.4 paid")))
	require.NoError(t, err)

	rc, name, err := f.svc.Lifecycle.OpenReceipt(ctx, operator, a.TenantID)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "%PDF-1.4 paid", string(body))
	assert.Equal(t, ".pdf", path.Ext(name))

	_, _, err = f.svc.Lifecycle.OpenReceipt(ctx, a, a.TenantID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, _, err = f.svc.Lifecycle.OpenReceipt(ctx, operator, b.TenantID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = f.svc.Lifecycle.OpenReceipt(ctx, operator, 424242)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRollup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	approved := f.register(t, "alpha", model.PlanStarter)
	legacy := f.register(t, "bravo", model.PlanPro)
	pending := f.register(t, "charlie", model.PlanStarter)
	rejected := f.register(t, "delta", model.PlanStarter)

	for _, a := range []Actor{approved, legacy, rejected} {
		_, err := f.svc.Lifecycle.Approve(ctx, operator, a.TenantID)
		require.NoError(t, err)
	}
	_, err := f.svc.Lifecycle.Reject(ctx, operator, rejected.TenantID)
	require.NoError(t, err)
	_, err = f.svc.Subscription.SubmitReceipt(ctx, pending, "r.png", bytes.NewReader([]byte{0x89, 'P', 'N', 'G'}))
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.Tenant{}).Where("id = ?", legacy.TenantID).Update("plan", "legacy").Error)

	r, err := f.svc.Lifecycle.Rollup(ctx, operator)
	require.NoError(t, err)
	assert.Equal(t, 4, r.TotalTenants)
	assert.Equal(t, 3, r.ActiveTenants)
	assert.Equal(t, 1, r.PendingPayments)
	assert.Equal(t, 1, r.AwaitingApproval)
	assert.EqualValues(t, 9900*2, r.MRRCents)
	assert.Equal(t, map[string]int{model.PlanStarter: 3, "legacy": 1}, r.ByPlan)

	_, err = f.svc.Lifecycle.Rollup(ctx, approved)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestDeleteTenantCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "alpha", model.PlanPro)
	b := f.register(t, "bravo", model.PlanPro)

	m, err := f.svc.Directory.AddMember(ctx, a, MemberInput{Username: "driver1", Email: "d1@example.com", Password: "correct-horse", Role: "driver"})
	require.NoError(t, err)
	u, err := f.svc.Fleet.Create(ctx, a, unitInput("1"))
	require.NoError(t, err)
	_, err = f.svc.Loads.Create(ctx, a, loadInput("A-1", &u.ID))
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&model.RefreshToken{UserID: a.UserID, TokenHash: "h1", ExpiresAt: testNow.Add(time.Hour)}).Error)
	_, err = f.svc.Fleet.Create(ctx, b, unitInput("1"))
	require.NoError(t, err)
	ta, err := f.svc.Subscription.SubmitReceipt(ctx, a, "a.pdf", bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)
	tb, err := f.svc.Subscription.SubmitReceipt(ctx, b, "b.pdf", bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)

	require.NoError(t, f.svc.Lifecycle.Delete(ctx, operator, a.TenantID))

	_, err = f.store.Open(ctx, ta.PaymentReceiptRef)
	assert.ErrorIs(t, err, storage.ErrBadRef, "stored documents go with the tenant")
	rc, err := f.store.Open(ctx, tb.PaymentReceiptRef)
	require.NoError(t, err)
	_ = rc.Close()

	assert.Zero(t, f.count(t, &model.Tenant{}, "id = ?", a.TenantID))
	assert.Zero(t, f.count(t, &model.Membership{}, "tenant_id = ?", a.TenantID))
	assert.Zero(t, f.count(t, &model.FleetUnit{}, "tenant_id = ?", a.TenantID))
	assert.Zero(t, f.count(t, &model.Load{}, "tenant_id = ?", a.TenantID))
	assert.Zero(t, f.count(t, &model.User{}, "id IN ?", []uint64{a.UserID, m.UserID}))
	assert.Zero(t, f.count(t, &model.RefreshToken{}, "user_id = ?", a.UserID))

	assert.EqualValues(t, 1, f.count(t, &model.Tenant{}, "id = ?", b.TenantID))
	assert.EqualValues(t, 1, f.count(t, &model.FleetUnit{}, "tenant_id = ?", b.TenantID))

	assert.ErrorIs(t, f.svc.Lifecycle.Delete(ctx, operator, a.TenantID), ErrNotFound)
	assert.Equal(t, queue.EventTenantDeleted, f.events.Events()[len(f.events.Events())-1].Type)
}

func TestAvailability(t *testing.T) {
	until := testNow.Add(48 * time.Hour)
	units := []model.FleetUnit{{ID: 1}, {ID: 2}, {ID: 3}}
	latest := map[uint64]model.Load{
		1: {ID: 10, Status: model.LoadActive, DeliveryAt: until, Destination: "Atlanta, GA"},
		3: {ID: 30, Status: model.LoadDelivered, DeliveryAt: until},
	}

	got := Availability(units, latest)
	require.Len(t, got, 3)
	assert.False(t, got[0].Available)
	require.NotNil(t, got[0].BusyUntil)
	assert.True(t, got[0].BusyUntil.Equal(until))
	assert.Equal(t, "Atlanta, GA", got[0].Destination)
	assert.EqualValues(t, 10, got[0].LoadID)
	assert.True(t, got[1].Available)
	assert.True(t, got[2].Available)
	assert.Nil(t, got[2].BusyUntil)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "acme", model.PlanPro)
	busy, err := f.svc.Fleet.Create(ctx, a, unitInput("1"))
	require.NoError(t, err)
	_, err = f.svc.Fleet.Create(ctx, a, unitInput("2"))
	require.NoError(t, err)

	l1, err := f.svc.Loads.Create(ctx, a, loadInput("L-1", &busy.ID))
	require.NoError(t, err)
	_, err = f.svc.Loads.UpdateStatus(ctx, a, l1.ID, "active")
	require.NoError(t, err)
	l2, err := f.svc.Loads.Create(ctx, a, loadInput("L-2", nil))
	require.NoError(t, err)
	_, err = f.svc.Loads.UpdateStatus(ctx, a, l2.ID, "cancelled")
	require.NoError(t, err)

	v, err := f.svc.Dashboard.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 10, v.PlanLimit)
	assert.Equal(t, 2, v.FleetUnits)
	assert.EqualValues(t, 250000, v.GrossCents)
	assert.EqualValues(t, 180000, v.NetCents)
	assert.EqualValues(t, 1, v.OpenLoads)
	require.Len(t, v.ActiveLoads, 1)
	assert.Equal(t, l1.ID, v.ActiveLoads[0].ID)

	byID := map[uint64]UnitAvailability{}
	for _, u := range v.Fleet {
		byID[u.Unit.ID] = u
	}
	assert.False(t, byID[busy.ID].Available)
	assert.Equal(t, "Memphis, TN", byID[busy.ID].Destination)
}

func TestDocumentCenter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "alpha", "")
	b := f.register(t, "bravo", "")

	soon := testNow.AddDate(0, 0, 10)
	past := testNow.AddDate(0, 0, -1)
	_, err := f.svc.Documents.AttachCompanyDocument(ctx, a, DocAuthority, "mc.pdf", bytes.NewReader([]byte("%PDF")), &soon)
	require.NoError(t, err)
	tn, err := f.svc.Documents.AttachCompanyDocument(ctx, a, DocInsurance, "coi.pdf", bytes.NewReader([]byte("%PDF")), &past)
	require.NoError(t, err)
	_, err = f.svc.Documents.AttachCompanyDocument(ctx, a, "passport", "p.pdf", bytes.NewReader(nil), nil)
	var v *ValidationError
	assert.ErrorAs(t, err, &v)

	c, err := f.svc.Documents.Center(ctx, a)
	require.NoError(t, err)
	states := map[string]string{}
	for _, e := range c.Company {
		states[e.Kind] = e.State
	}
	assert.Equal(t, DocExpiring, states[DocAuthority])
	assert.Equal(t, DocExpired, states[DocInsurance])
	assert.Equal(t, DocMissing, states[DocW9Company])
	assert.Len(t, c.Warnings, 2)

	_, err = f.svc.Documents.Open(ctx, b, tn.InsuranceDocRef)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Documents.Open(ctx, a, "tenants/"+"../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "acme", "")

	tn, err := f.svc.Company.UpdateSettings(ctx, a, SettingsInput{Name: " Acme Logistics ", City: "Tulsa", State: "OK"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Logistics", tn.Name)
	assert.False(t, tn.Active)

	_, err = f.svc.Company.UpdateSettings(ctx, a, SettingsInput{})
	var v *ValidationError
	assert.ErrorAs(t, err, &v)

	got, err := f.svc.Company.Settings(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "Tulsa", got.City)
}
