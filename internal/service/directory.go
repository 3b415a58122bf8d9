package service

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/iliyamo/dispatch-backoffice/internal/metrics"
	"github.com/iliyamo/dispatch-backoffice/internal/model"
	"github.com/iliyamo/dispatch-backoffice/internal/queue"
	"github.com/iliyamo/dispatch-backoffice/internal/utils"
)

// Directory owns identities, companies and the memberships between them.
type Directory struct{ *base }

// CompanyInput describes a company at registration.
type CompanyInput struct {
	Name      string `json:"company_name"`
	DOTNumber string `json:"dot_number"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zip_code"`
	Plan      string `json:"plan"`
}

// RegisterInput creates a login and its company in one step.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	CompanyInput
}

// MemberInput creates an additional login inside the caller's company.
type MemberInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Registration is what a successful registration produced.
type Registration struct {
	User       *model.User       `json:"user"`
	Tenant     *model.Tenant     `json:"tenant"`
	Membership *model.Membership `json:"membership"`
}

// Member is one login of a company as shown on the members page.
type Member struct {
	UserID   uint64    `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	IsActive bool      `json:"is_active"`
	JoinedAt time.Time `json:"joined_at"`
}

// Resolved is the identity of a request together with its company, if any.
type Resolved struct {
	User       *model.User
	Membership *model.Membership // nil for operators and users without a company
	Tenant     *model.Tenant     // nil when Membership is nil
}

// Actor converts the resolution into the caller passed to services.
func (r *Resolved) Actor() Actor {
	a := Actor{UserID: r.User.ID, IsOperator: r.User.IsOperator}
	switch {
	case r.User.IsOperator:
		a.Role = model.RoleOperator
	case r.Membership != nil:
		a.TenantID = r.Membership.TenantID
		a.Role = r.Membership.Role
	}
	return a
}

// usernameRe leaves out "@" so a username can never collide with an email
// at login.
var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_.+-]{3,150}$`)

// Register creates the user, its company and the dispatcher membership in
// one transaction.  Nothing persists when any step fails.
func (d *Directory) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	plan, v := d.validateCompany(in.CompanyInput)
	d.validateLogin(v, in.Username, in.Email, in.Password)
	if err := v.Err(); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("company", "invalid").Inc()
		return nil, err
	}
	hash, err := utils.HashPassword(in.Password, d.bcryptCost)
	if err != nil {
		return nil, err
	}

	reg := &Registration{}
	err = d.tx.Do(ctx, func(ctx context.Context) error {
		reg.User = &model.User{Username: in.Username, Email: in.Email, PasswordHash: hash, IsActive: true}
		if err := d.users.Create(ctx, reg.User); err != nil {
			return err
		}
		reg.Tenant, reg.Membership, err = d.createCompany(ctx, reg.User.ID, in.CompanyInput, plan)
		return err
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrDuplicateIdentity) {
			outcome = "duplicate"
		}
		metrics.RegistrationsTotal.WithLabelValues("company", outcome).Inc()
		return nil, err
	}
	metrics.RegistrationsTotal.WithLabelValues("company", "ok").Inc()

	d.publish(ctx, queue.ActivityEvent{
		Type:       queue.EventTenantRegistered,
		TenantID:   reg.Tenant.ID,
		TenantName: reg.Tenant.Name,
		ActorID:    reg.User.ID,
		Detail:     reg.Tenant.Plan,
	})
	return reg, nil
}

// RegisterCompany creates a company for an existing login that has none.
func (d *Directory) RegisterCompany(ctx context.Context, a Actor, in CompanyInput) (*Registration, error) {
	if a.IsOperator {
		return nil, ErrPermissionDenied
	}
	plan, v := d.validateCompany(in)
	if err := v.Err(); err != nil {
		return nil, err
	}
	user, err := d.users.GetByID(ctx, a.UserID)
	if err != nil {
		return nil, err
	}

	reg := &Registration{User: user}
	err = d.tx.Do(ctx, func(ctx context.Context) error {
		existing, err := d.members.Resolve(ctx, a.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrConflict
		}
		reg.Tenant, reg.Membership, err = d.createCompany(ctx, a.UserID, in, plan)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.RegistrationsTotal.WithLabelValues("company", "ok").Inc()
	d.publish(ctx, queue.ActivityEvent{
		Type:       queue.EventTenantRegistered,
		TenantID:   reg.Tenant.ID,
		TenantName: reg.Tenant.Name,
		ActorID:    a.UserID,
		Detail:     reg.Tenant.Plan,
	})
	return reg, nil
}

func (d *Directory) createCompany(ctx context.Context, ownerID uint64, in CompanyInput, plan string) (*model.Tenant, *model.Membership, error) {
	t := &model.Tenant{
		OwnerID:   ownerID,
		Name:      strings.TrimSpace(in.Name),
		DOTNumber: strings.TrimSpace(in.DOTNumber),
		Phone:     strings.TrimSpace(in.Phone),
		Address:   strings.TrimSpace(in.Address),
		City:      strings.TrimSpace(in.City),
		State:     strings.TrimSpace(in.State),
		ZipCode:   strings.TrimSpace(in.ZipCode),
		Plan:      plan,
	}
	if err := d.tenants.Create(ctx, t); err != nil {
		return nil, nil, err
	}
	m := &model.Membership{UserID: ownerID, TenantID: t.ID, Role: model.RoleDispatcher}
	if err := d.members.Create(ctx, m); err != nil {
		return nil, nil, err
	}
	return t, m, nil
}

// AddMember creates an owner or driver login bound to the caller's company.
func (d *Directory) AddMember(ctx context.Context, a Actor, in MemberInput) (*Member, error) {
	if err := requireDispatcher(a); err != nil {
		return nil, err
	}
	v := &ValidationError{}
	d.validateLogin(v, in.Username, in.Email, in.Password)
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role != model.RoleOwner && role != model.RoleDriver && role != model.RoleDispatcher {
		v.Add("role", "must be dispatcher, owner or driver")
	}
	if err := v.Err(); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("member", "invalid").Inc()
		return nil, err
	}
	hash, err := utils.HashPassword(in.Password, d.bcryptCost)
	if err != nil {
		return nil, err
	}

	u := &model.User{Username: in.Username, Email: in.Email, PasswordHash: hash, IsActive: true}
	m := &model.Membership{TenantID: a.TenantID, Role: role}
	err = d.tx.Do(ctx, func(ctx context.Context) error {
		if err := d.users.Create(ctx, u); err != nil {
			return err
		}
		m.UserID = u.ID
		return d.members.Create(ctx, m)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			metrics.RegistrationsTotal.WithLabelValues("member", "duplicate").Inc()
		}
		return nil, err
	}
	metrics.RegistrationsTotal.WithLabelValues("member", "ok").Inc()
	d.publish(ctx, queue.ActivityEvent{
		Type:     queue.EventMemberAdded,
		TenantID: a.TenantID,
		ActorID:  a.UserID,
		Detail:   role + ":" + u.Username,
	})
	return &Member{UserID: u.ID, Username: u.Username, Email: u.Email, Role: role, IsActive: u.IsActive, JoinedAt: m.CreatedAt}, nil
}

// ListMembers returns the logins of the caller's company.
func (d *Directory) ListMembers(ctx context.Context, a Actor) ([]Member, error) {
	if err := requireTenant(a); err != nil {
		return nil, err
	}
	ms, err := d.members.ListByTenant(ctx, a.TenantID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(ms))
	byUser := make(map[uint64]model.Membership, len(ms))
	for i, m := range ms {
		ids[i] = m.UserID
		byUser[m.UserID] = m
	}
	users, err := d.users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Member, 0, len(users))
	for _, u := range users {
		m := byUser[u.ID]
		out = append(out, Member{UserID: u.ID, Username: u.Username, Email: u.Email, Role: m.Role, IsActive: u.IsActive, JoinedAt: m.CreatedAt})
	}
	return out, nil
}

// Resolve loads the user, membership and tenant behind a user id.  A user
// without a company resolves with nil Membership and Tenant.
func (d *Directory) Resolve(ctx context.Context, userID uint64) (*Resolved, error) {
	u, err := d.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	r := &Resolved{User: u}
	if u.IsOperator {
		return r, nil
	}
	m, err := d.members.Resolve(ctx, userID)
	if err != nil || m == nil {
		return r, err
	}
	t, err := d.tenants.GetByID(ctx, m.TenantID)
	if errors.Is(err, ErrNotFound) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	r.Membership, r.Tenant = m, t
	return r, nil
}

// CreateOperator creates a platform operator login.
func (d *Directory) CreateOperator(ctx context.Context, username, email, password string) (*model.User, error) {
	v := &ValidationError{}
	d.validateLogin(v, username, email, password)
	if err := v.Err(); err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(password, d.bcryptCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{Username: username, Email: email, PasswordHash: hash, IsOperator: true, IsActive: true}
	if err := d.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (d *Directory) validateCompany(in CompanyInput) (string, *ValidationError) {
	v := &ValidationError{}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		v.Add("company_name", "required")
	} else if len(name) > 200 {
		v.Add("company_name", "at most 200 characters")
	}
	plan := strings.ToLower(strings.TrimSpace(in.Plan))
	if plan == "" {
		plan = model.PlanStarter
	}
	if _, ok := d.plans.Lookup(plan); !ok {
		v.Add("plan", "unknown plan")
	}
	return plan, v
}

func (d *Directory) validateLogin(v *ValidationError, username, email, password string) {
	if !usernameRe.MatchString(strings.TrimSpace(username)) {
		v.Add("username", "3-150 letters, digits or .+-_")
	}
	if addr, err := mail.ParseAddress(strings.TrimSpace(email)); err != nil || addr.Address != strings.TrimSpace(email) {
		v.Add("email", "invalid email address")
	}
	if n := len([]rune(password)); n < utils.MinPasswordLen || len(password) > 72 {
		v.Add("password", utils.ErrWeakPassword.Error())
	}
}
