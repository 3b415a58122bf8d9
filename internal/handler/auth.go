package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/dispatch-backoffice/internal/config"
	"github.com/iliyamo/dispatch-backoffice/internal/logger"
	"github.com/iliyamo/dispatch-backoffice/internal/middleware"
	"github.com/iliyamo/dispatch-backoffice/internal/model"
	"github.com/iliyamo/dispatch-backoffice/internal/repository"
	"github.com/iliyamo/dispatch-backoffice/internal/service"
	"github.com/iliyamo/dispatch-backoffice/internal/utils"
)

// AuthHandler serves registration, login and token endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
	Dir    *service.Directory
	Now    func() time.Time
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, dir *service.Directory, now func() time.Time) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Dir: dir, Now: now}
}

type loginReq struct {
	Login    string `json:"login"` // username or email
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID         uint64 `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	IsOperator bool   `json:"is_operator"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func (h *AuthHandler) issue(ctx context.Context, u *model.User) (*authResp, error) {
	role := utils.ClaimMember
	if u.IsOperator {
		role = utils.ClaimOperator
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, role, h.Cfg.AccessTTLMin)
	if err != nil {
		return nil, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return nil, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return nil, err
	}
	return &authResp{
		User:    userPart{ID: u.ID, Username: u.Username, Email: u.Email, IsOperator: u.IsOperator},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

// Register creates a login together with its company and returns a token
// pair.  The new company starts unpaid and unapproved.
func (h *AuthHandler) Register(c echo.Context) error {
	var req service.RegisterInput
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	reg, err := h.Dir.Register(ctx, req)
	if err != nil {
		return writeError(c, err)
	}
	resp, err := h.issue(ctx, reg.User)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"user":    resp.User,
		"access":  resp.Access,
		"refresh": resp.Refresh,
		"tenant":  reg.Tenant,
		"role":    reg.Membership.Role,
	})
}

// Login verifies a username or email and password.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	login := strings.TrimSpace(req.Login)
	if login == "" {
		login = strings.TrimSpace(req.Username)
	}
	if login == "" {
		login = strings.TrimSpace(req.Email)
	}
	if login == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "login and password required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByLogin(ctx, login)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_credentials"})
	}
	if err != nil {
		return writeError(c, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_credentials"})
	}
	if !u.IsActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account_disabled"})
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))
	ctx, cancel := reqCtx(c)
	defer cancel()

	uid, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_refresh"})
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		return writeError(c, err)
	}
	u, err := h.Users.GetByID(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !u.IsActive) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_refresh"})
	}
	if err != nil {
		return writeError(c, err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the refresh token in the body, or every refresh token of
// the bearer when the body carries none.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)
	ctx, cancel := reqCtx(c)
	defer cancel()

	if raw != "" {
		hash := utils.HashRefreshRaw(raw)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_refresh"})
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	if uid, ok := middleware.BearerUserID(c.Request(), h.Cfg.JWTSecret); ok {
		if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
			return writeError(c, err)
		}
		logger.FromEcho(c).Info("logged out all sessions", zap.Uint64("user_id", uid))
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "provide Authorization header or refresh_token"})
}

// Me describes the caller: identity, company role and where the access
// gate would send them.
func (h *AuthHandler) Me(c echo.Context) error {
	res, ok := middleware.ResolvedFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	d := middleware.Decision(res, h.Now())
	out := echo.Map{
		"user":     userPart{ID: res.User.ID, Username: res.User.Username, Email: res.User.Email, IsOperator: res.User.IsOperator},
		"role":     res.Actor().Role,
		"gate":     d,
		"redirect": d.Redirect(),
	}
	if res.Tenant != nil {
		out["tenant"] = echo.Map{"id": res.Tenant.ID, "name": res.Tenant.Name, "plan": res.Tenant.Plan}
	}
	return c.JSON(http.StatusOK, out)
}
