package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/logger"
	"github.com/iliyamo/slot-reservation/internal/model"
	"github.com/iliyamo/slot-reservation/internal/repository"
	"github.com/iliyamo/slot-reservation/internal/utils"
	"github.com/iliyamo/slot-reservation/internal/validator"
)

const (
	RoleCustomer = model.RoleCustomer
	RoleOwner    = model.RoleOwner
)

// Accounts is the user storage the auth endpoints need.
type Accounts interface {
	Create(ctx context.Context, email, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

type AuthConfig struct {
	JWTSecret    string
	AccessTTLMin int
	BcryptCost   int
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg      AuthConfig
	Users    Accounts
	Validate *validator.Validator
	Log      *logger.Logger
}

func NewAuthHandler(cfg AuthConfig, u Accounts, v *validator.Validator, log *logger.Logger) *AuthHandler {
	if v == nil {
		v = validator.New()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &AuthHandler{Cfg: cfg, Users: u, Validate: v, Log: log.With("component", "auth")}
}

type registerReq struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=CUSTOMER OWNER"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID     uint64 `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Tokens string `json:"tokens"`
}

type authResp struct {
	User   userPart  `json:"user"`
	Access tokenPart `json:"access"`
}

// Register creates an account and returns an access token immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bindStrict(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))
	if err := h.Validate.Struct(req); err != nil {
		return respondError(c, h.Log, err)
	}
	if req.Role == "" {
		req.Role = RoleCustomer
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Password, req.Role, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return respondError(c, h.Log, apperror.Conflict("email already exists"))
		}
		return respondError(c, h.Log, apperror.Store("create user", err))
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, uid, req.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return respondError(c, h.Log, apperror.Store("issue access token", err))
	}
	h.Log.Info("user registered", "user_id", uid, "role", req.Role)
	return c.JSON(http.StatusCreated, authResp{
		User:   userPart{ID: uid, Email: req.Email, Role: req.Role, Tokens: model.FormatCents(0)},
		Access: tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Login verifies credentials and returns a new access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindStrict(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.Validate.Struct(req); err != nil {
		return respondError(c, h.Log, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return respondError(c, h.Log, apperror.Unauthorized("invalid credentials"))
		}
		return respondError(c, h.Log, apperror.Store("load user", err))
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return respondError(c, h.Log, apperror.Unauthorized("invalid credentials"))
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return respondError(c, h.Log, apperror.Store("issue access token", err))
	}
	return c.JSON(http.StatusOK, authResp{
		User:   userPart{ID: u.ID, Email: u.Email, Role: u.Role, Tokens: model.FormatCents(u.TokensCents)},
		Access: tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Me returns the caller's account and token balance.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	u, err := h.Users.GetByID(c.Request().Context(), uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return respondError(c, h.Log, apperror.Unauthorized("account no longer exists"))
		}
		return respondError(c, h.Log, apperror.Store("load user", err))
	}
	return c.JSON(http.StatusOK, userPart{ID: u.ID, Email: u.Email, Role: u.Role, Tokens: model.FormatCents(u.TokensCents)})
}
