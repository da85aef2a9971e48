package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-auth/internal/middleware"
	"github.com/iliyamo/contacts-auth/internal/model"
	"github.com/iliyamo/contacts-auth/internal/service"
	"github.com/iliyamo/contacts-auth/internal/utils"
)

// AuthService is the part of service.Authenticator the HTTP layer drives.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*model.User, error)
	Login(ctx context.Context, email, password string) (service.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (service.TokenPair, error)
	ConfirmEmail(ctx context.Context, emailToken string) (service.ConfirmOutcome, error)
	RequestEmailConfirmation(ctx context.Context, email string) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	UpdateRole(ctx context.Context, id int64, role model.Role) (*model.User, error)
	UpdateEmail(ctx context.Context, id int64, email string) (*model.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// AuthHandler serves the /api/auth endpoints.
type AuthHandler struct {
	Auth AuthService
}

// NewAuthHandler returns a handler driving a.
func NewAuthHandler(a AuthService) *AuthHandler {
	return &AuthHandler{Auth: a}
}

type signupReq struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (r signupReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(6, 12)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 72)),
	)
}

// loginReq accepts the OAuth2 password form, where the email travels as
// "username", as well as a JSON body with "email".
type loginReq struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (r *loginReq) identity() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Username
}

type emailReq struct {
	Email string `json:"email" form:"email"`
}

func (r emailReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// Signup creates an account and sends the first confirmation link.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	u, err := h.Auth.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"user":   toUserResponse(u),
		"detail": "user successfully created, check your email for confirmation",
	})
}

// Login exchanges credentials for an access and refresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	email := strings.TrimSpace(req.identity())
	if email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username and password required"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	pair, err := h.Auth.Login(ctx, email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toTokenResponse(pair))
}

// RefreshToken rotates the pair; the current refresh token is presented as
// the bearer credential.
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	raw, ok := middleware.BearerToken(c)
	if !ok {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	pair, err := h.Auth.Refresh(ctx, raw)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toTokenResponse(pair))
}

// ConfirmedEmail consumes the token from a confirmation link.
func (h *AuthHandler) ConfirmedEmail(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	outcome, err := h.Auth.ConfirmEmail(ctx, c.Param("token"))
	if errors.Is(err, utils.ErrInvalidToken) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "invalid token for email verification"})
	}
	if err != nil {
		return writeError(c, err)
	}
	if outcome == service.EmailAlreadyConfirmed {
		return c.JSON(http.StatusOK, echo.Map{"message": "your email is already confirmed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "email confirmed"})
}

// RequestEmail resends the confirmation link. The reply is the same whether
// or not the address is registered.
func (h *AuthHandler) RequestEmail(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Auth.RequestEmailConfirmation(ctx, req.Email); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "check your email for confirmation"})
}
