package auth

import (
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController exposes the credential lifecycle as a JSON API.
type HTTPController struct {
	auther        *Auther
	exchanger     *SessionExchanger
	resetInit     *InitializePasswordResetHandler
	resetFinalize *FinalizePasswordResetHandler
	register      *RegisterUserHandler
	verifyEmail   *VerifyEmailHandler
	logger        Logger
	contextKey    string
}

type HTTPControllerConfig struct {
	Auther        *Auther
	Exchanger     *SessionExchanger
	ResetInit     *InitializePasswordResetHandler
	ResetFinalize *FinalizePasswordResetHandler
	Register      *RegisterUserHandler
	VerifyEmail   *VerifyEmailHandler

	// ContextKey is the router locals key claims are stored under.
	ContextKey string
}

func NewHTTPController(cfg HTTPControllerConfig) *HTTPController {
	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	return &HTTPController{
		auther:        cfg.Auther,
		exchanger:     cfg.Exchanger,
		resetInit:     cfg.ResetInit,
		resetFinalize: cfg.ResetFinalize,
		register:      cfg.Register,
		verifyEmail:   cfg.VerifyEmail,
		logger:        defLogger{},
		contextKey:    cfg.ContextKey,
	}
}

func (c *HTTPController) WithLogger(logger Logger) *HTTPController {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// RegisterRoutes wires the auth routes on the given group.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Post("/login", c.Login)
	group.Post("/refresh", c.Refresh)
	group.Post("/logout", c.Logout, c.Protected())
	group.Post("/register", c.Register)
	group.Post("/session/redeem", c.RedeemSession)
	group.Post("/password-reset", c.InitPasswordReset)
	group.Post("/password-reset/finalize", c.FinalizePasswordReset)
	group.Get("/verify-email", c.VerifyEmail)
}

// Protected validates the bearer token and stashes the claims in locals.
func (c *HTTPController) Protected() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			header := ctx.Header("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				return c.handleError(ctx, ErrTokenMalformed)
			}

			claims, err := c.auther.TokenService().Validate(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				return c.handleError(ctx, err)
			}

			ctx.Locals(c.contextKey, claims)
			return next(ctx)
		}
	}
}

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (c *HTTPController) Login(ctx router.Context) error {
	req := LoginRequest{}
	if err := ctx.Bind(&req); err != nil {
		return c.handleError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid login payload"))
	}

	if err := req.Validate(); err != nil {
		return c.handleValidationError(ctx, err)
	}

	result, err := c.auther.Login(ctx.Context(), req.Identifier, req.Password)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

func (c *HTTPController) Refresh(ctx router.Context) error {
	req := RefreshRequest{}
	if err := ctx.Bind(&req); err != nil {
		return c.handleError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid refresh payload"))
	}

	if err := req.Validate(); err != nil {
		return c.handleValidationError(ctx, err)
	}

	result, err := c.auther.Refresh(ctx.Context(), req.RefreshToken)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	AllDevices   bool   `json:"all_devices"`
}

func (c *HTTPController) Logout(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, c.contextKey)
	if !ok {
		return c.handleError(ctx, ErrTokenMalformed)
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return c.handleError(ctx, ErrTokenMalformed)
	}

	req := LogoutRequest{}
	if err := ctx.Bind(&req); err != nil {
		return c.handleError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid logout payload"))
	}

	var token *string
	if !req.AllDevices && req.RefreshToken != "" {
		token = &req.RefreshToken
	}

	revoked, err := c.auther.Logout(ctx.Context(), userID, token)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"revoked": revoked,
	})
}

type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	Password  string `json:"password"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&r.Role, validation.In(RoleGuest, RoleRenter, RoleHost)),
	)
}

func (c *HTTPController) Register(ctx router.Context) error {
	req := RegisterRequest{}
	if err := ctx.Bind(&req); err != nil {
		return c.handleError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid registration payload"))
	}

	if err := req.Validate(); err != nil {
		return c.handleValidationError(ctx, err)
	}

	err := c.register.Execute(ctx.Context(), RegisterUserMessage{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Role:      req.Role,
		Password:  req.Password,
		UseHashid: true,
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, map[string]any{
		"success": true,
	})
}

type RedeemSessionRequest struct {
	Token string `json:"token"`
}

func (r RedeemSessionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (c *HTTPController) RedeemSession(ctx router.Context) error {
	req := RedeemSessionRequest{}
	if err := ctx.Bind(&req); err != nil {
		return c.handleError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid session payload"))
	}

	if err := req.Validate(); err != nil {
		return c.handleValidationError(ctx, err)
	}

	result, err := c.exchanger.Redeem(ctx.Context(), req.Token)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

func (r PasswordResetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (c *HTTPController) InitPasswordReset(ctx router.Context) error {
	req := PasswordResetRequest{}
	if err := ctx.Bind(&req); err != nil {
		return c.handleError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid reset payload"))
	}

	if err := req.Validate(); err != nil {
		return c.handleValidationError(ctx, err)
	}

	err := c.resetInit.Execute(ctx.Context(), InitializePasswordResetMessage{Email: req.Email})
	if err != nil {
		return c.handleError(ctx, err)
	}

	// same answer whether the email exists or not
	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

type FinalizeResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r FinalizeResetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 128)),
	)
}

func (c *HTTPController) FinalizePasswordReset(ctx router.Context) error {
	req := FinalizeResetRequest{}
	if err := ctx.Bind(&req); err != nil {
		return c.handleError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid reset payload"))
	}

	if err := req.Validate(); err != nil {
		return c.handleValidationError(ctx, err)
	}

	err := c.resetFinalize.Execute(ctx.Context(), FinalizePasswordResetMessage{
		Token:    req.Token,
		Password: req.Password,
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

func (c *HTTPController) VerifyEmail(ctx router.Context) error {
	token := ctx.Query("token")
	if token == "" {
		return c.handleError(ctx, goerrors.New("missing verification token", goerrors.CategoryBadInput))
	}

	var resp *VerifyEmailResponse
	err := c.verifyEmail.Execute(ctx.Context(), VerifyEmailMessage{
		Token: token,
		OnResponse: func(r *VerifyEmailResponse) {
			resp = r
		},
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success":        true,
		"exchange_token": resp.ExchangeToken,
	})
}

func (c *HTTPController) handleValidationError(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"error":     "validation failed",
		"text_code": "VALIDATION_ERROR",
		"details":   err.Error(),
	})
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	c.logger.Debug(
		"request error",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	status := richErr.Code
	if status == 0 {
		switch richErr.Category {
		case goerrors.CategoryAuth:
			status = router.StatusUnauthorized
		case goerrors.CategoryAuthz:
			status = router.StatusForbidden
		case goerrors.CategoryBadInput, goerrors.CategoryValidation:
			status = router.StatusBadRequest
		case goerrors.CategoryNotFound:
			status = http.StatusNotFound
		case goerrors.CategoryConflict:
			status = http.StatusConflict
		case goerrors.CategoryRateLimit:
			status = http.StatusTooManyRequests
		default:
			status = router.StatusInternalServerError
		}
	}

	return ctx.JSON(status, map[string]any{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}
