package auth

import (
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RegisterAuthRoutes mounts the full JSON auth surface on a router. Login,
// refresh, and the two request/confirm flows are public; logout, sweep, and
// the session probe sit behind ProtectedRoute.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	protected := controller.HTTP.ProtectedRoute(
		controller.Config,
		controller.HTTP.MakeClientRouteAuthErrorHandler(false),
	)

	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("auth.login")

	app.Post(controller.Routes.Logout, controller.Logout, protected).
		SetName("auth.logout")

	app.Post(controller.Routes.Refresh, controller.Refresh).
		SetName("auth.refresh")

	app.Post(controller.Routes.Register, controller.RegistrationRequest).
		SetName("auth.register")
	app.Post(fmt.Sprintf("%s/confirm", controller.Routes.Register), controller.RegistrationConfirm).
		SetName("auth.register.confirm")

	app.Post(controller.Routes.Recover, controller.RecoveryRequest).
		SetName("auth.recover")
	app.Post(fmt.Sprintf("%s/confirm", controller.Routes.Recover), controller.RecoveryConfirm).
		SetName("auth.recover.confirm")

	app.Post(controller.Routes.Sweep, controller.Sweep, protected).
		SetName("auth.sweep")

	app.Get(controller.Routes.Session, controller.SessionShow, protected).
		SetName("auth.session")
}

type AuthControllerRoutes struct {
	Login    string
	Logout   string
	Refresh  string
	Register string
	Recover  string
	Sweep    string
	Session  string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Config       Config
	Routes       *AuthControllerRoutes
	Auther       Authenticator
	HTTP         *RouteAuthenticator
	Notifier     Notifier
	Hasher       Hasher
	ErrorHandler func(router.Context, error) error
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Login:    "/auth/login",
			Logout:   "/auth/logout",
			Refresh:  "/auth/refresh",
			Register: "/auth/register",
			Recover:  "/auth/recover",
			Sweep:    "/auth/sweep",
			Session:  "/auth/session",
		},
		Notifier: noopNotifier{},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	if c.Config == nil {
		panic("Missing Config in auth controller...")
	}

	if c.HTTP == nil {
		c.HTTP, _ = NewHTTPAuthenticator(c.Auther, c.Config)
		c.HTTP.Logger = c.Logger
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.HTTP.ErrorHandler
	}

	return c
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerConfig(cfg Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Config = cfg
		return c
	}
}

func WithControllerAuther(auther Authenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerNotifier(notifier Notifier) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Notifier = normalizeNotifier(notifier)
		return c
	}
}

// WithControllerHasher makes the registration and recovery handlers store
// hashes the login hasher can verify. Hosts that customize the Auther's
// hasher must pass the same one here.
func WithControllerHasher(hasher Hasher) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Hasher = hasher
		return c
	}
}

func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse login payload"))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload"))
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	result, err := a.Auther.Login(ctx.Context(), payload.Identifier, payload.Password)
	if err != nil {
		a.Logger.Error("login error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	a.HTTP.SetCookieToken(ctx, result.AccessToken)

	return ctx.JSON(router.StatusOK, result)
}

func (a *AuthController) Logout(ctx router.Context) error {
	payload, err := GetRouterSession(ctx, a.Config.GetContextKey())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.Auther.Logout(ctx.Context(), payload.SubjectID); err != nil {
		a.Logger.Error("logout error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	a.HTTP.ClearCookieToken(ctx)

	return ctx.JSON(router.StatusOK, map[string]any{
		"logged_out": true,
	})
}

// RefreshRequest payload
type RefreshRequest struct {
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

// Validate will run validation rules
func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

func (a *AuthController) Refresh(ctx router.Context) error {
	payload := new(RefreshRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse refresh payload"))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid refresh payload"))
	}

	result, err := a.Auther.UpdateToken(ctx.Context(), payload.RefreshToken)
	if err != nil {
		a.Logger.Error("refresh error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	a.HTTP.SetCookieToken(ctx, result.AccessToken)

	return ctx.JSON(router.StatusOK, result)
}

func (a *AuthController) RegistrationRequest(ctx router.Context) error {
	message := RequestRegistrationMessage{}

	if err := ctx.Bind(&message); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse registration payload"))
	}

	if a.Debug {
		fmt.Println("======= AUTH REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(message))
		fmt.Println("============================")
	}

	var resp *RequestRegistrationResponse
	message.OnResponse = func(r *RequestRegistrationResponse) {
		resp = r
	}

	handler := NewRequestRegistrationHandler(a.Repo, a.Config, a.Auther.TokenService()).
		WithHasher(a.Hasher).
		WithNotifier(a.Notifier).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), message); err != nil {
		a.Logger.Error("registration request error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusAccepted, resp)
}

func (a *AuthController) RegistrationConfirm(ctx router.Context) error {
	message := ConfirmRegistrationMessage{}

	if err := ctx.Bind(&message); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse confirmation payload"))
	}

	var resp *ConfirmRegistrationResponse
	message.OnResponse = func(r *ConfirmRegistrationResponse) {
		resp = r
	}

	handler := NewConfirmRegistrationHandler(a.Repo, a.Auther.TokenService()).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), message); err != nil {
		a.Logger.Error("registration confirm error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, resp)
}

func (a *AuthController) RecoveryRequest(ctx router.Context) error {
	message := RequestRecoveryMessage{}

	if err := ctx.Bind(&message); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse recovery payload"))
	}

	var resp *RequestRecoveryResponse
	message.OnResponse = func(r *RequestRecoveryResponse) {
		resp = r
	}

	handler := NewRequestRecoveryHandler(a.Repo, a.Config, a.Auther.TokenService()).
		WithNotifier(a.Notifier).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), message); err != nil {
		a.Logger.Error("recovery request error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusAccepted, resp)
}

func (a *AuthController) RecoveryConfirm(ctx router.Context) error {
	message := ConfirmRecoveryMessage{}

	if err := ctx.Bind(&message); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse recovery confirmation"))
	}

	var resp *ConfirmRecoveryResponse
	message.OnResponse = func(r *ConfirmRecoveryResponse) {
		resp = r
	}

	handler := NewConfirmRecoveryHandler(a.Repo, a.Auther.TokenService()).
		WithHasher(a.Hasher).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), message); err != nil {
		a.Logger.Error("recovery confirm error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *AuthController) Sweep(ctx router.Context) error {
	report, err := a.Auther.SweepExpired(ctx.Context())
	if err != nil {
		a.Logger.Error("sweep error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, report)
}

func (a *AuthController) SessionShow(ctx router.Context) error {
	payload, err := GetRouterSession(ctx, a.Config.GetContextKey())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	user, err := a.Repo.Users().GetByID(ctx.Context(), payload.SubjectID)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user": user.Profile(),
	})
}
