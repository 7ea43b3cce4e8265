package auth

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// AccountStatusUnconfirmed is the provider status for accounts awaiting
// confirmation.
const AccountStatusUnconfirmed = "UNCONFIRMED"

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	app.
		Get(controller.Routes.Login,
			controller.LoginShow,
		).
		SetName("sign-in.get")

	app.
		Post(
			controller.Routes.Login,
			controller.LoginPost,
		).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Post(controller.Routes.Confirm, controller.ConfirmPost).
		SetName("confirm.post")

	protected := controller.Auther.ProtectedRoute(
		controller.Auther.MakeClientRouteAuthErrorHandler(false),
	)
	app.Get(controller.Routes.Dashboard, controller.DashboardShow, protected).
		SetName("dashboard.get")
}

type AuthControllerRoutes struct {
	Login     string
	Logout    string
	Register  string
	Confirm   string
	Dashboard string
}

type AuthControllerViews struct {
	Login     string
	Register  string
	Confirm   string
	Dashboard string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Accounts     Authenticator
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	Auther       HTTPAuthenticator
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			Login:     "/login",
			Logout:    "/logout",
			Register:  "/register",
			Confirm:   "/confirm",
			Dashboard: "/dashboard",
		},
		Views: &AuthControllerViews{
			Login:     "login",
			Register:  "register",
			Confirm:   "confirm",
			Dashboard: "dashboard",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Accounts == nil {
		panic("Missing Authenticator in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	return c
}

// WithLogger sets the controller logger.
func (a *AuthController) WithLogger(logger Logger) *AuthController {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, MergeTemplateData(ctx, router.ViewContext{
		"errors": nil,
		"record": nil,
	}))
}

// LoginRequest payload
type LoginRequest struct {
	Email      string `form:"email" json:"email"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Email
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession reports whether the user asked to stay signed in
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(8, 100),
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, MergeTemplateData(ctx, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		}))
	}

	if a.Debug {
		a.Logger.Debug("login payload", "payload", print.MaybePrettyJSON(payload))
	}

	if err := a.Auther.Login(ctx, payload); err != nil {
		// Deliberately generic: wrong password and unknown user render the
		// same message.
		errs["authentication"] = "Authentication Error"
		return ctx.Render(a.Views.Login, MergeTemplateData(ctx, router.ViewContext{
			"errors": errs,
			"record": payload,
		}))
	}

	redirect := a.Auther.GetRedirect(ctx, a.Routes.Dashboard)

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AuthController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *AuthController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, MergeTemplateData(ctx, router.ViewContext{
		"errors": map[string]string{},
		"record": RegistrationCreatePayload{},
	}))
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		errs := map[string]string{}
		errs["form"] = "Failed to parse form"
		a.Logger.Error("register user parse payload", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, MergeTemplateData(ctx, router.ViewContext{
			"errors": errs,
			"record": payload,
		}))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, MergeTemplateData(ctx, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		}))
	}

	if err := a.Accounts.Register(ctx.Context(), payload.Email, payload.Password); err != nil {
		// An unconfirmed duplicate means an interrupted sign-up: send the
		// user to the confirmation form instead of showing an error.
		if status, ok := AccountExistsStatus(err); ok && status == AccountStatusUnconfirmed {
			return flash.WithSuccess(ctx, router.ViewContext{
				"system_message": "This account is pending confirmation. Enter the code we emailed you.",
			}).Render(a.Views.Confirm, MergeTemplateData(ctx, router.ViewContext{
				"errors": map[string]string{},
				"record": ConfirmPayload{Email: payload.Email},
			}))
		}

		a.Logger.Error("register user error", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error registering account",
		}).Render(a.Views.Register, MergeTemplateData(ctx, router.ViewContext{
			"record": payload,
			"errors": map[string]string{"registration": err.Error()},
		}))
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Account created. Enter the confirmation code we emailed you.",
	}).Render(a.Views.Confirm, MergeTemplateData(ctx, router.ViewContext{
		"errors": map[string]string{},
		"record": ConfirmPayload{Email: payload.Email},
	}))
}

// ConfirmPayload holds values for the confirmation form. The resend flag
// mirrors the form's second submit button.
type ConfirmPayload struct {
	Email  string `form:"email" json:"email"`
	Code   string `form:"code" json:"code"`
	Resend bool   `form:"resend" json:"resend"`
}

// Validate will validate the payload
func (r ConfirmPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Code,
			validation.Required.When(!r.Resend),
		),
	)
}

func (a *AuthController) ConfirmPost(ctx router.Context) error {
	payload := new(ConfirmPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("confirm parse payload", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Confirm, MergeTemplateData(ctx, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		}))
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Confirm, MergeTemplateData(ctx, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		}))
	}

	if payload.Resend {
		if err := a.Accounts.ResendConfirmation(ctx.Context(), payload.Email); err != nil {
			a.Logger.Error("resend confirmation error", "error", err)
			return flash.WithError(ctx, router.ViewContext{
				"system_message": "Could not resend the confirmation code",
			}).Render(a.Views.Confirm, MergeTemplateData(ctx, router.ViewContext{
				"errors": map[string]string{"confirmation": err.Error()},
				"record": payload,
			}))
		}

		return flash.WithSuccess(ctx, router.ViewContext{
			"system_message": "A new confirmation code is on its way.",
		}).Render(a.Views.Confirm, MergeTemplateData(ctx, router.ViewContext{
			"errors": map[string]string{},
			"record": payload,
		}))
	}

	if err := a.Accounts.Confirm(ctx.Context(), payload.Email, payload.Code); err != nil {
		a.Logger.Error("confirm sign up error", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Confirmation failed",
		}).Render(a.Views.Confirm, MergeTemplateData(ctx, router.ViewContext{
			"errors": map[string]string{"confirmation": "Invalid or expired confirmation code"},
			"record": payload,
		}))
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Account confirmed. You can sign in now.",
	}).Render(a.Views.Login, MergeTemplateData(ctx, router.ViewContext{
		"errors": nil,
		"record": LoginRequest{Email: payload.Email},
	}))
}

func (a *AuthController) DashboardShow(ctx router.Context) error {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return a.ErrorHandler(ctx, ErrUnauthenticated)
	}

	if a.Debug {
		a.Logger.Debug("dashboard principal", "principal", print.MaybePrettyJSON(principal))
	}

	return ctx.Render(a.Views.Dashboard, MergeTemplateData(ctx, router.ViewContext{
		"errors":    nil,
		"principal": principal,
	}))
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a view map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["validation"] = err.Error()
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
