package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/staff"
)

type staffApi struct {
	svc  *staff.Service
	conf *core.Config
}

func registerStaffAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *staff.Service, conf *core.Config) {
	api := staffApi{svc: svc, conf: conf}
	super := rolesMiddleware(svc, staff.RoleSuper)

	sg := g.Group("/staff")

	// un-authed endpoints
	sg.POST("/login", api.login)
	sg.POST("/password-reset", api.requestPasswordReset)
	sg.POST("/password-reset/confirm", api.confirmPasswordReset)

	// authed endpoints
	ag := sg.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.me, rolesMiddleware(svc))
	ag.GET("/roles", api.queryRoles, rolesMiddleware(svc))
	ag.POST("", api.create, super)
	ag.GET("", api.query, super)
	ag.DELETE("", api.destroyMultiple, super)

	// detail endpoints
	dg := ag.Group("/:id", selfOrSuperMiddleware(svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.POST("/password", api.setPassword)
	dg.DELETE("", api.destroy, super)
}

// Handlers

func (api *staffApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}

	token, err := authenticate(ctx, api.svc, api.conf, data.Username, data.Password)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (api *staffApi) requestPasswordReset(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}
	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		return errors.Wrap(err, "requesting password reset")
	}
	// same answer whether or not the email is known
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password reset e-mail has been sent."})
}

func (api *staffApi) confirmPasswordReset(ctx echo.Context) error {
	var data PasswordResetConfirm
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}

	_, err := api.svc.ConfirmPasswordReset(ctx.Request().Context(), data.UID, data.Token, data.Password)
	if err != nil {
		if errors.Cause(err) == staff.ErrAccountDeactivated {
			return errAccountDeactivated
		}
		return errors.Wrap(err, "confirming password reset")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *staffApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.svc, api.conf)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (api *staffApi) me(ctx echo.Context) error {
	s, err := getContextStaff(ctx, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *staffApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, staff.Roles)
}

func (api *staffApi) create(ctx echo.Context) error {
	var data staff.NewStaff
	if err := bindBody(ctx, &data); err != nil {
		return err
	}

	ctxStaff, err := getContextStaff(ctx, api.svc)
	if err != nil {
		return err
	}
	if err := staff.CheckGrant(ctxStaff, data.Roles); err != nil {
		return err
	}

	s, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating staff")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *staffApi) query(ctx echo.Context) error {
	filter := staff.QueryFilter{
		Search:   ctx.QueryParam("search"),
		Roles:    queryList(ctx, "role"),
		IsActive: queryBool(ctx, "is_active"),
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	members, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying staff")
	}
	if members == nil {
		members = []staff.Staff{}
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *staffApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *staffApi) update(ctx echo.Context) error {
	var data staff.UpdateStaff
	if err := bindBody(ctx, &data); err != nil {
		return err
	}

	ctxStaff, err := getContextStaff(ctx, api.svc)
	if err != nil {
		return err
	}
	if !ctxStaff.IsSuper() {
		// `IsActive`, `Roles`, `Username` & `Email` can only be changed by a super admin
		if data.IsActive != nil || data.Roles != nil || data.Username != "" || data.Email != "" {
			return errHttpForbidden
		}
	}
	if err := staff.CheckGrant(ctxStaff, data.Roles); err != nil {
		return err
	}

	orig, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	s, err := api.svc.Update(ctx.Request().Context(), orig, data)
	if err != nil {
		return errors.Wrap(err, "updating staff")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *staffApi) setPassword(ctx echo.Context) error {
	var data PasswordRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}

	orig, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if _, err := api.svc.ResetPassword(ctx.Request().Context(), orig, data.Password); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *staffApi) destroy(ctx echo.Context) error {
	ctxStaff, err := getContextStaff(ctx, api.svc)
	if err != nil {
		return err
	}
	n, err := api.svc.Delete(ctx.Request().Context(), ctxStaff, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting staff")
	}
	if n == 0 {
		return errHttpNotFound
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *staffApi) destroyMultiple(ctx echo.Context) error {
	ids := queryList(ctx, "id")
	if len(ids) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	ctxStaff, err := getContextStaff(ctx, api.svc)
	if err != nil {
		return err
	}
	if _, err := api.svc.Delete(ctx.Request().Context(), ctxStaff, ids...); err != nil {
		return errors.Wrap(err, "deleting staff")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	LoginRequest struct {
		Username string `json:"username"` // or email
		Password string `json:"password"`
	}

	TokenResponse struct {
		Token string `json:"token"`
	}

	PasswordRequest struct {
		Password        string `json:"password"`
		PasswordConfirm string `json:"password_confirm"`
	}

	PasswordResetRequest struct {
		Email string `json:"email"`
	}

	PasswordResetConfirm struct {
		UID   string `json:"uid"`
		Token string `json:"token"`
		PasswordRequest
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (lr *LoginRequest) Validate() error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	var flds []core.FieldError
	if lr.Username == "" {
		flds = append(flds, core.FieldError{Field: "username", Error: "this field is required"})
	}
	if lr.Password == "" {
		flds = append(flds, core.FieldError{Field: "password", Error: "this field is required"})
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func (pr *PasswordRequest) Validate() error {
	if pr.Password == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: "this field is required"})
	}
	if pr.Password != pr.PasswordConfirm {
		return core.NewValidationError(nil, core.FieldError{Field: "password_confirm", Error: "passwords do not match"})
	}
	return nil
}

func (pr *PasswordResetRequest) Validate() error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	if pr.Email == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "email", Error: "this field is required"})
	}
	return nil
}

func (pc *PasswordResetConfirm) Validate() error {
	var flds []core.FieldError
	if pc.UID == "" {
		flds = append(flds, core.FieldError{Field: "uid", Error: "this field is required"})
	}
	if pc.Token == "" {
		flds = append(flds, core.FieldError{Field: "token", Error: "this field is required"})
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return pc.PasswordRequest.Validate()
}
