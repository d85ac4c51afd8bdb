package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/sautiplus/backoffice/core/staff"
)

// rolesMiddleware only lets staff holding one of roles through. No roles: any authenticated staff.
func rolesMiddleware(svc *staff.Service, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			s, err := getContextStaff(ctx, svc)
			if err != nil {
				return err
			}
			if len(roles) == 0 || s.HasAnyRole(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// selfOrSuperMiddleware lets a staff member act on their own account; super admins act on any.
func selfOrSuperMiddleware(svc *staff.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			s, err := getContextStaff(ctx, svc)
			if err != nil {
				return err
			}
			if ctx.Param("id") == s.ID || s.IsSuper() {
				return next(ctx)
			}
			return errHttpNotFound
		}
	}
}
