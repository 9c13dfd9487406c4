package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks if the user has one of the
// required roles. Admin bypasses all role checks.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == "admin" {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// PermissionChecker answers whether a principal may create or modify
// availability for an owner. The booking engine treats this as an external
// collaborator; the claims-based implementation below is the default.
type PermissionChecker interface {
	CanManageOwner(ctx context.Context, ownerID string) bool
}

// ClaimsChecker grants management rights when the principal is the owner
// itself, carries the owner in its managed_owners claim, or holds the admin
// role.
type ClaimsChecker struct{}

func (ClaimsChecker) CanManageOwner(ctx context.Context, ownerID string) bool {
	if UserIDFromContext(ctx) == ownerID {
		return true
	}
	for _, role := range RolesFromContext(ctx) {
		if role == "admin" {
			return true
		}
	}
	for _, managed := range ManagedOwnersFromContext(ctx) {
		if managed == ownerID {
			return true
		}
	}
	return false
}
