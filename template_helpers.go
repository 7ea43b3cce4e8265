package auth

import (
	"maps"

	"github.com/goliatone/go-router"
	"github.com/stackmill/go-cognito-auth/middleware/csrf"
)

// TemplateUserKey is the view context key carrying the current principal.
var TemplateUserKey = "current_user"

// TemplateHelpers returns helper data for the view engine's global context.
//
// In templates:
//
//	{% if current_user %}
//	{{ csrf_field }}
func TemplateHelpers() map[string]any {
	helpers := map[string]any{
		"is_authenticated": isAuthenticated,
		"is_active":        isActive,
	}

	maps.Copy(helpers, csrf.TemplateHelpers())

	return helpers
}

// MergeTemplateData merges request-scoped auth data (current principal, CSRF
// token helpers) into the view context before rendering.
func MergeTemplateData(c router.Context, data router.ViewContext) router.ViewContext {
	if data == nil {
		data = router.ViewContext{}
	}

	if principal, ok := PrincipalFromContext(c); ok {
		if _, exists := data[TemplateUserKey]; !exists {
			data[TemplateUserKey] = principal
		}
	}

	for key, value := range csrf.RequestHelpers(c) {
		if _, exists := data[key]; !exists {
			data[key] = value
		}
	}

	return data
}

func isAuthenticated(user any) bool {
	principal, ok := user.(Principal)
	return ok && principal.ID != ""
}

func isActive(user any) bool {
	principal, ok := user.(Principal)
	return ok && principal.Active()
}
