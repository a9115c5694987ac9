package geiri

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	principalHeader = "X-MS-Client-Principal"
	adminRole       = "admin"
	principalKey    = "principal"
)

// Principal is the authenticated user injected by the hosting platform.
type Principal struct {
	IdentityProvider string   `json:"identityProvider"`
	UserID           string   `json:"userId"`
	UserDetails      string   `json:"userDetails"`
	UserRoles        []string `json:"userRoles"`
}

// HasRole reports whether the principal carries role.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.UserRoles, role)
}

// ParsePrincipal decodes the base64 JSON principal header. It returns
// false when the header is missing or malformed.
func ParsePrincipal(header string) (Principal, bool) {
	if header == "" {
		return Principal{}, false
	}
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(header); err != nil {
			return Principal{}, false
		}
	}
	var p Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		return Principal{}, false
	}
	return p, true
}

// IsAdmin reports whether the request comes from an admin.
func (a *App) IsAdmin(c echo.Context) bool {
	if a.Config.DevMode {
		return true
	}
	p, ok := ParsePrincipal(c.Request().Header.Get(principalHeader))
	if !ok || !p.HasRole(adminRole) {
		return false
	}
	c.Set(principalKey, p)
	return true
}

// principalFrom returns the principal IsAdmin stored on the context. It is
// absent in dev mode.
func principalFrom(c echo.Context) (Principal, bool) {
	p, ok := c.Get(principalKey).(Principal)
	return p, ok
}

// adminLog is the app logger tagged with the acting admin, when known.
func (a *App) adminLog(c echo.Context) zerolog.Logger {
	p, ok := principalFrom(c)
	if !ok {
		return a.Log
	}
	return a.Log.With().Str("admin", p.UserDetails).Str("admin_id", p.UserID).Logger()
}

func (a *App) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !a.IsAdmin(c) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		}
		return next(c)
	}
}
