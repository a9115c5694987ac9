package geiri

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/geiri-is/geiri/linkedin"
)

const (
	adminConnectedURL = "/admin?linkedin=connected"
	adminErrorURL     = "/admin?linkedin=error"
)

func (a *App) handleLinkedInConnect(c echo.Context) error {
	state := a.LinkedIn.NewState()
	authURL, err := a.LinkedIn.AuthCodeURL(state)
	if errors.Is(err, linkedin.ErrNotConfigured) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return err
	}
	if err := setOAuthState(c, state); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, authURL)
}

func (a *App) handleLinkedInCallback(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	expected, err := takeOAuthState(c)
	if err != nil {
		a.Log.Warn().Err(err).Msg("linkedin callback: unreadable state cookie")
	}
	if code == "" || state == "" || expected == "" ||
		subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
		a.Log.Warn().Msg("linkedin callback: missing code or state mismatch")
		return c.Redirect(http.StatusFound, adminErrorURL)
	}

	if err := a.LinkedIn.Complete(c.Request().Context(), code); err != nil {
		a.Log.Error().Err(err).Msg("linkedin callback: completing oauth failed")
		return c.Redirect(http.StatusFound, adminErrorURL)
	}
	return c.Redirect(http.StatusFound, adminConnectedURL)
}

func (a *App) handleLinkedInStatus(c echo.Context) error {
	st, err := a.LinkedIn.Status(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}
