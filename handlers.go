package geiri

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"

	"github.com/geiri-is/geiri/markdown"
	"github.com/geiri-is/geiri/posts"
	"github.com/geiri-is/geiri/views"
)

// PublicPost is a published post with its rendered body.
type PublicPost struct {
	posts.BlogPost
	BodyHTML string `json:"bodyHtml"`
}

func handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleListPosts(c echo.Context) error {
	list, err := a.Cache.ListPublished(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"posts": list})
}

func (a *App) handleGetPost(c echo.Context) error {
	post, err := a.Cache.GetPublished(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	html, err := markdown.RenderHTML(post.BodyMarkdown)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"post": PublicPost{BlogPost: post, BodyHTML: html}})
}

func (a *App) handleBlogIndex(c echo.Context) error {
	list, err := a.Cache.ListPublished(c.Request().Context())
	if err != nil {
		return err
	}
	return Render(c, views.BlogIndex(a.site(), list))
}

func (a *App) handlePost(c echo.Context) error {
	post, err := a.Cache.GetPublished(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return Render(c, views.PostPage(a.site(), post))
}

func (a *App) handleHome(c echo.Context) error {
	return Render(c, views.Home(a.site()))
}

func (a *App) handleCV(c echo.Context) error {
	return Render(c, views.CV(a.site()))
}

func handleBlogRedirect(c echo.Context) error {
	return c.Redirect(http.StatusMovedPermanently, "/blog/")
}

func (a *App) handleRobots(c echo.Context) error {
	body := fmt.Sprintf("User-agent: *\nAllow: /\nDisallow: /admin/\nDisallow: /api/admin/\n\nSitemap: %s/sitemap.xml\n", a.Config.URL)
	return c.String(http.StatusOK, body)
}

// statusFor maps domain errors to an HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	var (
		he   *echo.HTTPError
		verr *posts.ValidationError
	)
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, posts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, posts.ErrSlugAllocationExhausted):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// errorMessage is the JSON error text. Upstream failures keep their
// status and body so the admin can see what LinkedIn or the store said.
func errorMessage(err error, code int) string {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return fmt.Sprint(he.Message)
	case errors.Is(err, posts.ErrNotFound) && code == http.StatusNotFound:
		return "not_found"
	}
	return err.Error()
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := statusFor(err)
	if code >= 500 {
		a.Log.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("server error")
		if hub := sentryecho.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		} else if a.Config.SentryDSN != "" {
			sentry.CaptureException(err)
		}
	}

	path := c.Request().URL.Path
	if strings.HasPrefix(path, "/api/") || path == "/healthz" || path == "/metrics" {
		_ = c.JSON(code, map[string]string{"error": errorMessage(err, code)})
		return
	}
	switch {
	case code == http.StatusNotFound:
		_ = RenderStatus(c, code, views.NotFound(a.site()))
	case code >= 500:
		_ = RenderStatus(c, code, views.ServerError(a.site()))
	default:
		a.Echo.DefaultHTTPErrorHandler(err, c)
	}
}
