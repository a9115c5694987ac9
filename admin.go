package geiri

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/geiri-is/geiri/posts"
)

// topPagesLimit is the number of routes returned by the stats endpoint.
const topPagesLimit = 10

// notFoundAsBadRequest is used by mutating routes, which answer an unknown
// id with 400 rather than 404.
func notFoundAsBadRequest(err error) error {
	if errors.Is(err, posts.ErrNotFound) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return err
}

func (a *App) handleAdminListPosts(c echo.Context) error {
	list, err := a.Posts.ListAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"posts": list})
}

func (a *App) handleAdminCreatePost(c echo.Context) error {
	var in posts.CreateInput
	if err := c.Bind(&in); err != nil {
		return err
	}
	post, err := a.Posts.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	log := a.adminLog(c)
	log.Info().Str("post", post.ID).Str("slug", post.Slug).Msg("post created")
	return c.JSON(http.StatusCreated, map[string]any{"post": post})
}

func (a *App) handleAdminGetPost(c echo.Context) error {
	post, err := a.Posts.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"post": post})
}

func (a *App) handleAdminUpdatePost(c echo.Context) error {
	var patch posts.Patch
	if err := (&echo.DefaultBinder{}).BindBody(c, &patch); err != nil {
		return err
	}
	post, err := a.Posts.Update(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return notFoundAsBadRequest(err)
	}
	a.Cache.Invalidate()
	log := a.adminLog(c)
	log.Info().Str("post", post.ID).Str("slug", post.Slug).Msg("post updated")
	return c.JSON(http.StatusOK, map[string]any{"post": post})
}

func (a *App) handleAdminPublishPost(c echo.Context) error {
	res, err := a.Publisher.Publish(c.Request().Context(), c.Param("id"))
	if err != nil {
		return notFoundAsBadRequest(err)
	}
	a.Cache.Invalidate()
	log := a.adminLog(c)
	log.Info().Str("post", res.Post.ID).Str("slug", res.Post.Slug).
		Bool("linkedin_posted", res.LinkedIn.Posted).Msg("post published")
	return c.JSON(http.StatusOK, res)
}

func (a *App) handleAdminStats(c echo.Context) error {
	stats, err := a.Metrics.Stats(topPagesLimit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}
