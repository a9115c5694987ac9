// Package geiri is a personal CV and blog site built with Go, Echo, and templ.
// It serves a public blog with RSS and a sitemap, an admin JSON API for
// authoring posts, and cross-posts published posts to LinkedIn.
package geiri

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/geiri-is/geiri/docstore"
	"github.com/geiri-is/geiri/linkedin"
	"github.com/geiri-is/geiri/posts"
	"github.com/geiri-is/geiri/views"
)

// App wires together the post repository, LinkedIn client, cache,
// handlers and middleware.
type App struct {
	Config    SiteConfig
	Echo      *echo.Echo
	Log       zerolog.Logger
	Posts     *posts.Repository
	Cache     *PostCache
	LinkedIn  *linkedin.Client
	Publisher *Publisher
	Metrics   *Metrics

	store        docstore.Store
	backend      posts.Backend
	secrets      linkedin.SecretStore
	crossPoster  CrossPoster
	linkedInOpts []linkedin.Option
	limiter      *RateLimiter
	ready        bool
}

// New creates a new App with the given configuration.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		Log:    zerolog.Nop(),
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Setup opens the document store and registers middleware and routes.
// Start calls it; tests call it directly and drive a.Echo.
func (a *App) Setup(ctx context.Context) error {
	if a.ready {
		return nil
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("geiri: SessionSecret is required")
	}

	if err := a.openStores(ctx); err != nil {
		return err
	}

	a.Posts = posts.NewRepository(a.backend)
	a.Cache = NewPostCache(a.Posts, a.Config.PostCacheTTL)
	a.LinkedIn = linkedin.New(a.Config.linkedInConfig(), a.secrets, a.Log, a.linkedInOpts...)
	if a.crossPoster == nil {
		a.crossPoster = a.LinkedIn
	}
	a.Metrics = NewMetrics()
	a.Publisher = NewPublisher(a.Posts, a.crossPoster, a.Metrics, a.Log)
	a.limiter = NewRateLimiter(10, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()
	a.ready = true
	return nil
}

func (a *App) openStores(ctx context.Context) error {
	if a.backend != nil && a.secrets != nil {
		return nil
	}
	store, err := docstore.Open(ctx, a.Config.DocstoreURL, a.Log)
	switch {
	case errors.Is(err, docstore.ErrNotConfigured):
		a.Log.Warn().Msg("no document store configured, posts and LinkedIn credentials are kept in memory")
		if a.backend == nil {
			a.backend = posts.NewMemoryBackend()
		}
		if a.secrets == nil {
			a.secrets = linkedin.NewMemorySecretStore()
		}
		return nil
	case err != nil:
		return fmt.Errorf("geiri: open docstore: %w", err)
	}
	a.store = store
	if a.backend == nil {
		a.backend = posts.NewDocBackend(store.Container(a.Config.PostsContainer))
	}
	if a.secrets == nil {
		a.secrets = linkedin.NewDocSecretStore(store.Container(a.Config.SecretsContainer))
	}
	return nil
}

// Start sets the app up and serves until the server is shut down.
func (a *App) Start() error {
	if err := a.Setup(context.Background()); err != nil {
		return err
	}
	a.Log.Info().Str("addr", a.Config.Addr).Str("url", a.Config.URL).Msg("listening")
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully and releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)
	return errors.Join(err, a.Close())
}

func (a *App) site() views.Site {
	return views.Site{
		Name:        a.Config.Name,
		URL:         a.Config.URL,
		Description: a.Config.Description,
		Author:      a.Config.Author,
	}
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.GET("/healthz", handleHealth)
	e.GET("/metrics", a.Metrics.Handler())
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)

	e.GET("/", a.handleHome)
	e.GET("/cv/", a.handleCV)
	e.GET("/blog", handleBlogRedirect)
	e.GET("/blog/", a.handleBlogIndex)
	e.GET("/blog/:slug/", a.handlePost)

	e.GET("/api/posts", a.handleListPosts)
	e.GET("/api/posts/:slug", a.handleGetPost)

	admin := e.Group("/api/admin", a.requireAdmin)
	admin.GET("/posts", a.handleAdminListPosts)
	admin.POST("/posts", a.handleAdminCreatePost)
	admin.GET("/posts/:id", a.handleAdminGetPost)
	admin.PATCH("/posts/:id", a.handleAdminUpdatePost)
	admin.POST("/posts/:id/publish", a.handleAdminPublishPost)
	admin.GET("/stats", a.handleAdminStats)

	li := admin.Group("/linkedin")
	li.GET("/connect", a.handleLinkedInConnect, a.rateLimit)
	li.GET("/callback", a.handleLinkedInCallback, a.rateLimit)
	li.GET("/status", a.handleLinkedInStatus)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
