// Package linkedin connects the site to a LinkedIn member account and
// shares published posts on it.
package linkedin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	DefaultAuthURL    = "https://www.linkedin.com/oauth/v2/authorization"
	DefaultTokenURL   = "https://www.linkedin.com/oauth/v2/accessToken"
	DefaultAPIBaseURL = "https://api.linkedin.com"
	DefaultTimeout    = 15 * time.Second

	// CallbackPath is where LinkedIn redirects after authorization.
	CallbackPath = "/api/admin/linkedin/callback"
)

// Scopes requested during authorization.
var Scopes = []string{"r_liteprofile", "w_member_social"}

// Config holds the LinkedIn app credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	// RedirectURL defaults to SiteURL + CallbackPath.
	RedirectURL string
	SiteURL     string
	// DisableAutoPost turns MaybePost into a no-op.
	DisableAutoPost bool

	AuthURL    string
	TokenURL   string
	APIBaseURL string
	Timeout    time.Duration
}

func (c *Config) setDefaults() {
	c.SiteURL = strings.TrimRight(c.SiteURL, "/")
	if c.RedirectURL == "" {
		c.RedirectURL = c.SiteURL + CallbackPath
	}
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Client runs the OAuth handshake and posts shares for one member.
type Client struct {
	cfg     Config
	oauth   *oauth2.Config
	secrets SecretStore
	http    *http.Client
	log     zerolog.Logger
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the outbound HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New returns a client storing its token in secrets.
func New(cfg Config, secrets SecretStore, log zerolog.Logger, opts ...Option) *Client {
	cfg.setDefaults()
	c := &Client{
		cfg:     cfg,
		secrets: secrets,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log.With().Str("component", "linkedin").Logger(),
		now:     time.Now,
	}
	c.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether client credentials are configured.
func (c *Client) Enabled() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

// NewState returns a random opaque value for the OAuth state parameter.
func (c *Client) NewState() string {
	return uuid.NewString()
}

// AuthCodeURL returns the LinkedIn authorization URL for state.
func (c *Client) AuthCodeURL(state string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	return c.oauth.AuthCodeURL(state), nil
}

func (c *Client) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// Complete exchanges an authorization code for a token, looks up the
// member id and stores both.
func (c *Client) Complete(ctx context.Context, code string) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	ctx = c.context(ctx)

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return upstream(ErrTokenExchangeFailed, rerr.Response.StatusCode, rerr.Body)
		}
		return fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}

	memberID, err := c.memberID(ctx, tok)
	if err != nil {
		return err
	}

	now := c.now().UTC()
	sec := Secret{
		AccessToken: tok.AccessToken,
		MemberID:    memberID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		sec.ExpiresAt = &exp
	}
	if err := c.secrets.Put(ctx, sec); err != nil {
		return err
	}
	c.log.Info().Str("member", memberID).Msg("linkedin connected")
	return nil
}

func (c *Client) memberID(ctx context.Context, tok *oauth2.Token) (string, error) {
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBaseURL+"/v2/me", nil)
	if err != nil {
		return "", err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProfileLookupFailed, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", upstream(ErrProfileLookupFailed, resp.StatusCode, body)
	}

	var me struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		return "", fmt.Errorf("%w: decode profile: %w", ErrProfileLookupFailed, err)
	}
	if me.ID == "" {
		return "", fmt.Errorf("%w: response has no id", ErrProfileLookupFailed)
	}
	return me.ID, nil
}

// Status describes the stored connection.
type Status struct {
	Connected bool       `json:"connected"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// Status reports whether a token is stored and when it expires.
func (c *Client) Status(ctx context.Context) (Status, error) {
	sec, err := c.secrets.Get(ctx)
	if errors.Is(err, ErrNoSecret) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	return Status{Connected: true, ExpiresAt: sec.ExpiresAt}, nil
}
