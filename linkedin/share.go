package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/geiri-is/geiri/posts"
)

// Hashtags returns the hashtags appended to shares for a product area.
func Hashtags(area posts.ProductArea) []string {
	switch area {
	case posts.AreaTeams:
		return []string{"#MicrosoftTeams", "#M365"}
	case posts.AreaIntune:
		return []string{"#MicrosoftIntune", "#EndpointManagement"}
	case posts.AreaEntra:
		return []string{"#MicrosoftEntra", "#Identity"}
	}
	return nil
}

// PostURL is the canonical public URL of a post.
func (c *Client) PostURL(p posts.BlogPost) string {
	return c.cfg.SiteURL + "/blog/" + p.Slug + "/"
}

// ShareText is the commentary posted for p.
func (c *Client) ShareText(p posts.BlogPost) string {
	text := p.Title + "\n\n" + c.PostURL(p) + "\n\n" + strings.Join(Hashtags(p.ProductArea), " ")
	return strings.TrimSpace(text)
}

// MaybePost shares p on LinkedIn and returns the new post id. It returns
// "" and no error when auto-posting is disabled, nothing is connected, or
// the stored token has expired.
func (c *Client) MaybePost(ctx context.Context, p posts.BlogPost) (string, error) {
	if c.cfg.DisableAutoPost {
		return "", nil
	}
	sec, err := c.secrets.Get(ctx)
	if errors.Is(err, ErrNoSecret) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if sec.Expired(c.now()) {
		c.log.Debug().Time("expired", *sec.ExpiresAt).Msg("linkedin token expired, skipping share")
		return "", nil
	}
	return c.share(ctx, sec, p)
}

type ugcText struct {
	Text string `json:"text"`
}

type ugcMedia struct {
	Status      string  `json:"status"`
	OriginalURL string  `json:"originalUrl"`
	Title       ugcText `json:"title"`
}

type ugcShareContent struct {
	ShareCommentary    ugcText    `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"`
	Media              []ugcMedia `json:"media"`
}

type ugcPost struct {
	Author          string                     `json:"author"`
	LifecycleState  string                     `json:"lifecycleState"`
	SpecificContent map[string]ugcShareContent `json:"specificContent"`
	Visibility      map[string]string          `json:"visibility"`
}

func (c *Client) share(ctx context.Context, sec *Secret, p posts.BlogPost) (string, error) {
	url := c.PostURL(p)
	payload, err := json.Marshal(ugcPost{
		Author:         "urn:li:person:" + sec.MemberID,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]ugcShareContent{
			"com.linkedin.ugc.ShareContent": {
				ShareCommentary:    ugcText{Text: c.ShareText(p)},
				ShareMediaCategory: "ARTICLE",
				Media: []ugcMedia{{
					Status:      "READY",
					OriginalURL: url,
					Title:       ugcText{Text: p.Title},
				}},
			},
		},
		Visibility: map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+"/v2/ugcPosts", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+sec.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPostFailed, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", upstream(ErrPostFailed, resp.StatusCode, body)
	}

	if id := resp.Header.Get("X-Restli-Id"); id != "" {
		return id, nil
	}
	var created struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(body, &created) == nil && created.ID != "" {
		return created.ID, nil
	}
	return "", ErrPostIDMissing
}
