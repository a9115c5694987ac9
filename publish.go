package geiri

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/geiri-is/geiri/posts"
)

// CrossPoster shares a published post elsewhere and returns the id of the
// share, or "" when nothing was shared.
type CrossPoster interface {
	MaybePost(ctx context.Context, p posts.BlogPost) (string, error)
}

// CrossPostResult reports what happened to the LinkedIn share of a publish.
type CrossPostResult struct {
	Posted bool   `json:"posted"`
	URN    string `json:"urn,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PublishResult is the outcome of Publisher.Publish.
type PublishResult struct {
	Post     posts.BlogPost  `json:"post"`
	LinkedIn CrossPostResult `json:"linkedIn"`
}

// Publisher publishes posts and cross-posts them on first publish.
type Publisher struct {
	repo    *posts.Repository
	cp      CrossPoster
	metrics *Metrics
	log     zerolog.Logger
}

func NewPublisher(repo *posts.Repository, cp CrossPoster, m *Metrics, log zerolog.Logger) *Publisher {
	return &Publisher{repo: repo, cp: cp, metrics: m, log: log}
}

// Publish marks the post published, then shares it unless it was shared
// before. Share failures are reported in the result and never returned.
func (p *Publisher) Publish(ctx context.Context, id string) (PublishResult, error) {
	post, err := p.repo.Publish(ctx, id)
	if err != nil {
		return PublishResult{}, err
	}
	res := PublishResult{Post: post}
	if post.HasLinkedInPost() {
		res.LinkedIn.URN = *post.LinkedInPostURN
		p.metrics.crossPosted(outcomeSkipped)
		return res, nil
	}

	log := p.log.With().Str("post", post.ID).Str("slug", post.Slug).Logger()
	urn, err := p.cp.MaybePost(ctx, post)
	if err != nil {
		log.Warn().Err(err).Msg("linkedin cross-post failed")
		p.metrics.crossPosted(outcomeFailed)
		res.LinkedIn.Error = err.Error()
		return res, nil
	}
	if urn == "" {
		p.metrics.crossPosted(outcomeSkipped)
		return res, nil
	}

	res.LinkedIn.Posted, res.LinkedIn.URN = true, urn
	updated, err := p.repo.SetExternalPostID(ctx, post.ID, urn)
	if err != nil {
		log.Error().Err(err).Str("urn", urn).Msg("shared on linkedin but could not record the post id")
		p.metrics.crossPosted(outcomeFailed)
		res.LinkedIn.Error = err.Error()
		return res, nil
	}
	log.Info().Str("urn", urn).Msg("shared on linkedin")
	p.metrics.crossPosted(outcomePosted)
	res.Post = updated
	return res, nil
}
