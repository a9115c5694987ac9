// Package posts stores blog posts and keeps their slugs unique.
package posts

import (
	"errors"
	"slices"
	"time"
)

var (
	// ErrNotFound is returned when no post matches the id or slug.
	ErrNotFound = errors.New("post not found")
	// ErrConflict is returned by a backend when a post id is already stored.
	ErrConflict = errors.New("post already exists")
	// ErrSlugAllocationExhausted is returned when every slug candidate is taken.
	ErrSlugAllocationExhausted = errors.New("slug allocation exhausted")
)

// Status is the publication state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// ProductArea classifies a post for hashtags and filtering.
type ProductArea string

const (
	AreaTeams  ProductArea = "teams"
	AreaIntune ProductArea = "intune"
	AreaEntra  ProductArea = "entra"
)

// ProductAreas lists every valid product area.
var ProductAreas = []ProductArea{AreaTeams, AreaIntune, AreaEntra}

// MaxTags is the number of tags kept on a post.
const MaxTags = 20

// BlogPost is the stored post document.
type BlogPost struct {
	ID              string      `json:"id"`
	Slug            string      `json:"slug"`
	Title           string      `json:"title"`
	Summary         string      `json:"summary"`
	BodyMarkdown    string      `json:"bodyMarkdown"`
	Tags            []string    `json:"tags"`
	ProductArea     ProductArea `json:"productArea"`
	Status          Status      `json:"status"`
	PublishedAt     *time.Time  `json:"publishedAt"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
	LinkedInPostURN *string     `json:"linkedInPostUrn"`
}

// Published reports whether the post is publicly visible.
func (p BlogPost) Published() bool {
	return p.Status == StatusPublished
}

// HasLinkedInPost reports whether the post was already cross-posted.
func (p BlogPost) HasLinkedInPost() bool {
	return p.LinkedInPostURN != nil && *p.LinkedInPostURN != ""
}

func (p BlogPost) clone() BlogPost {
	c := p
	c.Tags = slices.Clone(p.Tags)
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		c.PublishedAt = &t
	}
	if p.LinkedInPostURN != nil {
		s := *p.LinkedInPostURN
		c.LinkedInPostURN = &s
	}
	return c
}
