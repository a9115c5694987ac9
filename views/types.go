// Package views holds the HTML components for the public blog pages.
package views

// Site holds the site-wide values every page needs.
type Site struct {
	Name        string
	URL         string // no trailing slash
	Description string
	Author      string
}

// PageMeta carries per-page OpenGraph and SEO metadata into the <head>.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
	JSONLD      string
}
