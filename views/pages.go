package views

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/geiri-is/geiri/markdown"
	"github.com/geiri-is/geiri/posts"
)

var esc = templ.EscapeString[string]

// writer collects the first write error so page bodies read top to bottom.
type writer struct {
	w   io.Writer
	err error
}

func (w *writer) raw(s string) {
	if w.err == nil {
		_, w.err = io.WriteString(w.w, s)
	}
}

func (w *writer) rawf(format string, args ...any) {
	if w.err == nil {
		_, w.err = fmt.Fprintf(w.w, format, args...)
	}
}

func (w *writer) component(ctx context.Context, c templ.Component) {
	if w.err == nil {
		w.err = c.Render(ctx, w.w)
	}
}

// Layout wraps body in the site chrome.
func Layout(site Site, meta PageMeta, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		title := site.Name
		if meta.Title != "" {
			title = meta.Title + " | " + site.Name
		}
		desc := meta.Description
		if desc == "" {
			desc = site.Description
		}
		ogType := meta.OGType
		if ogType == "" {
			ogType = "website"
		}
		w.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"/>`)
		w.raw(`<meta name="viewport" content="width=device-width, initial-scale=1"/>`)
		w.rawf(`<title>%s</title>`, esc(title))
		w.rawf(`<meta name="description" content="%s"/>`, esc(desc))
		w.rawf(`<meta property="og:title" content="%s"/>`, esc(title))
		w.rawf(`<meta property="og:type" content="%s"/>`, esc(ogType))
		if meta.URL != "" {
			w.rawf(`<link rel="canonical" href="%s"/><meta property="og:url" content="%s"/>`, esc(meta.URL), esc(meta.URL))
		}
		w.rawf(`<link rel="alternate" type="application/rss+xml" title="%s" href="%s"/>`, esc(site.Name), esc(site.URL+"/feed.xml"))
		if meta.JSONLD != "" {
			w.rawf(`<script type="application/ld+json">%s</script>`, meta.JSONLD)
		}
		w.raw(`</head><body><header><nav>`)
		w.rawf(`<a href="/">%s</a> <a href="/cv/">CV</a> <a href="/blog/">Blog</a>`, esc(site.Name))
		w.raw(`</nav></header><main>`)
		w.component(ctx, body)
		w.raw(`</main></body></html>`)
		return w.err
	})
}

func tagList(w *writer, tags []string) {
	if len(tags) == 0 {
		return
	}
	w.raw(`<ul class="tags">`)
	for _, t := range tags {
		w.rawf(`<li>%s</li>`, esc(t))
	}
	w.raw(`</ul>`)
}

// PostPage renders a single post with its markdown body.
func PostPage(site Site, post posts.BlogPost) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<article>`)
		w.rawf(`<h1>%s</h1>`, esc(post.Title))
		if d := FormatDate(post.PublishedAt); d != "" {
			w.rawf(`<p class="meta"><time datetime="%s">%s</time> &middot; %s</p>`,
				post.PublishedAt.Format("2006-01-02"), esc(d), esc(string(post.ProductArea)))
		}
		tagList(w, post.Tags)
		w.raw(`<div class="prose">`)
		w.component(ctx, markdown.Markdown(post.BodyMarkdown))
		w.raw(`</div></article>`)
		return w.err
	})
	return Layout(site, PageMeta{
		Title:       post.Title,
		Description: post.Summary,
		URL:         PostURL(site.URL, post.Slug),
		OGType:      "article",
		JSONLD:      BlogPostingJsonLD(site, post),
	}, body)
}

// BlogIndex renders the list of published posts.
func BlogIndex(site Site, list []posts.BlogPost) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<h1>Blog</h1>`)
		if len(list) == 0 {
			w.raw(`<p>No posts yet.</p>`)
			return w.err
		}
		w.raw(`<ul class="posts">`)
		for _, p := range list {
			w.rawf(`<li><a href="%s">%s</a>`, esc(PostURL("/", p.Slug)), esc(p.Title))
			if d := FormatDate(p.PublishedAt); d != "" {
				w.rawf(` <time>%s</time>`, esc(d))
			}
			if p.Summary != "" {
				w.rawf(`<p>%s</p>`, esc(p.Summary))
			}
			w.raw(`</li>`)
		}
		w.raw(`</ul>`)
		return w.err
	})
	return Layout(site, PageMeta{
		Title:  "Blog",
		URL:    BuildURL(site.URL, "blog"),
		JSONLD: WebsiteJsonLD(site),
	}, body)
}

func message(heading, text string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.rawf(`<h1>%s</h1><p>%s</p><p><a href="/blog/">Back to the blog</a></p>`, esc(heading), esc(text))
		return w.err
	})
}

func NotFound(site Site) templ.Component {
	return Layout(site, PageMeta{Title: "Not found"}, message("Not found", "That page does not exist."))
}

func ServerError(site Site) templ.Component {
	return Layout(site, PageMeta{Title: "Error"}, message("Something went wrong", "Please try again later."))
}

// Home is the landing page linking to the CV and the blog.
func Home(site Site) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		greeting := "Hi."
		if site.Author != "" {
			greeting = "Hi, I'm " + site.Author + "."
		}
		w.rawf(`<h1>%s</h1>`, esc(greeting))
		if site.Description != "" {
			w.rawf(`<p>%s</p>`, esc(site.Description))
		}
		w.raw(`<p><a href="/cv/">View CV</a> <a href="/blog/">Read blog</a></p>`)
		return w.err
	})
	return Layout(site, PageMeta{URL: BuildURL(site.URL) + "/", JSONLD: WebsiteJsonLD(site)}, body)
}

// CV is the curriculum vitae page. Its content is the site description
// until a richer layout is needed.
func CV(site Site) templ.Component {
	return Layout(site, PageMeta{Title: "CV", URL: BuildURL(site.URL, "cv")}, message(site.Author, site.Description))
}
