package geiri

import (
	"encoding/xml"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/geiri-is/geiri/posts"
	"github.com/geiri-is/geiri/views"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// staticRoutes are the sitemap entries that do not come from posts.
var staticRoutes = [][]string{{}, {"cv"}, {"blog"}}

func (a *App) handleSitemap(c echo.Context) error {
	list, err := a.Cache.ListPublished(c.Request().Context())
	if err != nil {
		return err
	}
	return writeXML(c, "application/xml; charset=utf-8", a.buildSitemap(list))
}

func (a *App) buildSitemap(list []posts.BlogPost) sitemapURLSet {
	base := a.Config.URL
	urls := make([]sitemapURL, 0, len(staticRoutes)+len(list))
	for _, segs := range staticRoutes {
		loc := views.BuildURL(base, segs...)
		if len(segs) == 0 {
			loc += "/"
		}
		urls = append(urls, sitemapURL{Loc: loc})
	}
	for _, p := range list {
		urls = append(urls, sitemapURL{
			Loc:     views.PostURL(base, p.Slug),
			LastMod: p.UpdatedAt.UTC().Format(time.DateOnly),
		})
	}
	return sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
}
