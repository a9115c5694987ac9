package posts

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugAttempts bounds the number of candidates tried for one base slug.
const MaxSlugAttempts = 100

// letters that do not decompose into an ASCII base under NFKD
var foldReplacer = strings.NewReplacer(
	"ß", "ss", "æ", "ae", "Æ", "ae", "ð", "d", "Ð", "d",
	"þ", "th", "Þ", "th", "ø", "o", "Ø", "o", "œ", "oe", "Œ", "oe", "ł", "l", "Ł", "l",
)

// Slugify converts text to a URL-safe slug: diacritics are stripped, the
// result is lower-cased, and every run of other characters becomes one hyphen.
func Slugify(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, foldReplacer.Replace(s))
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(strings.TrimSpace(folded))

	var b strings.Builder
	prev := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// BaseSlug is Slugify with "post" as the fallback for empty results.
func BaseSlug(s string) string {
	if slug := Slugify(s); slug != "" {
		return slug
	}
	return "post"
}

// ensureUniqueSlug returns base, or base-2, base-3, ... whichever is first
// unused by any post other than excludingID.
func (r *Repository) ensureUniqueSlug(ctx context.Context, base, excludingID string) (string, error) {
	for attempt := 1; attempt <= r.maxSlugAttempts; attempt++ {
		candidate := base
		if attempt > 1 {
			candidate = fmt.Sprintf("%s-%d", base, attempt)
		}
		taken, err := r.slugTaken(ctx, candidate, excludingID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q after %d attempts", ErrSlugAllocationExhausted, base, r.maxSlugAttempts)
}

func (r *Repository) slugTaken(ctx context.Context, slug, excludingID string) (bool, error) {
	matches, err := r.backend.FindBySlug(ctx, slug)
	if err != nil {
		return false, fmt.Errorf("check slug %q: %w", slug, err)
	}
	for _, p := range matches {
		if p.ID != excludingID {
			return true, nil
		}
	}
	return false, nil
}
