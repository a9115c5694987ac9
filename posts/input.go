package posts

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CreateInput is the body of a create request.
type CreateInput struct {
	Title        string      `json:"title"`
	Summary      string      `json:"summary"`
	BodyMarkdown string      `json:"bodyMarkdown"`
	ProductArea  ProductArea `json:"productArea"`
	Tags         []string    `json:"tags"`
	Slug         string      `json:"slug"`
}

// Patch is a partial update. Only fields with Set overwrite the post.
type Patch struct {
	Title        Field[string]      `json:"title"`
	Summary      Field[string]      `json:"summary"`
	BodyMarkdown Field[string]      `json:"bodyMarkdown"`
	ProductArea  Field[ProductArea] `json:"productArea"`
	Tags         Field[[]string]    `json:"tags"`
	Slug         Field[string]      `json:"slug"`
	Status       Field[Status]      `json:"status"`
}

// ValidationError reports malformed create or update input.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid post: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var (
	titleRules   = []validation.Rule{validation.Required.Error("title is required"), validation.RuneLength(1, 200)}
	summaryRules = []validation.Rule{validation.RuneLength(0, 400)}
	slugRules    = []validation.Rule{validation.RuneLength(0, 200)}
	areaRules    = []validation.Rule{validation.Required, validation.In(AreaTeams, AreaIntune, AreaEntra).Error("must be one of teams, intune, entra")}
	statusRules  = []validation.Rule{validation.Required, validation.In(StatusDraft, StatusPublished).Error("must be draft or published")}
)

func (in CreateInput) normalize() CreateInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	if in.ProductArea == "" {
		in.ProductArea = AreaTeams
	}
	in.Tags = normalizeTags(in.Tags)
	return in
}

// Validate checks the input after defaults have been applied.
func (in CreateInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Title, titleRules...),
		validation.Field(&in.Summary, summaryRules...),
		validation.Field(&in.Slug, slugRules...),
		validation.Field(&in.ProductArea, areaRules...),
	)
	if err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// validate checks the present fields of a patch against the post it applies to.
func (p Patch) validate(existing BlogPost) error {
	errs := validation.Errors{}
	check := func(name string, set, null bool, value any, rules []validation.Rule) {
		if !set {
			return
		}
		if null {
			errs[name] = validation.NewError("validation_null", "cannot be null")
			return
		}
		if err := validation.Validate(value, rules...); err != nil {
			errs[name] = err
		}
	}
	check("title", p.Title.Set, p.Title.Null, strings.TrimSpace(p.Title.Value), titleRules)
	check("productArea", p.ProductArea.Set, p.ProductArea.Null, p.ProductArea.Value, areaRules)
	check("status", p.Status.Set, p.Status.Null, p.Status.Value, statusRules)
	if p.Summary.Set && !p.Summary.Null {
		check("summary", true, false, p.Summary.Value, summaryRules)
	}
	if p.Slug.Set && !p.Slug.Null {
		check("slug", true, false, strings.TrimSpace(p.Slug.Value), slugRules)
	}
	if p.Status.Set && p.Status.Value == StatusDraft && existing.PublishedAt != nil {
		errs["status"] = validation.NewError("validation_unpublish", "a published post cannot return to draft")
	}
	if err := errs.Filter(); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// normalizeTags trims tags, drops empty ones and keeps at most MaxTags.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
		if len(out) == MaxTags {
			break
		}
	}
	return out
}
