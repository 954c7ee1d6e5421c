// Package refresh decides which library items have sparse metadata and drives
// refreshes for them.
package refresh

import (
	"context"
	"fmt"
	"iter"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/library"
)

// Category names one metadata check.
type Category string

// Categories in the order deficiencies are reported.
const (
	CategoryProviderIDs     Category = "provider_ids"
	CategoryMissingOverview Category = "missing_overview"
	CategoryOverviewBadName Category = "overview_bad_name"
	CategoryMissingName     Category = "missing_name"
	CategoryNameIsDate      Category = "name_is_date"
	CategoryBadName         Category = "bad_name"
	CategoryMissingImage    Category = "missing_image"
)

// Deficiency is one failed check with a readable explanation.
type Deficiency struct {
	Category Category `json:"category"`
	Message  string   `json:"message"`
}

// Decision is the evaluation of one item in one pass.
type Decision struct {
	ShouldRefresh bool         `json:"shouldRefresh"`
	Reasons       []Deficiency `json:"missingReasons"`
}

// ItemQuerier streams library items matching a query.
type ItemQuerier interface {
	QueryItems(ctx context.Context, q library.Query) iter.Seq2[*library.Item, error]
}

// IntensitySource reads the refresh intensity flags from live configuration.
type IntensitySource interface {
	ReplaceAllImages() bool
	ReplaceAllMetadata() bool
}

// ImageInspector checks whether an item lacks an image in a slot.
type ImageInspector interface {
	MissingImage(item *library.Item, t library.ImageType, policy library.ImagePolicy) bool
}

// Evaluator holds the sparse metadata rules for one item kind.
type Evaluator interface {
	Kind() library.Kind
	SelectCandidates(ctx context.Context, c Criteria, store ItemQuerier) iter.Seq2[*library.Item, error]
	NeedsRefresh(item *library.Item, c Criteria) bool
	ExplainDeficiencies(item *library.Item, c Criteria) []Deficiency
	RefreshIntensity() library.RefreshOptions
	ItemTypeName() string
	Name() string
	Description() string
}

// Decide evaluates one item.
func Decide(e Evaluator, item *library.Item, c Criteria) Decision {
	return Decision{
		ShouldRefresh: e.NeedsRefresh(item, c),
		Reasons:       e.ExplainDeficiencies(item, c),
	}
}

// check is one rule. test returns whether the rule fires and its message.
type check struct {
	category Category
	test     func(e *KindEvaluator, item *library.Item, c Criteria) (bool, string)
}

// checks are listed in reporting order. The bad name prefix check has no
// toggle while the overview variant does; both behaviors are intended.
var checks = []check{
	{CategoryProviderIDs, func(_ *KindEvaluator, item *library.Item, c Criteria) (bool, string) {
		n := len(item.ProviderIDs)
		return n < c.MinimumProviderIDs,
			fmt.Sprintf("has %d provider ids, minimum is %d", n, c.MinimumProviderIDs)
	}},
	{CategoryMissingOverview, func(_ *KindEvaluator, item *library.Item, c Criteria) (bool, string) {
		return c.CheckMissingOverview && isBlank(item.Overview), "missing overview"
	}},
	{CategoryOverviewBadName, func(_ *KindEvaluator, item *library.Item, c Criteria) (bool, string) {
		if !c.CheckOverviewBadName {
			return false, ""
		}
		bad, ok := firstContainsFold(item.Overview, c.BadNames)
		return ok, fmt.Sprintf("overview contains bad name %q", bad)
	}},
	{CategoryMissingName, func(_ *KindEvaluator, item *library.Item, c Criteria) (bool, string) {
		return c.CheckMissingName && isBlank(item.Name), "missing name"
	}},
	{CategoryNameIsDate, func(_ *KindEvaluator, item *library.Item, c Criteria) (bool, string) {
		return c.CheckNameIsDate && IsDate(item.Name), fmt.Sprintf("name %q is a date", item.Name)
	}},
	{CategoryBadName, func(_ *KindEvaluator, item *library.Item, c Criteria) (bool, string) {
		bad, ok := firstPrefixFold(item.Name, c.BadNames)
		return ok, fmt.Sprintf("name starts with bad name %q", bad)
	}},
	{CategoryMissingImage, func(e *KindEvaluator, item *library.Item, c Criteria) (bool, string) {
		return e.images.MissingImage(item, library.ImagePrimary, c.MissingImage),
			fmt.Sprintf("missing primary image (policy %s)", c.MissingImage)
	}},
}

// KindEvaluator applies the sparse metadata rules to one item kind.
type KindEvaluator struct {
	kind        library.Kind
	typeName    string
	name        string
	description string
	intensity   IntensitySource
	images      ImageInspector
}

// NewMovieEvaluator creates the evaluator for movies.
func NewMovieEvaluator(intensity IntensitySource, images ImageInspector) *KindEvaluator {
	return &KindEvaluator{
		kind:        library.KindMovie,
		typeName:    "Movie",
		name:        "Refresh sparse movies",
		description: "Refreshes metadata and images for movies with missing or placeholder metadata",
		intensity:   intensity,
		images:      images,
	}
}

// NewSeriesEvaluator creates the evaluator for series.
func NewSeriesEvaluator(intensity IntensitySource, images ImageInspector) *KindEvaluator {
	return &KindEvaluator{
		kind:        library.KindSeries,
		typeName:    "Series",
		name:        "Refresh sparse series",
		description: "Refreshes metadata and images for series with missing or placeholder metadata",
		intensity:   intensity,
		images:      images,
	}
}

// NewEpisodeEvaluator creates the evaluator for episodes.
func NewEpisodeEvaluator(intensity IntensitySource, images ImageInspector) *KindEvaluator {
	return &KindEvaluator{
		kind:        library.KindEpisode,
		typeName:    "Episode",
		name:        "Refresh sparse episodes",
		description: "Refreshes metadata and images for episodes with missing or placeholder metadata",
		intensity:   intensity,
		images:      images,
	}
}

func (e *KindEvaluator) Kind() library.Kind  { return e.kind }
func (e *KindEvaluator) ItemTypeName() string { return e.typeName }
func (e *KindEvaluator) Name() string         { return e.name }
func (e *KindEvaluator) Description() string  { return e.description }

// SelectCandidates streams non-virtual items of the evaluator's kind from the
// whole library, ordered by sort name, created on or after the cutoff.
func (e *KindEvaluator) SelectCandidates(ctx context.Context, c Criteria, store ItemQuerier) iter.Seq2[*library.Item, error] {
	q := library.Query{
		Kinds:          []library.Kind{e.kind},
		ExcludeVirtual: true,
		Recursive:      true,
		OrderBy:        []library.Order{{Field: library.SortBySortName, Direction: library.Ascending}},
	}
	if cutoff, ok := c.Cutoff(); ok {
		q.MinDateCreated = &cutoff
	}
	return store.QueryItems(ctx, q)
}

// NeedsRefresh reports whether any check fires.
func (e *KindEvaluator) NeedsRefresh(item *library.Item, c Criteria) bool {
	for _, ch := range checks {
		if ok, _ := ch.test(e, item, c); ok {
			return true
		}
	}
	return false
}

// ExplainDeficiencies runs every check and returns one entry per failure.
func (e *KindEvaluator) ExplainDeficiencies(item *library.Item, c Criteria) []Deficiency {
	var out []Deficiency
	for _, ch := range checks {
		if ok, msg := ch.test(e, item, c); ok {
			out = append(out, Deficiency{Category: ch.category, Message: msg})
		}
	}
	return out
}

// RefreshIntensity reads the replace flags from live configuration.
func (e *KindEvaluator) RefreshIntensity() library.RefreshOptions {
	if e.intensity == nil {
		return library.RefreshOptions{}
	}
	return library.RefreshOptions{
		ReplaceAllImages:   e.intensity.ReplaceAllImages(),
		ReplaceAllMetadata: e.intensity.ReplaceAllMetadata(),
	}
}
