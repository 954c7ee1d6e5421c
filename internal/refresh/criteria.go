package refresh

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/config"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/library"
)

// NoAgeLimit disables the created and premiere date windows.
const NoAgeLimit = -1

// Criteria is the per-pass snapshot of the sparse detection settings.
type Criteria struct {
	MaxDays                int                 `json:"maxDays"`
	RefreshCooldownMinutes int                 `json:"refreshCooldownMinutes"`
	MinimumProviderIDs     int                 `json:"minimumProviderIds"`
	CheckMissingOverview   bool                `json:"checkMissingOverview"`
	CheckMissingName       bool                `json:"checkMissingName"`
	CheckNameIsDate        bool                `json:"checkNameIsDate"`
	CheckOverviewBadName   bool                `json:"checkOverviewBadName"`
	BadNames               []string            `json:"badNames"`
	MissingImage           library.ImagePolicy `json:"missingImage"`
	Now                    time.Time           `json:"now"`
}

// NewCriteria builds a snapshot from the configured options. now is
// normalized to UTC.
func NewCriteria(opts config.RefreshOptions, now time.Time) (Criteria, error) {
	policy, err := library.ParseImagePolicy(opts.MissingImage)
	if err != nil {
		return Criteria{}, fmt.Errorf("%w: %w", ErrConfigurationUnavailable, err)
	}

	maxDays := opts.MaxDays
	if maxDays < 0 {
		maxDays = NoAgeLimit
	}

	return Criteria{
		MaxDays:                maxDays,
		RefreshCooldownMinutes: opts.RefreshCooldownMinutes,
		MinimumProviderIDs:     opts.MinimumProviderIDs,
		CheckMissingOverview:   opts.MissingOverview,
		CheckMissingName:       opts.MissingName,
		CheckNameIsDate:        opts.NameIsDate,
		CheckOverviewBadName:   opts.OverviewBadName,
		BadNames:               SplitBadNames(opts.BadNames),
		MissingImage:           policy,
		Now:                    now.UTC(),
	}, nil
}

// Cutoff returns the earliest accepted created/premiere date, or false when
// there is no age limit. The window is counted from midnight UTC.
func (c Criteria) Cutoff() (time.Time, bool) {
	if c.MaxDays < 0 {
		return time.Time{}, false
	}
	now := c.Now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, -c.MaxDays), true
}

// InPremiereWindow reports whether the item's premiere date passes the age
// window. Items without a premiere date always pass.
func (c Criteria) InPremiereWindow(item *library.Item) bool {
	cutoff, ok := c.Cutoff()
	if !ok || item.PremiereDate == nil {
		return true
	}
	return !item.PremiereDate.Before(cutoff)
}

// CooledDown reports whether more than RefreshCooldownMinutes have elapsed
// since the item was last refreshed. Never-refreshed items always pass.
func (c Criteria) CooledDown(item *library.Item) bool {
	if item.LastRefreshedAt == nil {
		return true
	}
	return minutesSince(*item.LastRefreshedAt, c.Now) > float64(c.RefreshCooldownMinutes)
}

// SplitBadNames parses the delimited bad_names setting.
func SplitBadNames(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', '|', '\n', '\r':
			return true
		}
		return false
	})

	fold := cases.Fold()
	seen := make(map[string]struct{}, len(fields))
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		key := fold.String(f)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, f)
	}
	return names
}
