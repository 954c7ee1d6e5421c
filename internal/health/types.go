package health

import (
	"encoding/json"
	"time"
)

// HealthStatus represents the health state of an item.
type HealthStatus string

const (
	StatusOK      HealthStatus = "ok"
	StatusWarning HealthStatus = "warning"
	StatusError   HealthStatus = "error"
)

// HealthCategory represents the category of health items.
type HealthCategory string

const (
	CategoryMediaServer HealthCategory = "mediaServer"
	CategoryStorage     HealthCategory = "storage"
	CategoryTasks       HealthCategory = "tasks"
)

// AllCategories returns all health categories in display order.
func AllCategories() []HealthCategory {
	return []HealthCategory{
		CategoryMediaServer,
		CategoryStorage,
		CategoryTasks,
	}
}

// ParseCategory validates a category name.
func ParseCategory(s string) (HealthCategory, bool) {
	for _, cat := range AllCategories() {
		if string(cat) == s {
			return cat, true
		}
	}
	return "", false
}

// HealthItem represents a single health-tracked item.
type HealthItem struct {
	ID        string         `json:"id"`
	Category  HealthCategory `json:"category"`
	Name      string         `json:"name"`
	Status    HealthStatus   `json:"status"`
	Message   string         `json:"message,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
}

// MarshalJSON omits the message and timestamp of OK items.
func (h HealthItem) MarshalJSON() ([]byte, error) {
	type Alias HealthItem
	alias := Alias(h)

	if h.Status == StatusOK {
		alias.Timestamp = nil
		alias.Message = ""
	}

	return json.Marshal(alias)
}

// CategorySummary provides counts for a health category.
type CategorySummary struct {
	Category HealthCategory `json:"category"`
	OK       int            `json:"ok"`
	Warning  int            `json:"warning"`
	Error    int            `json:"error"`
}

// HasIssues returns true if there are any warning or error items.
func (c CategorySummary) HasIssues() bool {
	return c.Warning > 0 || c.Error > 0
}

// HealthResponse contains all health items grouped by category.
type HealthResponse struct {
	MediaServer []HealthItem `json:"mediaServer"`
	Storage     []HealthItem `json:"storage"`
	Tasks       []HealthItem `json:"tasks"`
}

// HealthSummary provides an overview of system health.
type HealthSummary struct {
	Categories []CategorySummary `json:"categories"`
	HasIssues  bool              `json:"hasIssues"`
}

// IsBinaryCategory returns true if the category only supports OK/Error.
// A media server or database is either reachable or not.
func IsBinaryCategory(category HealthCategory) bool {
	return category == CategoryMediaServer || category == CategoryStorage
}
