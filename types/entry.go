package types

import (
	"regexp"
	"time"
)

// ConfigKind classifies a configuration entry into one of a closed set of
// functional domains.
type ConfigKind string

const (
	KindCPA         ConfigKind = "cpa"
	KindSystem      ConfigKind = "system"
	KindMLM         ConfigKind = "mlm"
	KindIntegration ConfigKind = "integration"
	KindSecurity    ConfigKind = "security"
	KindPerformance ConfigKind = "performance"
)

// Kinds lists every supported configuration kind.
var Kinds = []ConfigKind{
	KindCPA, KindSystem, KindMLM, KindIntegration, KindSecurity, KindPerformance,
}

// ValidKind reports whether k is one of the supported configuration kinds.
func ValidKind(k ConfigKind) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// keyPattern is the required format for configuration keys: lowercase
// alphanumerics and underscores, 3 to 100 characters.
var keyPattern = regexp.MustCompile(`^[a-z0-9_]{3,100}$`)

// ValidKey reports whether key matches the required key format.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// MaxCategoryLength bounds the free-form category grouping label.
const MaxCategoryLength = 100

// MaxHistoryEntries bounds the per-entry change history. When the history
// exceeds this length the oldest events are dropped first.
const MaxHistoryEntries = 50

// ChangeAction identifies the kind of mutation recorded by a ChangeEvent.
type ChangeAction string

const (
	ActionCreate ChangeAction = "CREATE"
	ActionUpdate ChangeAction = "UPDATE"
	ActionDelete ChangeAction = "DELETE"
)

// ChangeEvent records a single committed mutation of a configuration entry.
// Events are immutable once appended to an entry's history.
type ChangeEvent struct {
	Action    ChangeAction `json:"action"`
	OldValue  any          `json:"old_value,omitempty"`
	NewValue  any          `json:"new_value,omitempty"`
	ChangedBy string       `json:"changed_by"`
	ChangedAt time.Time    `json:"changed_at"`
}

// ConfigEntry is one named configuration record with a versioned value and
// a bounded audit history. Key is immutable after creation and unique among
// active entries. Version starts at 1 and increases by exactly 1 on every
// committed mutation.
type ConfigEntry struct {
	Key              string         `json:"key"`
	Value            any            `json:"value"`
	Kind             ConfigKind     `json:"kind"`
	Category         string         `json:"category"`
	Description      string         `json:"description,omitempty"`
	ValidationSchema map[string]any `json:"validation_schema,omitempty"`
	Version          int            `json:"version"`
	Active           bool           `json:"active"`
	ChangeHistory    []ChangeEvent  `json:"change_history"`
	CreatedBy        string         `json:"created_by"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// AppendHistory appends ev to the entry's change history, trimming the oldest
// events so the history never exceeds MaxHistoryEntries.
func (e *ConfigEntry) AppendHistory(ev ChangeEvent) {
	e.ChangeHistory = append(e.ChangeHistory, ev)
	if len(e.ChangeHistory) > MaxHistoryEntries {
		e.ChangeHistory = e.ChangeHistory[len(e.ChangeHistory)-MaxHistoryEntries:]
	}
}
