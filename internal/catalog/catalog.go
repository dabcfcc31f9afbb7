// Package catalog derives filtered views and per-status counts from a list
// of agent sessions. Nothing here mutates the slices it is given.
package catalog

import (
	"strings"

	"github.com/strrl/agent-activity/pkg/models"
)

// All is the pseudo status that matches every session
const All = "all"

// Counts maps a status (or All) to the number of sessions in it
type Counts map[string]int

// FilterOptions returns the status filters in display order, All first
func FilterOptions() []string {
	opts := make([]string, 0, len(models.AllStatuses)+1)
	opts = append(opts, All)
	for _, s := range models.AllStatuses {
		opts = append(opts, string(s))
	}
	return opts
}

// NextFilter returns the filter after current, wrapping around. step may be
// negative to walk backwards.
func NextFilter(current string, step int) string {
	opts := FilterOptions()
	idx := 0
	for i, o := range opts {
		if o == current {
			idx = i
			break
		}
	}
	n := len(opts)
	return opts[((idx+step)%n+n)%n]
}

// Filter returns the sessions matching status and query.
// status All keeps every status; query is a case-insensitive substring
// matched against agent type, model, current task and chat name. Only the
// empty query matches everything; whitespace is part of the needle.
func Filter(sessions []models.Session, status string, query string) []models.Session {
	needle := strings.ToLower(query)

	result := make([]models.Session, 0, len(sessions))
	for _, s := range sessions {
		if status != All && string(s.Status) != status {
			continue
		}
		if needle != "" && !Matches(s, needle) {
			continue
		}
		result = append(result, s)
	}
	return result
}

// Matches reports whether any searchable field of s contains needle.
// needle must already be lower-cased.
func Matches(s models.Session, needle string) bool {
	fields := []string{s.AgentType, s.Model}
	if s.CurrentTask != "" {
		fields = append(fields, s.CurrentTask)
	}
	if s.ChatName != "" {
		fields = append(fields, s.ChatName)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// CountByStatus counts sessions per known status. Every known status is
// present even at zero; unknown statuses only count toward All.
func CountByStatus(sessions []models.Session) Counts {
	counts := make(Counts, len(models.AllStatuses)+1)
	counts[All] = len(sessions)
	for _, s := range models.AllStatuses {
		counts[string(s)] = 0
	}
	for _, s := range sessions {
		if s.Status.Valid() {
			counts[string(s.Status)]++
		}
	}
	return counts
}

// Dedupe keeps one session per ID: the one updated most recently, or the
// first seen on a tie. Output keeps first-seen order.
func Dedupe(sessions []models.Session) []models.Session {
	index := make(map[string]int, len(sessions))
	result := make([]models.Session, 0, len(sessions))
	for _, s := range sessions {
		if i, ok := index[s.ID]; ok {
			if s.UpdatedAt.After(result[i].UpdatedAt) {
				result[i] = s
			}
			continue
		}
		index[s.ID] = len(result)
		result = append(result, s)
	}
	return result
}

// Catalog holds the current session snapshot for one view
type Catalog struct {
	sessions []models.Session
	byID     map[string]int
}

// New builds a catalog from sessions, dropping duplicate IDs
func New(sessions []models.Session) *Catalog {
	c := &Catalog{}
	c.Replace(sessions)
	return c
}

// Replace swaps in a new snapshot
func (c *Catalog) Replace(sessions []models.Session) {
	c.sessions = Dedupe(sessions)
	c.byID = make(map[string]int, len(c.sessions))
	for i, s := range c.sessions {
		c.byID[s.ID] = i
	}
}

// Sessions returns the snapshot
func (c *Catalog) Sessions() []models.Session {
	return c.sessions
}

// Len returns the number of sessions in the snapshot
func (c *Catalog) Len() int {
	return len(c.sessions)
}

// Lookup finds a session by ID
func (c *Catalog) Lookup(id string) (models.Session, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.Session{}, false
	}
	return c.sessions[i], true
}

// Filter applies Filter to the snapshot
func (c *Catalog) Filter(status, query string) []models.Session {
	return Filter(c.sessions, status, query)
}

// Counts applies CountByStatus to the snapshot
func (c *Catalog) Counts() Counts {
	return CountByStatus(c.sessions)
}
