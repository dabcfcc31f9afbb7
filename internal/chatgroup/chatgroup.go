// Package chatgroup buckets chats by how recently they were updated.
package chatgroup

import (
	"sort"
	"time"

	"github.com/strrl/agent-activity/internal/timefmt"
	"github.com/strrl/agent-activity/pkg/models"
)

// Label names a recency bucket
type Label string

const (
	Today          Label = "Today"
	Yesterday      Label = "Yesterday"
	PreviousWeek   Label = "Previous 7 Days"
	Older          Label = "Older"
	previousWindow       = 7 * 24 * time.Hour
)

// Order is the fixed order buckets are emitted in
var Order = []Label{Today, Yesterday, PreviousWeek, Older}

// Bucket is a non-empty group of chats, newest first
type Bucket struct {
	Label Label                `json:"label" yaml:"label"`
	Chats []models.ChatSummary `json:"chats" yaml:"chats"`
}

type dated struct {
	chat    models.ChatSummary
	updated time.Time
	ok      bool
}

// Classify returns the bucket for a chat updated at t, relative to now.
// Calendar days are taken in now's location. Timestamps ahead of now count
// as Today.
func Classify(t time.Time, now time.Time) Label {
	t = t.In(now.Location())
	today := timefmt.StartOfDay(now)
	yesterday := today.AddDate(0, 0, -1)

	switch {
	case !t.Before(today):
		return Today
	case timefmt.SameDay(yesterday, t):
		return Yesterday
	case t.After(now.Add(-previousWindow)):
		return PreviousWeek
	default:
		return Older
	}
}

// Group partitions chats into recency buckets relative to now. Timestamps
// without an offset are read in now's location. Chats whose updated_at
// can't be parsed land in Older and sort after everything else.
func Group(chats []models.ChatSummary, now time.Time) []Bucket {
	grouped := make(map[Label][]dated, len(Order))
	for _, c := range chats {
		d := dated{chat: c}
		d.updated, d.ok = timefmt.ParseIn(c.UpdatedAt, now.Location())

		label := Older
		if d.ok {
			label = Classify(d.updated, now)
		}
		grouped[label] = append(grouped[label], d)
	}

	buckets := make([]Bucket, 0, len(Order))
	for _, label := range Order {
		items := grouped[label]
		if len(items) == 0 {
			continue
		}
		sort.SliceStable(items, func(i, j int) bool {
			return newer(items[i], items[j])
		})
		bucket := Bucket{Label: label, Chats: make([]models.ChatSummary, len(items))}
		for i, d := range items {
			bucket.Chats[i] = d.chat
		}
		buckets = append(buckets, bucket)
	}
	return buckets
}

// GroupNow groups against the current wall clock, read once
func GroupNow(chats []models.ChatSummary) []Bucket {
	return Group(chats, time.Now())
}

func newer(a, b dated) bool {
	if a.ok != b.ok {
		return a.ok
	}
	if !a.ok {
		return false
	}
	return a.updated.After(b.updated)
}
