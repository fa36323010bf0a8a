// Package scan holds the scan record entity, its nested score tree and the
// roll-up rules used for display and thresholds.
package scan

import (
	"sort"
	"time"

	"github.com/glowscan/glowscan-core/internal/domain/shared"
)

// Feedback holds the vision service's notes per domain. The core never
// interprets these strings.
type Feedback struct {
	Overall    string `json:"overall,omitempty"`
	Skin       string `json:"skin,omitempty"`
	Makeup     string `json:"makeup,omitempty"`
	Eyes       string `json:"eyes,omitempty"`
	Lips       string `json:"lips,omitempty"`
	Impression string `json:"impression,omitempty"`
}

// Record is one completed analysis. Records are immutable once created.
type Record struct {
	// ID - assigned by the record store, increasing with insertion order.
	ID int64 `json:"id"`

	// UserID - owner of the scan.
	UserID string `json:"user_id"`

	// CreatedAt - authoritative ordering key.
	CreatedAt time.Time `json:"created_at"`

	Scores   Scores   `json:"scores"`
	Feedback Feedback `json:"feedback"`
	Tips     []string `json:"tips,omitempty"`

	// ImageRef - optional external reference to the analysed image.
	ImageRef string `json:"image_ref,omitempty"`
}

// Analysis is a completed vision result that has not been bound to a user.
type Analysis struct {
	Scores   Scores   `json:"scores"`
	Feedback Feedback `json:"feedback"`
	Tips     []string `json:"tips,omitempty"`
}

// NewScan is what the ingest pipeline hands to the store: a vision result
// bound to a user, not yet persisted.
type NewScan struct {
	UserID    string
	CreatedAt time.Time
	Scores    Scores
	Feedback  Feedback
	Tips      []string
	ImageRef  string
}

// Validate checks that the scan can be persisted.
func (n NewScan) Validate() error {
	if err := shared.RequireUserID("scan", "Validate", n.UserID); err != nil {
		return err
	}
	return n.Scores.Validate()
}

// Record materialises the scan with a store-assigned id.
func (n NewScan) Record(id int64) Record {
	tips := append([]string(nil), n.Tips...)
	return Record{
		ID:        id,
		UserID:    n.UserID,
		CreatedAt: n.CreatedAt,
		Scores:    n.Scores,
		Feedback:  n.Feedback,
		Tips:      tips,
		ImageRef:  n.ImageRef,
	}
}

// SortNewestFirst orders records by CreatedAt descending; equal timestamps
// fall back to the higher id first.
func SortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})
}

// Timestamps extracts CreatedAt of every record, preserving order.
func Timestamps(records []Record) []time.Time {
	out := make([]time.Time, len(records))
	for i, r := range records {
		out[i] = r.CreatedAt
	}
	return out
}

// MaxOverall returns the highest overall score and whether any record exists.
func MaxOverall(records []Record) (float64, bool) {
	if len(records) == 0 {
		return 0, false
	}
	best := records[0].Scores.Overall
	for _, r := range records[1:] {
		if r.Scores.Overall > best {
			best = r.Scores.Overall
		}
	}
	return best, true
}
