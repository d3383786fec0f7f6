// Package social tracks relationships between citizens and the messages the
// engine leaves for them.
package social

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultMaxNotes bounds the per-relationship interaction log.
const DefaultMaxNotes = 20

// Relationship is the bond between an unordered pair of citizens, stored with
// Citizen1 < Citizen2.
type Relationship struct {
	Citizen1        string    `json:"citizen1" db:"citizen1"`
	Citizen2        string    `json:"citizen2" db:"citizen2"`
	TrustScore      float64   `json:"trust_score" db:"trust_score"`
	StrengthScore   float64   `json:"strength_score" db:"strength_score"`
	LastInteraction time.Time `json:"last_interaction" db:"last_interaction"`
	Notes           []string  `json:"notes" db:"-"`
}

// Pair orders two usernames the way relationships are keyed.
func Pair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// RelationshipStore is the slice of the world store the ledger needs.
// Relationship returns nil, nil when the pair has never interacted.
type RelationshipStore interface {
	Relationship(ctx context.Context, a, b string) (*Relationship, error)
	SaveRelationship(ctx context.Context, r *Relationship) error
}

// TrustLedger records the effect of interactions on trust.
type TrustLedger struct {
	MaxNotes int
}

// NewTrustLedger returns a ledger with the default note bound.
func NewTrustLedger() *TrustLedger {
	return &TrustLedger{MaxNotes: DefaultMaxNotes}
}

// Adjust adds delta to the pair's trust score, creating the relationship with
// TrustScore=delta if absent, stamps the interaction time, and appends reason
// to the bounded note log.
func (l *TrustLedger) Adjust(ctx context.Context, store RelationshipStore, a, b string, delta float64, reason string, now time.Time) error {
	if a == "" || b == "" {
		return fmt.Errorf("trust adjust: empty citizen (%q, %q)", a, b)
	}
	if a == b {
		return nil
	}
	c1, c2 := Pair(a, b)

	rel, err := store.Relationship(ctx, c1, c2)
	if err != nil {
		return fmt.Errorf("load relationship %s/%s: %w", c1, c2, err)
	}
	if rel == nil {
		rel = &Relationship{Citizen1: c1, Citizen2: c2}
	}
	rel.TrustScore += delta
	rel.LastInteraction = now
	rel.Notes = append(rel.Notes, fmt.Sprintf("%s %+.2f %s", now.UTC().Format(time.RFC3339), delta, reason))

	max := l.MaxNotes
	if max <= 0 {
		max = DefaultMaxNotes
	}
	if len(rel.Notes) > max {
		rel.Notes = append([]string(nil), rel.Notes[len(rel.Notes)-max:]...)
	}

	if err := store.SaveRelationship(ctx, rel); err != nil {
		return fmt.Errorf("save relationship %s/%s: %w", c1, c2, err)
	}
	slog.Debug("trust adjusted", "a", c1, "b", c2, "delta", delta, "trust", rel.TrustScore, "reason", reason)
	return nil
}
