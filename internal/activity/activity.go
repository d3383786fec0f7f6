// Package activity defines the Activity record: a timed unit of citizen
// behaviour created by the scheduler and concluded by the resolver.
package activity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/serenissima/internal/world"
)

// ResourceAmount is one line of an activity's goods payload.
type ResourceAmount struct {
	ResourceID string  `json:"ResourceId"`
	Amount     float64 `json:"Amount"`
}

// Activity is what one citizen is doing between StartDate and EndDate.
type Activity struct {
	ActivityID   string            `json:"activity_id"`
	Type         Type              `json:"type"`
	Citizen      string            `json:"citizen"`
	FromBuilding string            `json:"from_building,omitempty"`
	ToBuilding   string            `json:"to_building,omitempty"`
	ContractID   string            `json:"contract_id,omitempty"`
	Resources    []ResourceAmount  `json:"resources,omitempty"`
	Path         []world.PathPoint `json:"path,omitempty"`
	Transporter  string            `json:"transporter,omitempty"`
	StartDate    time.Time         `json:"start_date"`
	EndDate      time.Time         `json:"end_date"`
	Status       Status            `json:"status"`
	Notes        string            `json:"notes,omitempty"`
	Details      Details           `json:"-"`
	CreatedAt    time.Time         `json:"created_at"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty"`
}

// New creates an activity in the created state with a fresh id.
func New(t Type, citizen string, start, end time.Time) *Activity {
	return &Activity{
		ActivityID: uuid.NewString(),
		Type:       t,
		Citizen:    citizen,
		StartDate:  start,
		EndDate:    end,
		Status:     StatusCreated,
		CreatedAt:  start,
	}
}

// IsActive reports whether the activity occupies its citizen at now.
func (a *Activity) IsActive(now time.Time) bool {
	return a.Status == StatusCreated && !now.Before(a.StartDate) && now.Before(a.EndDate)
}

// IsConcluded reports whether the activity has ended and awaits resolution.
func (a *Activity) IsConcluded(now time.Time) bool {
	return a.Status == StatusCreated && !now.Before(a.EndDate)
}

// Destination returns the last point of the path, if any.
func (a *Activity) Destination() (world.Position, bool) {
	if len(a.Path) == 0 {
		return world.Position{}, false
	}
	return a.Path[len(a.Path)-1].Position(), true
}

// Duration is the planned length of the activity.
func (a *Activity) Duration() time.Duration {
	return a.EndDate.Sub(a.StartDate)
}

// AddNote appends a line to the free-text notes.
func (a *Activity) AddNote(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if a.Notes == "" {
		a.Notes = line
		return
	}
	a.Notes += "; " + line
}

// ResourceAmount returns the requested amount of one resource type.
func (a *Activity) ResourceAmount(resourceID string) float64 {
	total := 0.0
	for _, r := range a.Resources {
		if r.ResourceID == resourceID {
			total += r.Amount
		}
	}
	return total
}

type activityJSON Activity

type activityWire struct {
	*activityJSON
	Details json.RawMessage `json:"details,omitempty"`
}

// MarshalJSON writes the activity with its tagged details payload.
func (a Activity) MarshalJSON() ([]byte, error) {
	d, err := EncodeDetails(a.Details)
	if err != nil {
		return nil, err
	}
	aj := activityJSON(a)
	return json.Marshal(activityWire{activityJSON: &aj, Details: d})
}

// UnmarshalJSON reads an activity written by MarshalJSON.
func (a *Activity) UnmarshalJSON(b []byte) error {
	w := activityWire{activityJSON: (*activityJSON)(a)}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	d, err := DecodeDetails(w.Details)
	if err != nil {
		return err
	}
	a.Details = d
	return nil
}
