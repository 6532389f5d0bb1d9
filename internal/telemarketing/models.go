// Package telemarketing runs the call floor: prospects, configurable
// statuses, agent call sessions and the call log.
package telemarketing

import (
	"strings"
	"time"
)

// ProspectStatus is a configurable pipeline stage.
// Callable stages are eligible for the queue; Contacted ones count as a
// connected call; Final ones end the prospect's journey.
type ProspectStatus struct {
	Name      string `json:"name" bson:"name"`
	Color     string `json:"color,omitempty" bson:"color,omitempty"`
	Callable  bool   `json:"callable" bson:"callable"`
	Contacted bool   `json:"contacted" bson:"contacted"`
	Final     bool   `json:"final" bson:"final"`
}

type ProspectSource struct {
	Name string `json:"name" bson:"name"`
}

// Settings is the single telemarketing configuration document.
type Settings struct {
	ID                   string           `json:"id" bson:"_id"`
	Statuses             []ProspectStatus `json:"statuses" bson:"statuses"`
	Sources              []ProspectSource `json:"sources" bson:"sources"`
	DefaultStatus        string           `json:"defaultStatus" bson:"defaultStatus"`
	MaxCallAttempts      int              `json:"maxCallAttempts" bson:"maxCallAttempts"`
	AutoNextCall         bool             `json:"autoNextCall" bson:"autoNextCall"`
	AutoNextDelaySeconds int              `json:"autoNextDelaySeconds" bson:"autoNextDelaySeconds"`
	MaxBreakMinutes      int              `json:"maxBreakMinutes" bson:"maxBreakMinutes"`
	DailyCallTarget      int              `json:"dailyCallTarget" bson:"dailyCallTarget"`
	UpdatedAt            time.Time        `json:"updatedAt" bson:"updatedAt"`
}

func (s *Settings) Status(name string) (ProspectStatus, bool) {
	for _, st := range s.Statuses {
		if st.Name == name {
			return st, true
		}
	}
	return ProspectStatus{}, false
}

func (s *Settings) HasSource(name string) bool {
	for _, src := range s.Sources {
		if src.Name == name {
			return true
		}
	}
	return false
}

// QueueStatuses lists the statuses whose prospects may be dialed.
func (s *Settings) QueueStatuses() []string {
	out := []string{}
	for _, st := range s.Statuses {
		if st.Callable && !st.Final {
			out = append(out, st.Name)
		}
	}
	return out
}

type Prospect struct {
	ID              string     `json:"id" bson:"_id"`
	Name            string     `json:"name" bson:"name"`
	Phone           string     `json:"phone" bson:"phone"`
	Email           string     `json:"email,omitempty" bson:"email,omitempty"`
	Status          string     `json:"status" bson:"status"`
	Source          string     `json:"source,omitempty" bson:"source,omitempty"`
	AssignedTo      string     `json:"assignedTo,omitempty" bson:"assignedTo,omitempty"`
	Notes           string     `json:"notes,omitempty" bson:"notes,omitempty"`
	CallAttempts    int        `json:"callAttempts" bson:"callAttempts"`
	LastCalledAt    *time.Time `json:"lastCalledAt,omitempty" bson:"lastCalledAt,omitempty"`
	LastDisposition string     `json:"lastDisposition,omitempty" bson:"lastDisposition,omitempty"`
	NextCallAt      *time.Time `json:"nextCallAt,omitempty" bson:"nextCallAt,omitempty"`
	// InCallBy holds the agent currently on the phone with the prospect.
	InCallBy  string    `json:"inCallBy,omitempty" bson:"inCallBy,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// ProspectFilter narrows prospect listings. Unassigned selects prospects
// with no agent and wins over AssignedTo.
type ProspectFilter struct {
	Status     string
	Source     string
	AssignedTo string
	Unassigned bool
	Search     string
	Limit      int
	Offset     int
}

// ProspectPatch is a partial update; nil fields are untouched. A zero
// NextCallAt clears the callback. Claim state is never part of a patch.
type ProspectPatch struct {
	Name       *string    `json:"name,omitempty"`
	Phone      *string    `json:"phone,omitempty"`
	Email      *string    `json:"email,omitempty"`
	Status     *string    `json:"status,omitempty"`
	Source     *string    `json:"source,omitempty"`
	AssignedTo *string    `json:"assignedTo,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
	NextCallAt *time.Time `json:"nextCallAt,omitempty"`
	// LastDisposition is set by the engine only.
	LastDisposition *string `json:"-"`
}

func (pp ProspectPatch) apply(p *Prospect) {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Phone != nil {
		p.Phone = *pp.Phone
	}
	if pp.Email != nil {
		p.Email = *pp.Email
	}
	if pp.Status != nil {
		p.Status = *pp.Status
	}
	if pp.Source != nil {
		p.Source = strings.TrimSpace(*pp.Source)
	}
	if pp.AssignedTo != nil {
		p.AssignedTo = strings.TrimSpace(*pp.AssignedTo)
	}
	if pp.Notes != nil {
		p.Notes = *pp.Notes
	}
	if pp.LastDisposition != nil {
		p.LastDisposition = *pp.LastDisposition
	}
	if pp.NextCallAt != nil {
		if pp.NextCallAt.IsZero() {
			p.NextCallAt = nil
		} else {
			p.NextCallAt = timePtr(pp.NextCallAt.UTC())
		}
	}
}

// normalized returns a patch touching the same fields as pp, carrying the
// values p holds after normalization.
func (pp ProspectPatch) normalized(p *Prospect) ProspectPatch {
	out := ProspectPatch{}
	pick := func(set *string, v string) *string {
		if set == nil {
			return nil
		}
		return &v
	}
	out.Name = pick(pp.Name, p.Name)
	out.Phone = pick(pp.Phone, p.Phone)
	out.Email = pick(pp.Email, p.Email)
	out.Status = pick(pp.Status, p.Status)
	out.Source = pick(pp.Source, p.Source)
	out.AssignedTo = pick(pp.AssignedTo, p.AssignedTo)
	out.Notes = pick(pp.Notes, p.Notes)
	out.LastDisposition = pick(pp.LastDisposition, p.LastDisposition)
	if pp.NextCallAt != nil {
		out.NextCallAt = &time.Time{}
		if p.NextCallAt != nil {
			out.NextCallAt = timePtr(*p.NextCallAt)
		}
	}
	return out
}

// Session states.
const (
	SessionActive  = "active"
	SessionOnBreak = "on_break"
	SessionEnded   = "ended"
)

type Break struct {
	StartedAt time.Time  `json:"startedAt" bson:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
	Overrun   bool       `json:"overrun" bson:"overrun"`
}

// CallSession is one agent shift on the call floor.
type CallSession struct {
	ID                string     `json:"id" bson:"_id"`
	AgentID           string     `json:"agentId" bson:"agentId"`
	Status            string     `json:"status" bson:"status"`
	StartedAt         time.Time  `json:"startedAt" bson:"startedAt"`
	EndedAt           *time.Time `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
	Breaks            []Break    `json:"breaks" bson:"breaks"`
	CallsMade         int        `json:"callsMade" bson:"callsMade"`
	CallsConnected    int        `json:"callsConnected" bson:"callsConnected"`
	CurrentProspectID string     `json:"currentProspectId,omitempty" bson:"currentProspectId,omitempty"`
	CurrentCallID     string     `json:"currentCallId,omitempty" bson:"currentCallId,omitempty"`
	// OpenFor carries the agent id until the session ends; a sparse unique
	// index on it keeps one open session per agent.
	OpenFor   string    `json:"-" bson:"openFor,omitempty"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (s *CallSession) openBreak() *Break {
	if n := len(s.Breaks); n > 0 && s.Breaks[n-1].EndedAt == nil {
		return &s.Breaks[n-1]
	}
	return nil
}

type CallLog struct {
	ID              string     `json:"id" bson:"_id"`
	SessionID       string     `json:"sessionId" bson:"sessionId"`
	AgentID         string     `json:"agentId" bson:"agentId"`
	ProspectID      string     `json:"prospectId" bson:"prospectId"`
	ProspectName    string     `json:"prospectName,omitempty" bson:"prospectName,omitempty"`
	Phone           string     `json:"phone" bson:"phone"`
	StartedAt       time.Time  `json:"startedAt" bson:"startedAt"`
	EndedAt         *time.Time `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
	DurationSeconds int        `json:"durationSeconds" bson:"durationSeconds"`
	Disposition     string     `json:"disposition,omitempty" bson:"disposition,omitempty"`
	PreviousStatus  string     `json:"previousStatus,omitempty" bson:"previousStatus,omitempty"`
	Notes           string     `json:"notes,omitempty" bson:"notes,omitempty"`
	CallbackAt      *time.Time `json:"callbackAt,omitempty" bson:"callbackAt,omitempty"`
}

// CallLogFilter narrows call log listings. Zero values are ignored.
type CallLogFilter struct {
	SessionID  string
	AgentID    string
	ProspectID string
	From       time.Time
	To         time.Time
	Limit      int
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
