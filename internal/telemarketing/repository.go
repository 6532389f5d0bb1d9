package telemarketing

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"
)

var (
	ErrProspectNotFound = errors.New("prospect not found")
	ErrDuplicatePhone   = errors.New("a prospect with this phone already exists")
	ErrNotCallable      = errors.New("prospect is not callable")
	ErrSessionNotFound  = errors.New("call session not found")
	ErrSessionActive    = errors.New("agent already has an open call session")
	ErrCallLogNotFound  = errors.New("call log not found")
)

// QueueQuery selects the prospects an agent may dial now.
type QueueQuery struct {
	AgentID     string
	Statuses    []string
	MaxAttempts int
	Now         time.Time
}

// Matches reports whether p is dialable: assigned to the agent or nobody,
// not on another call, in a callable non-final status, under the attempt
// limit, and with no callback scheduled in the future.
func (q QueueQuery) Matches(p *Prospect) bool {
	if p.AssignedTo != "" && p.AssignedTo != q.AgentID {
		return false
	}
	if p.InCallBy != "" {
		return false
	}
	if !slices.Contains(q.Statuses, p.Status) {
		return false
	}
	if p.CallAttempts >= q.MaxAttempts {
		return false
	}
	return p.NextCallAt == nil || !p.NextCallAt.After(q.Now)
}

func queueRank(p *Prospect) int {
	switch {
	case p.NextCallAt != nil:
		return 0
	case p.LastCalledAt == nil:
		return 1
	default:
		return 2
	}
}

// SortQueue orders prospects for dialing: due callbacks (oldest first), then
// never-called prospects, then the least recently called. Ties go to the
// oldest prospect.
func SortQueue(ps []*Prospect) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		ra, rb := queueRank(a), queueRank(b)
		if ra != rb {
			return ra < rb
		}
		switch ra {
		case 0:
			if !a.NextCallAt.Equal(*b.NextCallAt) {
				return a.NextCallAt.Before(*b.NextCallAt)
			}
		case 2:
			if !a.LastCalledAt.Equal(*b.LastCalledAt) {
				return a.LastCalledAt.Before(*b.LastCalledAt)
			}
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// ClaimUndo carries what a claim overwrote.
type ClaimUndo struct {
	LastCalledAt *time.Time
}

type ProspectRepository interface {
	Create(ctx context.Context, p *Prospect) error
	Get(ctx context.Context, id string) (*Prospect, error)
	List(ctx context.Context, f ProspectFilter) ([]*Prospect, error)
	// Update writes only the fields set in the patch and returns the
	// stored prospect. Claim state is left alone.
	Update(ctx context.Context, id string, patch ProspectPatch, now time.Time) (*Prospect, error)
	// Delete fails with ErrProspectInCall while an agent is dialing the prospect.
	Delete(ctx context.Context, id string) error
	// Assign sets (or clears, with an empty agent) the owner of the given prospects.
	Assign(ctx context.Context, ids []string, agentID string, now time.Time) (int64, error)
	// Callable returns unordered queue candidates.
	Callable(ctx context.Context, q QueueQuery) ([]*Prospect, error)
	// Claim atomically marks a prospect as being dialed by agentID and counts
	// the attempt. It fails with ErrNotCallable when another agent owns or is
	// dialing it, or the attempt limit is reached.
	Claim(ctx context.Context, id, agentID string, maxAttempts int, now time.Time) (*Prospect, error)
	// Release clears the in-call marker. A non-nil undo also takes back the
	// attempt counted by Claim, for calls that were never placed.
	Release(ctx context.Context, id string, undo *ClaimUndo) error
	RenameStatus(ctx context.Context, from, to string) (int64, error)
	RenameSource(ctx context.Context, from, to string) (int64, error)
}

// SessionFilter narrows session listings. Zero values are ignored.
type SessionFilter struct {
	AgentID string
	Status  string
	From    time.Time
	To      time.Time
	Limit   int
}

type SessionRepository interface {
	// Create fails with ErrSessionActive when the agent has an open session.
	Create(ctx context.Context, s *CallSession) error
	Get(ctx context.Context, id string) (*CallSession, error)
	// OpenByAgent returns the agent's non-ended session or ErrSessionNotFound.
	OpenByAgent(ctx context.Context, agentID string) (*CallSession, error)
	Update(ctx context.Context, s *CallSession) error
	List(ctx context.Context, f SessionFilter) ([]*CallSession, error)
}

type CallLogRepository interface {
	Create(ctx context.Context, l *CallLog) error
	Get(ctx context.Context, id string) (*CallLog, error)
	Update(ctx context.Context, l *CallLog) error
	// List returns logs newest first.
	List(ctx context.Context, f CallLogFilter) ([]*CallLog, error)
}

func (f CallLogFilter) matches(l *CallLog) bool {
	if f.SessionID != "" && l.SessionID != f.SessionID {
		return false
	}
	if f.AgentID != "" && l.AgentID != f.AgentID {
		return false
	}
	if f.ProspectID != "" && l.ProspectID != f.ProspectID {
		return false
	}
	if !f.From.IsZero() && l.StartedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !l.StartedAt.Before(f.To) {
		return false
	}
	return true
}
