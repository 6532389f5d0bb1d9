package telemarketing

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

func timePtr(t time.Time) *time.Time { return &t }

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return timePtr(*t)
}

func cloneProspect(p *Prospect) *Prospect {
	cp := *p
	cp.LastCalledAt = cloneTime(p.LastCalledAt)
	cp.NextCallAt = cloneTime(p.NextCallAt)
	return &cp
}

// MemoryProspectRepository keeps prospects in a map guarded by a mutex.
type MemoryProspectRepository struct {
	mu    sync.RWMutex
	items map[string]*Prospect
}

func NewMemoryProspectRepository() *MemoryProspectRepository {
	return &MemoryProspectRepository{items: map[string]*Prospect{}}
}

func (m *MemoryProspectRepository) phoneTaken(phone, exceptID string) bool {
	for id, p := range m.items {
		if id != exceptID && p.Phone == phone {
			return true
		}
	}
	return false
}

func (m *MemoryProspectRepository) Create(_ context.Context, p *Prospect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phoneTaken(p.Phone, p.ID) {
		return ErrDuplicatePhone
	}
	m.items[p.ID] = cloneProspect(p)
	return nil
}

func (m *MemoryProspectRepository) Get(_ context.Context, id string) (*Prospect, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.items[id]
	if !ok {
		return nil, ErrProspectNotFound
	}
	return cloneProspect(p), nil
}

func (m *MemoryProspectRepository) List(_ context.Context, f ProspectFilter) ([]*Prospect, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(f.Search))
	out := []*Prospect{}
	for _, p := range m.items {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Source != "" && p.Source != f.Source {
			continue
		}
		if f.Unassigned && p.AssignedTo != "" {
			continue
		}
		if !f.Unassigned && f.AssignedTo != "" && p.AssignedTo != f.AssignedTo {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) &&
			!strings.Contains(p.Phone, q) && !strings.Contains(strings.ToLower(p.Email), q) {
			continue
		}
		out = append(out, cloneProspect(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*Prospect{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryProspectRepository) Update(_ context.Context, id string, patch ProspectPatch, now time.Time) (*Prospect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, ErrProspectNotFound
	}
	if patch.Phone != nil && m.phoneTaken(*patch.Phone, id) {
		return nil, ErrDuplicatePhone
	}
	patch.apply(p)
	p.UpdatedAt = now
	return cloneProspect(p), nil
}

func (m *MemoryProspectRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return ErrProspectNotFound
	}
	if p.InCallBy != "" {
		return ErrProspectInCall
	}
	delete(m.items, id)
	return nil
}

func (m *MemoryProspectRepository) Assign(_ context.Context, ids []string, agentID string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if p, ok := m.items[id]; ok {
			p.AssignedTo = agentID
			p.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (m *MemoryProspectRepository) Callable(_ context.Context, q QueueQuery) ([]*Prospect, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Prospect{}
	for _, p := range m.items {
		if q.Matches(p) {
			out = append(out, cloneProspect(p))
		}
	}
	return out, nil
}

func (m *MemoryProspectRepository) Claim(_ context.Context, id, agentID string, maxAttempts int, now time.Time) (*Prospect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, ErrProspectNotFound
	}
	if p.InCallBy != "" || (p.AssignedTo != "" && p.AssignedTo != agentID) || p.CallAttempts >= maxAttempts {
		return nil, ErrNotCallable
	}
	p.InCallBy = agentID
	p.CallAttempts++
	p.LastCalledAt = timePtr(now)
	p.UpdatedAt = now
	return cloneProspect(p), nil
}

func (m *MemoryProspectRepository) Release(_ context.Context, id string, undo *ClaimUndo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil
	}
	p.InCallBy = ""
	if undo != nil {
		if p.CallAttempts > 0 {
			p.CallAttempts--
		}
		p.LastCalledAt = cloneTime(undo.LastCalledAt)
	}
	return nil
}

func (m *MemoryProspectRepository) RenameStatus(_ context.Context, from, to string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.items {
		changed := false
		if p.Status == from {
			p.Status = to
			changed = true
		}
		if p.LastDisposition == from {
			p.LastDisposition = to
			changed = true
		}
		if changed {
			n++
		}
	}
	return n, nil
}

func (m *MemoryProspectRepository) RenameSource(_ context.Context, from, to string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.items {
		if p.Source == from {
			p.Source = to
			n++
		}
	}
	return n, nil
}

func cloneSession(s *CallSession) *CallSession {
	cp := *s
	cp.EndedAt = cloneTime(s.EndedAt)
	cp.Breaks = make([]Break, len(s.Breaks))
	for i, b := range s.Breaks {
		cp.Breaks[i] = b
		cp.Breaks[i].EndedAt = cloneTime(b.EndedAt)
	}
	return &cp
}

type MemorySessionRepository struct {
	mu    sync.RWMutex
	items map[string]*CallSession
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{items: map[string]*CallSession{}}
}

func (m *MemorySessionRepository) Create(_ context.Context, s *CallSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.items {
		if ex.OpenFor != "" && ex.OpenFor == s.OpenFor {
			return ErrSessionActive
		}
	}
	m.items[s.ID] = cloneSession(s)
	return nil
}

func (m *MemorySessionRepository) Get(_ context.Context, id string) (*CallSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.items[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (m *MemorySessionRepository) OpenByAgent(_ context.Context, agentID string) (*CallSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.items {
		if s.AgentID == agentID && s.Status != SessionEnded {
			return cloneSession(s), nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *MemorySessionRepository) Update(_ context.Context, s *CallSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[s.ID]; !ok {
		return ErrSessionNotFound
	}
	m.items[s.ID] = cloneSession(s)
	return nil
}

func (m *MemorySessionRepository) List(_ context.Context, f SessionFilter) ([]*CallSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*CallSession{}
	for _, s := range m.items {
		if f.AgentID != "" && s.AgentID != f.AgentID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && s.StartedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !s.StartedAt.Before(f.To) {
			continue
		}
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func cloneLog(l *CallLog) *CallLog {
	cp := *l
	cp.EndedAt = cloneTime(l.EndedAt)
	cp.CallbackAt = cloneTime(l.CallbackAt)
	return &cp
}

type MemoryCallLogRepository struct {
	mu    sync.RWMutex
	items map[string]*CallLog
}

func NewMemoryCallLogRepository() *MemoryCallLogRepository {
	return &MemoryCallLogRepository{items: map[string]*CallLog{}}
}

func (m *MemoryCallLogRepository) Create(_ context.Context, l *CallLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[l.ID] = cloneLog(l)
	return nil
}

func (m *MemoryCallLogRepository) Get(_ context.Context, id string) (*CallLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.items[id]
	if !ok {
		return nil, ErrCallLogNotFound
	}
	return cloneLog(l), nil
}

func (m *MemoryCallLogRepository) Update(_ context.Context, l *CallLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[l.ID]; !ok {
		return ErrCallLogNotFound
	}
	m.items[l.ID] = cloneLog(l)
	return nil
}

func (m *MemoryCallLogRepository) List(_ context.Context, f CallLogFilter) ([]*CallLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*CallLog{}
	for _, l := range m.items {
		if f.matches(l) {
			out = append(out, cloneLog(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

type MemorySettingsRepository struct {
	mu       sync.RWMutex
	settings *Settings
}

func NewMemorySettingsRepository() *MemorySettingsRepository {
	return &MemorySettingsRepository{}
}

func cloneSettings(s *Settings) *Settings {
	cp := *s
	cp.Statuses = append([]ProspectStatus(nil), s.Statuses...)
	cp.Sources = append([]ProspectSource(nil), s.Sources...)
	return &cp
}

func (m *MemorySettingsRepository) Get(_ context.Context) (*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return nil, ErrSettingsNotFound
	}
	return cloneSettings(m.settings), nil
}

func (m *MemorySettingsRepository) Save(_ context.Context, s *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = cloneSettings(s)
	return nil
}
