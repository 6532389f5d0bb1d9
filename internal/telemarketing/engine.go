package telemarketing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/debtdesk/backoffice/pkg/logger"
	"github.com/debtdesk/backoffice/pkg/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrSessionEnded    = errors.New("call session has ended")
	ErrOnBreak         = errors.New("agent is on break")
	ErrNotOnBreak      = errors.New("agent is not on break")
	ErrCallInProgress  = errors.New("a call is already in progress")
	ErrNoActiveCall    = errors.New("no call in progress")
	ErrNoProspects     = errors.New("no prospects left in the queue")
	ErrNotSessionOwner = errors.New("call session belongs to another agent")
	ErrInvalidCallback = errors.New("callback time must be in the future")
	ErrNoAgent         = errors.New("agent is required")
)

// queue candidates fetched per round when other agents claim the head first
const claimCandidates = 5

// Disposition closes the current call.
type Disposition struct {
	Status     string     `json:"status" binding:"required"`
	Notes      string     `json:"notes"`
	CallbackAt *time.Time `json:"callbackAt"`
}

// DispositionResult reports the closed call and, with auto-next on, the call
// that was started right after it.
type DispositionResult struct {
	Session        *CallSession `json:"session"`
	Log            *CallLog     `json:"log"`
	Prospect       *Prospect    `json:"prospect"`
	Next           *CallLog     `json:"next,omitempty"`
	NextInSeconds  int          `json:"nextInSeconds,omitempty"`
	QueueExhausted bool         `json:"queueExhausted,omitempty"`
}

// EngineOptions wires the engine. Redis and LockTTL are optional.
type EngineOptions struct {
	Sessions  SessionRepository
	Logs      CallLogRepository
	Prospects ProspectRepository
	Settings  *SettingsService
	Queue     *ProspectService
	Redis     *redis.Client
	LockTTL   time.Duration
}

// Engine drives agent call sessions. Every transition of a session runs
// under that session's lock, so a disposition and its auto-advance happen
// exactly once even when requests race.
type Engine struct {
	sessions  SessionRepository
	logs      CallLogRepository
	prospects ProspectRepository
	settings  *SettingsService
	queue     *ProspectService
	locker    *sessionLocker
	now       func() time.Time
}

func NewEngine(o EngineOptions) *Engine {
	return &Engine{
		sessions:  o.Sessions,
		logs:      o.Logs,
		prospects: o.Prospects,
		settings:  o.Settings,
		queue:     o.Queue,
		locker:    newSessionLocker(o.Redis, o.LockTTL),
		now:       time.Now,
	}
}

func (e *Engine) clock() time.Time { return e.now().UTC() }

// withSession loads a session under its lock, checks ownership and hands it to fn.
func (e *Engine) withSession(ctx context.Context, sessionID, agentID string, fn func(*CallSession) error) error {
	release, err := e.locker.acquire(ctx, "call_session:"+sessionID)
	if err != nil {
		return err
	}
	defer release()
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if agentID != "" && sess.AgentID != agentID {
		return ErrNotSessionOwner
	}
	return fn(sess)
}

func (e *Engine) save(ctx context.Context, sess *CallSession) error {
	sess.UpdatedAt = e.clock()
	return e.sessions.Update(ctx, sess)
}

func requireActive(sess *CallSession) error {
	switch sess.Status {
	case SessionEnded:
		return ErrSessionEnded
	case SessionOnBreak:
		return ErrOnBreak
	}
	return nil
}

// StartSession opens a call session for the agent.
func (e *Engine) StartSession(ctx context.Context, agentID string) (*CallSession, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, ErrNoAgent
	}
	release, err := e.locker.acquire(ctx, "call_agent:"+agentID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := e.sessions.OpenByAgent(ctx, agentID); err == nil {
		return nil, ErrSessionActive
	} else if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	now := e.clock()
	sess := &CallSession{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Status:    SessionActive,
		StartedAt: now,
		Breaks:    []Break{},
		OpenFor:   agentID,
		UpdatedAt: now,
	}
	if err := e.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	metrics.SessionTransitions.WithLabelValues("start").Inc()
	logger.WithFields(logger.Fields{"session": sess.ID, "agent": agentID}).Info("call session started")
	return sess, nil
}

// ActiveSession returns the agent's open session.
func (e *Engine) ActiveSession(ctx context.Context, agentID string) (*CallSession, error) {
	return e.sessions.OpenByAgent(ctx, agentID)
}

func (e *Engine) GetSession(ctx context.Context, id string) (*CallSession, error) {
	return e.sessions.Get(ctx, id)
}

func (e *Engine) ListSessions(ctx context.Context, f SessionFilter) ([]*CallSession, error) {
	return e.sessions.List(ctx, f)
}

// Queue previews the agent's call queue.
func (e *Engine) Queue(ctx context.Context, agentID string, limit int) ([]*Prospect, error) {
	return e.queue.Queue(ctx, agentID, limit)
}

// StartCall dials prospectID, or the head of the queue when it is empty.
func (e *Engine) StartCall(ctx context.Context, sessionID, agentID, prospectID string) (*CallLog, error) {
	var log *CallLog
	err := e.withSession(ctx, sessionID, agentID, func(sess *CallSession) error {
		if err := requireActive(sess); err != nil {
			return err
		}
		if sess.CurrentCallID != "" {
			return ErrCallInProgress
		}
		st, err := e.settings.Get(ctx)
		if err != nil {
			return err
		}
		trigger := "manual"
		if prospectID == "" {
			trigger = "queue"
		}
		log, err = e.dial(ctx, sess, st, prospectID, trigger)
		return err
	})
	return log, err
}

// SkipToNext starts a call with the next prospect in the queue.
func (e *Engine) SkipToNext(ctx context.Context, sessionID, agentID string) (*CallLog, error) {
	var log *CallLog
	err := e.withSession(ctx, sessionID, agentID, func(sess *CallSession) error {
		if err := requireActive(sess); err != nil {
			return err
		}
		if sess.CurrentCallID != "" {
			return ErrCallInProgress
		}
		st, err := e.settings.Get(ctx)
		if err != nil {
			return err
		}
		log, err = e.dial(ctx, sess, st, "", "skip")
		return err
	})
	return log, err
}

// dial claims a prospect, opens its call log and marks it current on the
// session. The caller holds the session lock.
func (e *Engine) dial(ctx context.Context, sess *CallSession, st *Settings, prospectID, trigger string) (*CallLog, error) {
	now := e.clock()
	var (
		p    *Prospect
		undo *ClaimUndo
		err  error
	)
	if prospectID != "" {
		p, undo, err = e.claimChosen(ctx, sess.AgentID, st, prospectID, now)
	} else {
		p, undo, err = e.claimFromQueue(ctx, sess.AgentID, st, now)
	}
	if err != nil {
		return nil, err
	}

	log := &CallLog{
		ID:             uuid.NewString(),
		SessionID:      sess.ID,
		AgentID:        sess.AgentID,
		ProspectID:     p.ID,
		ProspectName:   p.Name,
		Phone:          p.Phone,
		StartedAt:      now,
		PreviousStatus: p.Status,
	}
	if err := e.logs.Create(ctx, log); err != nil {
		e.release(ctx, p.ID, undo)
		return nil, fmt.Errorf("create call log: %w", err)
	}
	sess.CallsMade++
	sess.CurrentProspectID = p.ID
	sess.CurrentCallID = log.ID
	if err := e.save(ctx, sess); err != nil {
		e.release(ctx, p.ID, undo)
		return nil, err
	}
	metrics.CallsStarted.WithLabelValues(trigger).Inc()
	return log, nil
}

// claimChosen dials a specific prospect. A scheduled callback does not block
// an agent who picks the prospect by hand.
func (e *Engine) claimChosen(ctx context.Context, agentID string, st *Settings, id string, now time.Time) (*Prospect, *ClaimUndo, error) {
	p, err := e.prospects.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	status, ok := st.Status(p.Status)
	if !ok || !status.Callable || status.Final {
		return nil, nil, fmt.Errorf("%w: status %q", ErrNotCallable, p.Status)
	}
	claimed, err := e.prospects.Claim(ctx, id, agentID, st.MaxCallAttempts, now)
	if err != nil {
		return nil, nil, err
	}
	return claimed, &ClaimUndo{LastCalledAt: p.LastCalledAt}, nil
}

// claimFromQueue walks the queue until a claim succeeds. Prospects lost to
// other agents drop out of later rounds; it gives up once a round brings no
// prospect it has not tried.
func (e *Engine) claimFromQueue(ctx context.Context, agentID string, st *Settings, now time.Time) (*Prospect, *ClaimUndo, error) {
	tried := map[string]bool{}
	for {
		candidates, err := e.queue.queue(ctx, st, agentID, len(tried)+claimCandidates, now)
		if err != nil {
			return nil, nil, err
		}
		fresh := 0
		for _, c := range candidates {
			if tried[c.ID] {
				continue
			}
			tried[c.ID] = true
			fresh++
			p, err := e.prospects.Claim(ctx, c.ID, agentID, st.MaxCallAttempts, now)
			if errors.Is(err, ErrNotCallable) || errors.Is(err, ErrProspectNotFound) {
				continue
			}
			if err != nil {
				return nil, nil, err
			}
			return p, &ClaimUndo{LastCalledAt: c.LastCalledAt}, nil
		}
		if fresh == 0 {
			return nil, nil, ErrNoProspects
		}
	}
}

func (e *Engine) release(ctx context.Context, prospectID string, undo *ClaimUndo) {
	if err := e.prospects.Release(ctx, prospectID, undo); err != nil {
		logger.Errorf("release prospect %s: %v", prospectID, err)
	}
}

// RecordDisposition closes the current call with a status. With auto-next
// enabled the next call is started in the same transition.
func (e *Engine) RecordDisposition(ctx context.Context, sessionID, agentID string, d Disposition) (*DispositionResult, error) {
	var res *DispositionResult
	err := e.withSession(ctx, sessionID, agentID, func(sess *CallSession) error {
		if sess.Status == SessionEnded {
			return ErrSessionEnded
		}
		if sess.CurrentCallID == "" {
			return ErrNoActiveCall
		}
		st, err := e.settings.Get(ctx)
		if err != nil {
			return err
		}
		status, ok := st.Status(d.Status)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownStatus, d.Status)
		}
		now := e.clock()
		if d.CallbackAt != nil && !d.CallbackAt.After(now) {
			return ErrInvalidCallback
		}

		log, err := e.logs.Get(ctx, sess.CurrentCallID)
		if err != nil {
			return err
		}
		log.EndedAt = timePtr(now)
		log.DurationSeconds = int(now.Sub(log.StartedAt).Seconds())
		log.Disposition = status.Name
		log.Notes = d.Notes
		if d.CallbackAt != nil {
			log.CallbackAt = timePtr(d.CallbackAt.UTC())
		}
		if err := e.logs.Update(ctx, log); err != nil {
			return err
		}

		// The prospect may have been removed mid-call; the call still closes.
		outcome := ProspectPatch{Status: &status.Name, LastDisposition: &status.Name, NextCallAt: &time.Time{}}
		if strings.TrimSpace(d.Notes) != "" {
			outcome.Notes = &d.Notes
		}
		if d.CallbackAt != nil {
			outcome.NextCallAt = timePtr(d.CallbackAt.UTC())
		}
		p, err := e.prospects.Update(ctx, log.ProspectID, outcome, now)
		switch {
		case errors.Is(err, ErrProspectNotFound):
			p = nil
			logger.Warnf("prospect %s of call %s no longer exists", log.ProspectID, log.ID)
		case err != nil:
			return err
		default:
			if err := e.prospects.Release(ctx, p.ID, nil); err != nil {
				return err
			}
			p.InCallBy = ""
		}

		if status.Contacted {
			sess.CallsConnected++
		}
		sess.CurrentCallID = ""
		sess.CurrentProspectID = ""
		if err := e.save(ctx, sess); err != nil {
			return err
		}
		metrics.Dispositions.WithLabelValues(status.Name).Inc()
		metrics.CallDuration.Observe(float64(log.DurationSeconds))

		res = &DispositionResult{Session: sess, Log: log, Prospect: p}
		if !st.AutoNextCall || sess.Status != SessionActive {
			return nil
		}
		next, err := e.dial(ctx, sess, st, "", "auto")
		switch {
		case errors.Is(err, ErrNoProspects):
			res.QueueExhausted = true
		case err != nil:
			logger.Warnf("auto-next for session %s failed: %v", sess.ID, err)
		default:
			res.Next = next
			res.NextInSeconds = st.AutoNextDelaySeconds
		}
		return nil
	})
	return res, err
}

// StartBreak pauses the session. Not allowed during a call.
func (e *Engine) StartBreak(ctx context.Context, sessionID, agentID string) (*CallSession, error) {
	var out *CallSession
	err := e.withSession(ctx, sessionID, agentID, func(sess *CallSession) error {
		if err := requireActive(sess); err != nil {
			return err
		}
		if sess.CurrentCallID != "" {
			return ErrCallInProgress
		}
		sess.Breaks = append(sess.Breaks, Break{StartedAt: e.clock()})
		sess.Status = SessionOnBreak
		if err := e.save(ctx, sess); err != nil {
			return err
		}
		metrics.SessionTransitions.WithLabelValues("break_start").Inc()
		out = sess
		return nil
	})
	return out, err
}

// EndBreak resumes the session and flags the break when it ran past the limit.
func (e *Engine) EndBreak(ctx context.Context, sessionID, agentID string) (*CallSession, error) {
	var out *CallSession
	err := e.withSession(ctx, sessionID, agentID, func(sess *CallSession) error {
		if sess.Status == SessionEnded {
			return ErrSessionEnded
		}
		b := sess.openBreak()
		if sess.Status != SessionOnBreak || b == nil {
			return ErrNotOnBreak
		}
		st, err := e.settings.Get(ctx)
		if err != nil {
			return err
		}
		e.closeBreak(b, st)
		sess.Status = SessionActive
		if err := e.save(ctx, sess); err != nil {
			return err
		}
		metrics.SessionTransitions.WithLabelValues("break_end").Inc()
		out = sess
		return nil
	})
	return out, err
}

func (e *Engine) closeBreak(b *Break, st *Settings) {
	now := e.clock()
	b.EndedAt = timePtr(now)
	limit := time.Duration(st.MaxBreakMinutes) * time.Minute
	b.Overrun = limit > 0 && now.Sub(b.StartedAt) > limit
}

// EndSession closes the session, ending an open break first.
func (e *Engine) EndSession(ctx context.Context, sessionID, agentID string) (*CallSession, error) {
	var out *CallSession
	err := e.withSession(ctx, sessionID, agentID, func(sess *CallSession) error {
		if sess.Status == SessionEnded {
			return ErrSessionEnded
		}
		if sess.CurrentCallID != "" {
			return ErrCallInProgress
		}
		if b := sess.openBreak(); b != nil {
			st, err := e.settings.Get(ctx)
			if err != nil {
				return err
			}
			e.closeBreak(b, st)
		}
		sess.Status = SessionEnded
		sess.EndedAt = timePtr(e.clock())
		sess.OpenFor = ""
		if err := e.save(ctx, sess); err != nil {
			return err
		}
		metrics.SessionTransitions.WithLabelValues("end").Inc()
		logger.WithFields(logger.Fields{"session": sess.ID, "agent": sess.AgentID, "calls": sess.CallsMade}).Info("call session ended")
		out = sess
		return nil
	})
	return out, err
}

// Stats summarizes a session at the current time.
func (e *Engine) Stats(ctx context.Context, sessionID string) (*Stats, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st, err := e.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	logs, err := e.logs.List(ctx, CallLogFilter{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return ComputeStats(sess, logs, st, e.clock()), nil
}
