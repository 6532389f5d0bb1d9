package telemarketing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/debtdesk/backoffice/internal/config"
	"github.com/debtdesk/backoffice/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	p := env.addProspect(t, "Andi", 1, nil)

	sess, err := env.engine.StartSession(ctx, "agent-1")
	require.NoError(t, err)
	require.Equal(t, SessionActive, sess.Status)

	_, err = env.engine.StartSession(ctx, "agent-1")
	require.ErrorIs(t, err, ErrSessionActive)

	active, err := env.engine.ActiveSession(ctx, "agent-1")
	require.NoError(t, err)
	require.Equal(t, sess.ID, active.ID)

	log, err := env.engine.StartCall(ctx, sess.ID, "agent-1", "")
	require.NoError(t, err)
	require.Equal(t, p.ID, log.ProspectID)
	require.Equal(t, "Baru", log.PreviousStatus)

	_, err = env.engine.StartCall(ctx, sess.ID, "agent-1", "")
	require.ErrorIs(t, err, ErrCallInProgress)
	_, err = env.engine.StartBreak(ctx, sess.ID, "agent-1")
	require.ErrorIs(t, err, ErrCallInProgress)
	_, err = env.engine.EndSession(ctx, sess.ID, "agent-1")
	require.ErrorIs(t, err, ErrCallInProgress)

	claimed, err := env.repo.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 1, claimed.CallAttempts)
	require.Equal(t, "agent-1", claimed.InCallBy)
	require.NotNil(t, claimed.LastCalledAt)

	env.clock.Advance(90 * time.Second)
	callback := env.clock.Now().Add(2 * time.Hour)
	res, err := env.engine.RecordDisposition(ctx, sess.ID, "agent-1", Disposition{Status: "Callback", Notes: "call after lunch", CallbackAt: &callback})
	require.NoError(t, err)
	require.Equal(t, 90, res.Log.DurationSeconds)
	require.Equal(t, "Callback", res.Log.Disposition)
	require.Equal(t, "Callback", res.Prospect.Status)
	require.Equal(t, "call after lunch", res.Prospect.Notes)
	require.Equal(t, callback, *res.Prospect.NextCallAt)
	require.Empty(t, res.Prospect.InCallBy)
	require.Nil(t, res.Next)
	require.Zero(t, res.Session.CallsConnected, "Callback does not count as contacted")
	require.Empty(t, res.Session.CurrentCallID)

	_, err = env.engine.RecordDisposition(ctx, sess.ID, "agent-1", Disposition{Status: "Tertarik"})
	require.ErrorIs(t, err, ErrNoActiveCall)

	_, err = env.engine.StartCall(ctx, sess.ID, "agent-1", "")
	require.ErrorIs(t, err, ErrNoProspects, "the only prospect waits for its callback")

	brk, err := env.engine.StartBreak(ctx, sess.ID, "agent-1")
	require.NoError(t, err)
	require.Equal(t, SessionOnBreak, brk.Status)
	_, err = env.engine.StartCall(ctx, sess.ID, "agent-1", "")
	require.ErrorIs(t, err, ErrOnBreak)
	_, err = env.engine.StartBreak(ctx, sess.ID, "agent-1")
	require.ErrorIs(t, err, ErrOnBreak)

	env.clock.Advance(20 * time.Minute)
	resumed, err := env.engine.EndBreak(ctx, sess.ID, "agent-1")
	require.NoError(t, err)
	require.Equal(t, SessionActive, resumed.Status)
	require.True(t, resumed.Breaks[0].Overrun)
	_, err = env.engine.EndBreak(ctx, sess.ID, "agent-1")
	require.ErrorIs(t, err, ErrNotOnBreak)

	ended, err := env.engine.EndSession(ctx, sess.ID, "agent-1")
	require.NoError(t, err)
	require.Equal(t, SessionEnded, ended.Status)
	require.NotNil(t, ended.EndedAt)
	_, err = env.engine.StartCall(ctx, sess.ID, "agent-1", "")
	require.ErrorIs(t, err, ErrSessionEnded)
	_, err = env.engine.ActiveSession(ctx, "agent-1")
	require.ErrorIs(t, err, ErrSessionNotFound)

	again, err := env.engine.StartSession(ctx, "agent-1")
	require.NoError(t, err)
	require.NotEqual(t, sess.ID, again.ID)
}

func TestSessionOwnership(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addProspect(t, "Andi", 1, nil)
	sess, err := env.engine.StartSession(ctx, "agent-1")
	require.NoError(t, err)

	_, err = env.engine.StartCall(ctx, sess.ID, "agent-2", "")
	require.ErrorIs(t, err, ErrNotSessionOwner)
	_, err = env.engine.EndSession(ctx, "missing", "agent-1")
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = env.engine.StartSession(ctx, " ")
	require.ErrorIs(t, err, ErrNoAgent)
}

func TestStartCallOnChosenProspect(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	first := env.addProspect(t, "First", 1, nil)
	second := env.addProspect(t, "Second", 2, nil)
	closed := env.addProspect(t, "Closed", 3, func(in *NewProspect) { in.Status = "Closing" })
	theirs := env.addProspect(t, "Theirs", 4, func(in *NewProspect) { in.AssignedTo = "agent-2" })

	sess, err := env.engine.StartSession(ctx, "agent-1")
	require.NoError(t, err)

	_, err = env.engine.StartCall(ctx, sess.ID, "agent-1", closed.ID)
	require.ErrorIs(t, err, ErrNotCallable)
	_, err = env.engine.StartCall(ctx, sess.ID, "agent-1", theirs.ID)
	require.ErrorIs(t, err, ErrNotCallable)
	_, err = env.engine.StartCall(ctx, sess.ID, "agent-1", "missing")
	require.ErrorIs(t, err, ErrProspectNotFound)

	log, err := env.engine.StartCall(ctx, sess.ID, "agent-1", second.ID)
	require.NoError(t, err)
	require.Equal(t, second.ID, log.ProspectID)
	require.NotEqual(t, first.ID, log.ProspectID)

	got, err := env.engine.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.CallsMade)
	require.Equal(t, second.ID, got.CurrentProspectID)
}

func TestTwoAgentsNeverDialTheSameProspect(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	only := env.addProspect(t, "Only", 1, nil)

	s1, err := env.engine.StartSession(ctx, "agent-1")
	require.NoError(t, err)
	s2, err := env.engine.StartSession(ctx, "agent-2")
	require.NoError(t, err)

	log, err := env.engine.StartCall(ctx, s1.ID, "agent-1", "")
	require.NoError(t, err)
	require.Equal(t, only.ID, log.ProspectID)

	_, err = env.engine.StartCall(ctx, s2.ID, "agent-2", "")
	require.ErrorIs(t, err, ErrNoProspects)
	_, err = env.engine.StartCall(ctx, s2.ID, "agent-2", only.ID)
	require.ErrorIs(t, err, ErrNotCallable)
}

func TestAutoNextCall(t *testing.T) {
	env := newTestEnv(t, func(c *config.TelemarketingConfig) { c.AutoNextCall = true })
	ctx := context.Background()
	a := env.addProspect(t, "A", 1, nil)
	b := env.addProspect(t, "B", 2, nil)

	sess, err := env.engine.StartSession(ctx, "agent-1")
	require.NoError(t, err)
	first, err := env.engine.StartCall(ctx, sess.ID, "agent-1", "")
	require.NoError(t, err)
	require.Equal(t, a.ID, first.ProspectID)

	before := testutil.ToFloat64(metrics.CallsStarted.WithLabelValues("auto"))
	env.clock.Advance(time.Minute)
	res, err := env.engine.RecordDisposition(ctx, sess.ID, "agent-1", Disposition{Status: "Tertarik"})
	require.NoError(t, err)
	require.NotNil(t, res.Next)
	require.Equal(t, b.ID, res.Next.ProspectID)
	require.Equal(t, 3, res.NextInSeconds)
	require.Equal(t, 1, res.Session.CallsConnected)
	require.Equal(t, 2, res.Session.CallsMade)
	require.Equal(t, res.Next.ID, res.Session.CurrentCallID)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.CallsStarted.WithLabelValues("auto")))

	res, err = env.engine.RecordDisposition(ctx, sess.ID, "agent-1", Disposition{Status: "Nomor Salah"})
	require.NoError(t, err)
	require.Nil(t, res.Next)
	require.True(t, res.QueueExhausted)
	require.Equal(t, 1, res.Session.CallsConnected)

	_, err = env.engine.RecordDisposition(ctx, sess.ID, "agent-1", Disposition{Status: "Tertarik"})
	require.ErrorIs(t, err, ErrNoActiveCall)
}

func TestConcurrentDispositionsAdvanceOnce(t *testing.T) {
	env := newTestEnv(t, func(c *config.TelemarketingConfig) { c.AutoNextCall = true })
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		env.addProspect(t, "P", i, nil)
	}
	sess, err := env.engine.StartSession(ctx, "agent-1")
	require.NoError(t, err)
	_, err = env.engine.StartCall(ctx, sess.ID, "agent-1", "")
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		ok     int
		noCall int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.RecordDisposition(ctx, sess.ID, "agent-1", Disposition{Status: "Tidak Diangkat"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, ErrNoActiveCall) {
				noCall++
			}
		}()
	}
	wg.Wait()

	got, err := env.engine.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	// Every disposition closes one call and starts the next, so the call
	// count is always one ahead of the successful dispositions.
	require.Equal(t, ok+1, got.CallsMade)
	require.Equal(t, 8, ok+noCall)
	require.NotEmpty(t, got.CurrentCallID)

	logs, err := env.logs.List(ctx, CallLogFilter{SessionID: sess.ID})
	require.NoError(t, err)
	require.Len(t, logs, got.CallsMade)
}

func TestInvalidDisposition(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addProspect(t, "A", 1, nil)
	sess, err := env.engine.StartSession(ctx, "agent-1")
	require.NoError(t, err)
	_, err = env.engine.StartCall(ctx, sess.ID, "agent-1", "")
	require.NoError(t, err)

	_, err = env.engine.RecordDisposition(ctx, sess.ID, "agent-1", Disposition{Status: "Unknown"})
	require.ErrorIs(t, err, ErrUnknownStatus)
	past := env.clock.Now().Add(-time.Minute)
	_, err = env.engine.RecordDisposition(ctx, sess.ID, "agent-1", Disposition{Status: "Callback", CallbackAt: &past})
	require.ErrorIs(t, err, ErrInvalidCallback)

	got, err := env.engine.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.NotEmpty(t, got.CurrentCallID, "a rejected disposition leaves the call open")
}

func TestAttemptLimitRemovesProspectFromQueue(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addProspect(t, "Hard to reach", 1, nil)
	sess, err := env.engine.StartSession(ctx, "agent-1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := env.engine.StartCall(ctx, sess.ID, "agent-1", "")
		require.NoError(t, err, "attempt %d", i+1)
		_, err = env.engine.RecordDisposition(ctx, sess.ID, "agent-1", Disposition{Status: "Tidak Diangkat"})
		require.NoError(t, err)
		env.clock.Advance(time.Minute)
	}
	_, err = env.engine.SkipToNext(ctx, sess.ID, "agent-1")
	require.ErrorIs(t, err, ErrNoProspects)
}

func TestEndSessionClosesOpenBreak(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	sess, err := env.engine.StartSession(ctx, "agent-1")
	require.NoError(t, err)
	_, err = env.engine.StartBreak(ctx, sess.ID, "agent-1")
	require.NoError(t, err)
	env.clock.Advance(5 * time.Minute)

	ended, err := env.engine.EndSession(ctx, sess.ID, "agent-1")
	require.NoError(t, err)
	require.NotNil(t, ended.Breaks[0].EndedAt)
	require.False(t, ended.Breaks[0].Overrun)

	stats, err := env.engine.Stats(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 300, stats.BreakSeconds)
	require.Equal(t, 0, stats.WorkedSeconds)
}

func TestEngineUsesRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()

	env := newTestEnv(t, nil)
	env.engine.locker = newSessionLocker(rc, time.Second)
	ctx := context.Background()
	env.addProspect(t, "A", 1, nil)
	sess, err := env.engine.StartSession(ctx, "agent-1")
	require.NoError(t, err)

	held, err := redislock.New(rc).Obtain(ctx, "lock:call_session:"+sess.ID, time.Minute, nil)
	require.NoError(t, err)
	_, err = env.engine.StartCall(ctx, sess.ID, "agent-1", "")
	require.ErrorIs(t, err, ErrBusy)

	require.NoError(t, held.Release(ctx))
	_, err = env.engine.StartCall(ctx, sess.ID, "agent-1", "")
	require.NoError(t, err)
}

func TestDeleteRefusedWhileProspectIsOnCall(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	p := env.addProspect(t, "Dewi", 1, nil)
	sess, err := env.engine.StartSession(ctx, "agent-1")
	require.NoError(t, err)
	_, err = env.engine.StartCall(ctx, sess.ID, "agent-1", p.ID)
	require.NoError(t, err)

	require.ErrorIs(t, env.prospects.Delete(ctx, p.ID), ErrProspectInCall)

	_, err = env.engine.RecordDisposition(ctx, sess.ID, "agent-1", Disposition{Status: "Tidak Diangkat"})
	require.NoError(t, err)
	require.NoError(t, env.prospects.Delete(ctx, p.ID))
}

func TestDispositionClosesCallOfRemovedProspect(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	p := env.addProspect(t, "Eka", 1, nil)
	sess, err := env.engine.StartSession(ctx, "agent-1")
	require.NoError(t, err)
	call, err := env.engine.StartCall(ctx, sess.ID, "agent-1", p.ID)
	require.NoError(t, err)

	env.repo.mu.Lock()
	delete(env.repo.items, p.ID)
	env.repo.mu.Unlock()

	res, err := env.engine.RecordDisposition(ctx, sess.ID, "agent-1", Disposition{Status: "Tertarik"})
	require.NoError(t, err)
	require.Nil(t, res.Prospect)
	require.Empty(t, res.Session.CurrentCallID)

	log, err := env.engine.logs.Get(ctx, call.ID)
	require.NoError(t, err)
	require.NotNil(t, log.EndedAt)
	require.Equal(t, "Tertarik", log.Disposition)

	_, err = env.engine.StartBreak(ctx, sess.ID, "agent-1")
	require.NoError(t, err)
	ended, err := env.engine.EndSession(ctx, sess.ID, "agent-1")
	require.NoError(t, err)
	require.Equal(t, SessionEnded, ended.Status)
}

type failingCallLogs struct {
	*MemoryCallLogRepository
}

func (failingCallLogs) Create(context.Context, *CallLog) error {
	return errors.New("write refused")
}

func TestFailedDialGivesTheAttemptBack(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	p := env.addProspect(t, "Fajar", 1, nil)
	sess, err := env.engine.StartSession(ctx, "agent-1")
	require.NoError(t, err)
	env.engine.logs = failingCallLogs{env.logs}

	_, err = env.engine.StartCall(ctx, sess.ID, "agent-1", "")
	require.Error(t, err)

	got, err := env.repo.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Empty(t, got.InCallBy)
	require.Zero(t, got.CallAttempts)
	require.Nil(t, got.LastCalledAt)

	again, err := env.engine.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Empty(t, again.CurrentCallID)
	require.Zero(t, again.CallsMade)
}

// contestedProspects hands the listed prospects to another agent just before
// the engine's claim lands.
type contestedProspects struct {
	*MemoryProspectRepository
	lost map[string]bool
}

func (c *contestedProspects) Claim(ctx context.Context, id, agentID string, maxAttempts int, now time.Time) (*Prospect, error) {
	if c.lost[id] {
		if _, err := c.MemoryProspectRepository.Claim(ctx, id, "agent-2", maxAttempts, now); err != nil {
			return nil, err
		}
		return nil, ErrNotCallable
	}
	return c.MemoryProspectRepository.Claim(ctx, id, agentID, maxAttempts, now)
}

func TestQueueClaimOutlastsLostCandidates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	lost := map[string]bool{}
	var last *Prospect
	for i := 1; i <= claimCandidates+2; i++ {
		p := env.addProspect(t, "P", i, nil)
		if i <= claimCandidates+1 {
			lost[p.ID] = true
		}
		last = p
	}
	env.engine.prospects = &contestedProspects{MemoryProspectRepository: env.repo, lost: lost}

	sess, err := env.engine.StartSession(ctx, "agent-1")
	require.NoError(t, err)
	call, err := env.engine.StartCall(ctx, sess.ID, "agent-1", "")
	require.NoError(t, err)
	require.Equal(t, last.ID, call.ProspectID)

	_, err = env.engine.RecordDisposition(ctx, sess.ID, "agent-1", Disposition{Status: "Tidak Diangkat"})
	require.NoError(t, err)
	lost[last.ID] = true
	_, err = env.engine.SkipToNext(ctx, sess.ID, "agent-1")
	require.ErrorIs(t, err, ErrNoProspects)
}
