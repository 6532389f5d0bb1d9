package telemarketing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeStats(t *testing.T) {
	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	at := func(m int) time.Time { return start.Add(time.Duration(m) * time.Minute) }
	endedBreak := at(70)
	st := &Settings{MaxBreakMinutes: 15, DailyCallTarget: 40}

	sess := &CallSession{
		ID:             "s1",
		Status:         SessionOnBreak,
		StartedAt:      start,
		CallsMade:      6,
		CallsConnected: 2,
		Breaks: []Break{
			{StartedAt: at(50), EndedAt: &endedBreak, Overrun: true},
			{StartedAt: at(100)},
		},
	}
	logs := []*CallLog{
		{DurationSeconds: 60, EndedAt: &endedBreak},
		{DurationSeconds: 91, EndedAt: &endedBreak},
		{DurationSeconds: 500},
	}

	got := ComputeStats(sess, logs, st, at(120))
	require.Equal(t, 7200, got.ElapsedSeconds)
	require.Equal(t, 2400, got.BreakSeconds)
	require.Equal(t, 4800, got.WorkedSeconds)
	require.Equal(t, 1200, got.CurrentBreakSeconds)
	require.Equal(t, 900, got.BreakLimitSeconds)
	require.True(t, got.BreakOverrun)
	require.Equal(t, 2, got.OverrunBreaks)
	require.Equal(t, 33.3, got.ConnectRate)
	require.Equal(t, 15.0, got.TargetProgress)
	require.Equal(t, 76, got.AverageCallSeconds, "open calls are not averaged")
}

func TestComputeStatsEndedSessionStopsTheClock(t *testing.T) {
	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	ended := start.Add(30 * time.Minute)
	sess := &CallSession{ID: "s1", Status: SessionEnded, StartedAt: start, EndedAt: &ended}

	got := ComputeStats(sess, nil, &Settings{}, start.Add(5*time.Hour))
	require.Equal(t, 1800, got.ElapsedSeconds)
	require.Equal(t, 1800, got.WorkedSeconds)
	require.Zero(t, got.ConnectRate)
	require.Zero(t, got.TargetProgress)
	require.Zero(t, got.AverageCallSeconds)
	require.False(t, got.BreakOverrun)
}
