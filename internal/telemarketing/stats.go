package telemarketing

import (
	"math"
	"time"
)

// Stats is the live scoreboard of a session. Durations are in seconds.
type Stats struct {
	SessionID           string  `json:"sessionId"`
	Status              string  `json:"status"`
	ElapsedSeconds      int     `json:"elapsedSeconds"`
	WorkedSeconds       int     `json:"workedSeconds"`
	BreakSeconds        int     `json:"breakSeconds"`
	CurrentBreakSeconds int     `json:"currentBreakSeconds"`
	BreakLimitSeconds   int     `json:"breakLimitSeconds"`
	BreakOverrun        bool    `json:"breakOverrun"`
	OverrunBreaks       int     `json:"overrunBreaks"`
	CallsMade           int     `json:"callsMade"`
	CallsConnected      int     `json:"callsConnected"`
	ConnectRate         float64 `json:"connectRate"`
	AverageCallSeconds  int     `json:"averageCallSeconds"`
	DailyCallTarget     int     `json:"dailyCallTarget"`
	TargetProgress      float64 `json:"targetProgress"`
}

func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)*1000/float64(whole)) / 10
}

// ComputeStats derives the session scoreboard at now. Worked time excludes
// breaks; the average only counts finished calls.
func ComputeStats(sess *CallSession, logs []*CallLog, st *Settings, now time.Time) *Stats {
	end := now
	if sess.EndedAt != nil {
		end = *sess.EndedAt
	}
	limit := time.Duration(st.MaxBreakMinutes) * time.Minute
	out := &Stats{
		SessionID:         sess.ID,
		Status:            sess.Status,
		CallsMade:         sess.CallsMade,
		CallsConnected:    sess.CallsConnected,
		ConnectRate:       percent(sess.CallsConnected, sess.CallsMade),
		DailyCallTarget:   st.DailyCallTarget,
		TargetProgress:    percent(sess.CallsMade, st.DailyCallTarget),
		BreakLimitSeconds: int(limit.Seconds()),
	}

	var breaks time.Duration
	for _, b := range sess.Breaks {
		stop := end
		if b.EndedAt != nil {
			stop = *b.EndedAt
		}
		d := stop.Sub(b.StartedAt)
		if d < 0 {
			d = 0
		}
		breaks += d
		overrun := b.Overrun
		if b.EndedAt == nil {
			out.CurrentBreakSeconds = int(d.Seconds())
			overrun = limit > 0 && d > limit
			out.BreakOverrun = overrun
		}
		if overrun {
			out.OverrunBreaks++
		}
	}
	elapsed := end.Sub(sess.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	worked := elapsed - breaks
	if worked < 0 {
		worked = 0
	}
	out.ElapsedSeconds = int(elapsed.Seconds())
	out.BreakSeconds = int(breaks.Seconds())
	out.WorkedSeconds = int(worked.Seconds())

	var total, finished int
	for _, l := range logs {
		if l.EndedAt == nil {
			continue
		}
		total += l.DurationSeconds
		finished++
	}
	if finished > 0 {
		out.AverageCallSeconds = int(math.Round(float64(total) / float64(finished)))
	}
	return out
}
