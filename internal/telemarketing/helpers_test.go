package telemarketing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/debtdesk/backoffice/internal/config"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	clock     *fakeClock
	repo      *MemoryProspectRepository
	logs      *MemoryCallLogRepository
	settings  *SettingsService
	prospects *ProspectService
	engine    *Engine
}

func testConfig() config.TelemarketingConfig {
	return config.TelemarketingConfig{
		MaxCallAttempts:      3,
		AutoNextCall:         false,
		AutoNextDelaySeconds: 3,
		MaxBreakMinutes:      15,
		DailyCallTarget:      10,
		PhoneRegion:          "ID",
	}
}

func newTestEnv(t *testing.T, mutate func(*config.TelemarketingConfig)) *testEnv {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	clock := &fakeClock{t: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)}
	repo := NewMemoryProspectRepository()
	logs := NewMemoryCallLogRepository()
	settings := NewSettingsService(NewMemorySettingsRepository(), repo, cfg)
	settings.now = clock.Now
	prospects := NewProspectService(repo, settings, cfg.PhoneRegion)
	prospects.now = clock.Now
	engine := NewEngine(EngineOptions{
		Sessions:  NewMemorySessionRepository(),
		Logs:      logs,
		Prospects: repo,
		Settings:  settings,
		Queue:     prospects,
	})
	engine.now = clock.Now
	return &testEnv{clock: clock, repo: repo, logs: logs, settings: settings, prospects: prospects, engine: engine}
}

// phoneN returns a distinct valid Indonesian mobile number.
func phoneN(n int) string {
	return fmt.Sprintf("0812345678%02d", n)
}

func (e *testEnv) addProspect(t *testing.T, name string, n int, mutate func(*NewProspect)) *Prospect {
	t.Helper()
	in := NewProspect{Name: name, Phone: phoneN(n)}
	if mutate != nil {
		mutate(&in)
	}
	p, err := e.prospects.Create(context.Background(), in, "seed")
	require.NoError(t, err)
	e.clock.Advance(time.Second)
	return p
}
