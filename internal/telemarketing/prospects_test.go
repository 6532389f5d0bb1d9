package telemarketing

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/debtdesk/backoffice/internal/spreadsheet"
	"github.com/stretchr/testify/require"
)

func TestCreateProspectValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	p := env.addProspect(t, "  Citra ", 1, func(in *NewProspect) { in.Email = "CITRA@Example.com" })
	require.Equal(t, "Citra", p.Name)
	require.Equal(t, "+6281234567801", p.Phone)
	require.Equal(t, "citra@example.com", p.Email)
	require.Equal(t, "Baru", p.Status)

	_, err := env.prospects.Create(ctx, NewProspect{Name: "Dup", Phone: "+62 812 3456 7801"}, "")
	require.ErrorIs(t, err, ErrDuplicatePhone)
	_, err = env.prospects.Create(ctx, NewProspect{Name: "Bad", Phone: "12"}, "")
	require.ErrorIs(t, err, ErrInvalidPhone)
	_, err = env.prospects.Create(ctx, NewProspect{Name: "X", Phone: phoneN(2), Status: "Hot"}, "")
	require.ErrorIs(t, err, ErrUnknownStatus)
	_, err = env.prospects.Create(ctx, NewProspect{Name: "X", Phone: phoneN(2), Source: "TikTok"}, "")
	require.ErrorIs(t, err, ErrUnknownSource)
	_, err = env.prospects.Create(ctx, NewProspect{Name: " ", Phone: phoneN(2)}, "")
	require.ErrorIs(t, err, ErrInvalidProspect)
}

func TestUpdateAssignAndFilter(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.addProspect(t, "Andi", 1, nil)
	b := env.addProspect(t, "Budi", 2, func(in *NewProspect) { in.Source = "Referral" })
	env.addProspect(t, "Cici", 3, nil)

	status := "Tertarik"
	updated, err := env.prospects.Update(ctx, a.ID, ProspectPatch{Status: &status})
	require.NoError(t, err)
	require.Equal(t, "Tertarik", updated.Status)

	dupPhone := phoneN(2)
	_, err = env.prospects.Update(ctx, a.ID, ProspectPatch{Phone: &dupPhone})
	require.ErrorIs(t, err, ErrDuplicatePhone)

	n, err := env.prospects.Assign(ctx, []string{a.ID, b.ID, "missing"}, "agent-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	mine, err := env.prospects.List(ctx, ProspectFilter{AssignedTo: "agent-1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	free, err := env.prospects.List(ctx, ProspectFilter{Unassigned: true})
	require.NoError(t, err)
	require.Len(t, free, 1)
	require.Equal(t, "Cici", free[0].Name)

	bySource, err := env.prospects.List(ctx, ProspectFilter{Source: "Referral"})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	search, err := env.prospects.List(ctx, ProspectFilter{Search: "bud"})
	require.NoError(t, err)
	require.Len(t, search, 1)

	_, err = env.prospects.Assign(ctx, nil, "agent-1")
	require.ErrorIs(t, err, ErrInvalidProspect)

	require.NoError(t, env.prospects.Delete(ctx, b.ID))
	require.ErrorIs(t, env.prospects.Delete(ctx, b.ID), ErrProspectNotFound)
}

func TestQueueFilterAndOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	now := env.clock.Now()

	fresh := env.addProspect(t, "fresh", 1, nil)
	fresher := env.addProspect(t, "fresher", 2, nil)
	env.addProspect(t, "other agent", 3, func(in *NewProspect) { in.AssignedTo = "agent-2" })
	mine := env.addProspect(t, "mine", 4, func(in *NewProspect) { in.AssignedTo = "agent-1" })
	env.addProspect(t, "final", 5, func(in *NewProspect) { in.Status = "Closing" })
	env.addProspect(t, "contacted", 6, func(in *NewProspect) { in.Status = "Tertarik" })
	called := env.addProspect(t, "called long ago", 7, nil)
	calledRecently := env.addProspect(t, "called recently", 8, nil)
	exhausted := env.addProspect(t, "exhausted", 9, nil)
	dueCallback := env.addProspect(t, "due callback", 10, func(in *NewProspect) { in.Status = "Callback" })
	olderCallback := env.addProspect(t, "older callback", 11, func(in *NewProspect) { in.Status = "Callback" })
	futureCallback := env.addProspect(t, "future callback", 12, func(in *NewProspect) { in.Status = "Callback" })

	set := func(id string, f func(*Prospect)) {
		env.repo.mu.Lock()
		defer env.repo.mu.Unlock()
		f(env.repo.items[id])
	}
	set(called.ID, func(p *Prospect) { p.LastCalledAt = timePtr(now.Add(-48 * time.Hour)); p.CallAttempts = 1 })
	set(calledRecently.ID, func(p *Prospect) { p.LastCalledAt = timePtr(now.Add(-time.Hour)); p.CallAttempts = 1 })
	set(exhausted.ID, func(p *Prospect) { p.CallAttempts = 3 })
	set(dueCallback.ID, func(p *Prospect) { p.NextCallAt = timePtr(now.Add(-time.Minute)) })
	set(olderCallback.ID, func(p *Prospect) { p.NextCallAt = timePtr(now.Add(-time.Hour)) })
	set(futureCallback.ID, func(p *Prospect) { p.NextCallAt = timePtr(now.Add(24 * time.Hour)) })

	q, err := env.prospects.Queue(ctx, "agent-1", 0)
	require.NoError(t, err)
	names := []string{}
	for _, p := range q {
		names = append(names, p.Name)
	}
	require.Equal(t, []string{
		olderCallback.Name, dueCallback.Name,
		fresh.Name, fresher.Name, mine.Name,
		called.Name, calledRecently.Name,
	}, names)

	head, err := env.prospects.Queue(ctx, "agent-1", 2)
	require.NoError(t, err)
	require.Len(t, head, 2)
}

func TestImportAndExportRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addProspect(t, "Existing", 1, nil)

	var buf bytes.Buffer
	require.NoError(t, spreadsheet.Write(&buf, spreadsheet.Sheet{
		Name:   "Leads",
		Header: []string{"Name", "Phone", "Email", "Source", "Notes"},
		Rows: [][]interface{}{
			{"Dina", phoneN(20), "dina@example.com", "Website", "asked for a call"},
			{"Dup", phoneN(1), "", "", ""},
			{"No Phone", "", "", "", ""},
			{"Eko", phoneN(21), "", "TikTok", ""},
			{"Fajar", phoneN(22), "", "", ""},
			{"Fajar again", phoneN(22), "", "", ""},
		},
	}))

	res, err := env.prospects.Import(ctx, &buf, "admin")
	require.NoError(t, err)
	require.Equal(t, 2, res.Imported)
	require.Equal(t, 4, res.Skipped)
	lines := []int{}
	for _, e := range res.Errors {
		lines = append(lines, e.Line)
	}
	require.Equal(t, []int{3, 4, 5, 7}, lines)

	var out bytes.Buffer
	require.NoError(t, env.prospects.Export(ctx, &out, ProspectFilter{}))
	recs, err := spreadsheet.ReadRecords(&out)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	_, err = env.prospects.Import(ctx, bytes.NewReader([]byte("nope")), "admin")
	require.ErrorIs(t, err, ErrInvalidProspect)
}

func TestUpdateLeavesClaimStateAlone(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	p := env.addProspect(t, "Gita", 1, nil)

	stale, err := env.repo.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Empty(t, stale.InCallBy)
	_, err = env.repo.Claim(ctx, p.ID, "agent-1", 3, env.clock.Now())
	require.NoError(t, err)

	notes := "prefers WhatsApp"
	updated, err := env.prospects.Update(ctx, p.ID, ProspectPatch{Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, "agent-1", updated.InCallBy)
	require.Equal(t, 1, updated.CallAttempts)
	require.NotNil(t, updated.LastCalledAt)
	require.Equal(t, notes, updated.Notes)

	q, err := env.prospects.Queue(ctx, "agent-2", 0)
	require.NoError(t, err)
	require.Empty(t, q)

	callback := env.clock.Now().Add(time.Hour)
	updated, err = env.prospects.Update(ctx, p.ID, ProspectPatch{NextCallAt: &callback})
	require.NoError(t, err)
	require.True(t, callback.Equal(*updated.NextCallAt))
	updated, err = env.prospects.Update(ctx, p.ID, ProspectPatch{NextCallAt: &time.Time{}})
	require.NoError(t, err)
	require.Nil(t, updated.NextCallAt)
	require.Equal(t, notes, updated.Notes)
}
