package telemarketing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/debtdesk/backoffice/internal/phone"
	"github.com/debtdesk/backoffice/internal/spreadsheet"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrInvalidProspect = errors.New("invalid prospect")
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrUnknownStatus   = errors.New("unknown prospect status")
	ErrUnknownSource   = errors.New("unknown prospect source")
	ErrProspectInCall  = errors.New("prospect is on a call")
)

// NewProspect is the input for creating a prospect.
type NewProspect struct {
	Name       string `json:"name" binding:"required"`
	Phone      string `json:"phone" binding:"required"`
	Email      string `json:"email"`
	Status     string `json:"status"`
	Source     string `json:"source"`
	AssignedTo string `json:"assignedTo"`
	Notes      string `json:"notes"`
}

// RowError explains why an imported row was skipped.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors"`
}

type ProspectService struct {
	repo     ProspectRepository
	settings *SettingsService
	region   string
	validate *validator.Validate
	now      func() time.Time
}

func NewProspectService(repo ProspectRepository, settings *SettingsService, region string) *ProspectService {
	return &ProspectService{repo: repo, settings: settings, region: region, validate: validator.New(), now: time.Now}
}

func (s *ProspectService) Create(ctx context.Context, in NewProspect, actor string) (*Prospect, error) {
	st, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := &Prospect{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Phone:      in.Phone,
		Email:      in.Email,
		Status:     in.Status,
		Source:     strings.TrimSpace(in.Source),
		AssignedTo: strings.TrimSpace(in.AssignedTo),
		Notes:      in.Notes,
		CreatedBy:  actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if p.Status == "" {
		p.Status = st.DefaultStatus
	}
	if err := s.check(p, st); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// check normalizes p in place and validates it against the settings.
func (s *ProspectService) check(p *Prospect, st *Settings) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProspect)
	}
	normalized, err := phone.Normalize(p.Phone, s.region)
	if err != nil {
		return ErrInvalidPhone
	}
	p.Phone = normalized
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Email != "" {
		if err := s.validate.Var(p.Email, "email"); err != nil {
			return fmt.Errorf("%w: email is not valid", ErrInvalidProspect)
		}
	}
	if _, ok := st.Status(p.Status); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, p.Status)
	}
	if p.Source != "" && !st.HasSource(p.Source) {
		return fmt.Errorf("%w: %q", ErrUnknownSource, p.Source)
	}
	return nil
}

func (s *ProspectService) Get(ctx context.Context, id string) (*Prospect, error) {
	return s.repo.Get(ctx, id)
}

func (s *ProspectService) List(ctx context.Context, f ProspectFilter) ([]*Prospect, error) {
	return s.repo.List(ctx, f)
}

// Update applies a partial edit. Only the fields in the patch are written, so
// a concurrent claim on the prospect is never overwritten.
func (s *ProspectService) Update(ctx context.Context, id string, patch ProspectPatch) (*Prospect, error) {
	st, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.LastDisposition = nil
	patch.apply(p)
	if err := s.check(p, st); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, patch.normalized(p), s.now().UTC())
}

// Delete removes a prospect unless an agent is on the phone with it.
func (s *ProspectService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Assign gives the prospects to agentID; an empty agent returns them to the shared pool.
func (s *ProspectService) Assign(ctx context.Context, ids []string, agentID string) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no prospects selected", ErrInvalidProspect)
	}
	return s.repo.Assign(ctx, ids, strings.TrimSpace(agentID), s.now().UTC())
}

// Queue returns up to limit prospects the agent may dial now, in dialing order.
func (s *ProspectService) Queue(ctx context.Context, agentID string, limit int) ([]*Prospect, error) {
	st, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.queue(ctx, st, agentID, limit, s.now().UTC())
}

func (s *ProspectService) queue(ctx context.Context, st *Settings, agentID string, limit int, now time.Time) ([]*Prospect, error) {
	ps, err := s.repo.Callable(ctx, QueueQuery{
		AgentID:     agentID,
		Statuses:    st.QueueStatuses(),
		MaxAttempts: st.MaxCallAttempts,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	SortQueue(ps)
	if limit > 0 && limit < len(ps) {
		ps = ps[:limit]
	}
	return ps, nil
}

// Import reads prospects from an xlsx workbook whose first row holds the
// columns name, phone, email, source and notes. Invalid or duplicate rows are
// skipped and reported.
func (s *ProspectService) Import(ctx context.Context, r io.Reader, actor string) (*ImportResult, error) {
	recs, err := spreadsheet.ReadRecords(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProspect, err)
	}
	res := &ImportResult{Errors: []RowError{}}
	for _, rec := range recs {
		_, err := s.Create(ctx, NewProspect{
			Name:   rec.Get("name"),
			Phone:  rec.Get("phone"),
			Email:  rec.Get("email"),
			Source: rec.Get("source"),
			Notes:  rec.Get("notes"),
		}, actor)
		if err != nil {
			if !isRowError(err) {
				return res, err
			}
			res.Skipped++
			res.Errors = append(res.Errors, RowError{Line: rec.Line, Reason: err.Error()})
			continue
		}
		res.Imported++
	}
	return res, nil
}

func isRowError(err error) bool {
	for _, target := range []error{ErrInvalidProspect, ErrInvalidPhone, ErrUnknownStatus, ErrUnknownSource, ErrDuplicatePhone} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
