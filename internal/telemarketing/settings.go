package telemarketing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/debtdesk/backoffice/internal/config"
	"github.com/debtdesk/backoffice/pkg/logger"
)

// SettingsID is the id of the single settings document.
const SettingsID = "default"

var (
	ErrInvalidSettings = errors.New("invalid telemarketing settings")
	ErrStatusInUse     = errors.New("status is still used by prospects")
)

// DefaultSettings seeds the status pipeline and limits from config.
func DefaultSettings(cfg config.TelemarketingConfig) *Settings {
	attempts := cfg.MaxCallAttempts
	if attempts < 1 {
		attempts = 5
	}
	return &Settings{
		ID: SettingsID,
		Statuses: []ProspectStatus{
			{Name: "Baru", Color: "#3b82f6", Callable: true},
			{Name: "Tidak Diangkat", Color: "#f59e0b", Callable: true},
			{Name: "Callback", Color: "#8b5cf6", Callable: true},
			{Name: "Tertarik", Color: "#10b981", Contacted: true},
			{Name: "Tidak Tertarik", Color: "#6b7280", Contacted: true, Final: true},
			{Name: "Nomor Salah", Color: "#ef4444", Final: true},
			{Name: "Closing", Color: "#059669", Contacted: true, Final: true},
		},
		Sources: []ProspectSource{
			{Name: "Facebook Ads"}, {Name: "Referral"}, {Name: "Website"}, {Name: "Walk-in"},
		},
		DefaultStatus:        "Baru",
		MaxCallAttempts:      attempts,
		AutoNextCall:         cfg.AutoNextCall,
		AutoNextDelaySeconds: cfg.AutoNextDelaySeconds,
		MaxBreakMinutes:      cfg.MaxBreakMinutes,
		DailyCallTarget:      cfg.DailyCallTarget,
	}
}

// SettingsRepository stores the settings document.
// Get returns ErrSettingsNotFound before the first save.
type SettingsRepository interface {
	Get(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
}

var ErrSettingsNotFound = errors.New("settings not saved yet")

type SettingsService struct {
	repo      SettingsRepository
	prospects ProspectRepository
	defaults  config.TelemarketingConfig
	now       func() time.Time
}

func NewSettingsService(repo SettingsRepository, prospects ProspectRepository, defaults config.TelemarketingConfig) *SettingsService {
	return &SettingsService{repo: repo, prospects: prospects, defaults: defaults, now: time.Now}
}

// Get returns the stored settings, falling back to defaults.
func (s *SettingsService) Get(ctx context.Context) (*Settings, error) {
	st, err := s.repo.Get(ctx)
	if errors.Is(err, ErrSettingsNotFound) {
		return DefaultSettings(s.defaults), nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Seed stores the defaults unless settings already exist.
func (s *SettingsService) Seed(ctx context.Context) error {
	_, err := s.repo.Get(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrSettingsNotFound) {
		return err
	}
	d := DefaultSettings(s.defaults)
	d.UpdatedAt = s.now().UTC()
	return s.repo.Save(ctx, d)
}

// Update replaces the settings. Statuses removed from the list must not be
// referenced by any prospect.
func (s *SettingsService) Update(ctx context.Context, in Settings) (*Settings, error) {
	if err := validateSettings(&in); err != nil {
		return nil, err
	}
	cur, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	for _, old := range cur.Statuses {
		if _, kept := in.Status(old.Name); kept {
			continue
		}
		used, err := s.prospects.List(ctx, ProspectFilter{Status: old.Name, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(used) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrStatusInUse, old.Name)
		}
	}
	in.ID = SettingsID
	in.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// RenameStatus renames a status and every prospect and default that refers to it.
func (s *SettingsService) RenameStatus(ctx context.Context, from, to string) (*Settings, int64, error) {
	return s.rename(ctx, from, to, true)
}

// RenameSource renames a lead source and the prospects that carry it.
func (s *SettingsService) RenameSource(ctx context.Context, from, to string) (*Settings, int64, error) {
	return s.rename(ctx, from, to, false)
}

func (s *SettingsService) rename(ctx context.Context, from, to string, status bool) (*Settings, int64, error) {
	to = strings.TrimSpace(to)
	if to == "" || from == to {
		return nil, 0, fmt.Errorf("%w: new name must differ and not be empty", ErrInvalidSettings)
	}
	cur, err := s.Get(ctx)
	if err != nil {
		return nil, 0, err
	}
	found := false
	if status {
		for i := range cur.Statuses {
			if cur.Statuses[i].Name == from {
				cur.Statuses[i].Name = to
				found = true
			}
		}
		if cur.DefaultStatus == from {
			cur.DefaultStatus = to
		}
	} else {
		for i := range cur.Sources {
			if cur.Sources[i].Name == from {
				cur.Sources[i].Name = to
				found = true
			}
		}
	}
	if !found {
		return nil, 0, fmt.Errorf("%w: %q does not exist", ErrInvalidSettings, from)
	}
	if err := validateSettings(cur); err != nil {
		return nil, 0, err
	}
	cur.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, cur); err != nil {
		return nil, 0, err
	}
	var n int64
	if status {
		n, err = s.prospects.RenameStatus(ctx, from, to)
	} else {
		n, err = s.prospects.RenameSource(ctx, from, to)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("propagate rename: %w", err)
	}
	logger.WithFields(logger.Fields{"from": from, "to": to, "prospects": n}).Info("telemarketing rename applied")
	return cur, n, nil
}

func validateSettings(s *Settings) error {
	if len(s.Statuses) == 0 {
		return fmt.Errorf("%w: at least one status is required", ErrInvalidSettings)
	}
	seen := map[string]bool{}
	callable := false
	for i := range s.Statuses {
		st := &s.Statuses[i]
		st.Name = strings.TrimSpace(st.Name)
		if st.Name == "" {
			return fmt.Errorf("%w: status %d has no name", ErrInvalidSettings, i+1)
		}
		key := strings.ToLower(st.Name)
		if seen[key] {
			return fmt.Errorf("%w: duplicate status %q", ErrInvalidSettings, st.Name)
		}
		seen[key] = true
		if st.Callable && !st.Final {
			callable = true
		}
	}
	if !callable {
		return fmt.Errorf("%w: at least one callable status is required", ErrInvalidSettings)
	}
	seen = map[string]bool{}
	for i := range s.Sources {
		src := &s.Sources[i]
		src.Name = strings.TrimSpace(src.Name)
		if src.Name == "" {
			return fmt.Errorf("%w: source %d has no name", ErrInvalidSettings, i+1)
		}
		key := strings.ToLower(src.Name)
		if seen[key] {
			return fmt.Errorf("%w: duplicate source %q", ErrInvalidSettings, src.Name)
		}
		seen[key] = true
	}
	if _, ok := s.Status(s.DefaultStatus); !ok {
		return fmt.Errorf("%w: default status %q is not in the status list", ErrInvalidSettings, s.DefaultStatus)
	}
	if s.MaxCallAttempts < 1 {
		return fmt.Errorf("%w: maxCallAttempts must be at least 1", ErrInvalidSettings)
	}
	if s.AutoNextDelaySeconds < 0 || s.MaxBreakMinutes < 0 || s.DailyCallTarget < 0 {
		return fmt.Errorf("%w: delays, break limit and target cannot be negative", ErrInvalidSettings)
	}
	if s.Sources == nil {
		s.Sources = []ProspectSource{}
	}
	return nil
}
