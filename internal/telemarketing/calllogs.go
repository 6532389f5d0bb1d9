package telemarketing

import (
	"context"
	"io"

	"github.com/debtdesk/backoffice/internal/spreadsheet"
)

// exportLimit bounds a single call log export.
const exportLimit = 50000

type CallLogService struct {
	repo CallLogRepository
}

func NewCallLogService(repo CallLogRepository) *CallLogService {
	return &CallLogService{repo: repo}
}

func (s *CallLogService) List(ctx context.Context, f CallLogFilter) ([]*CallLog, error) {
	return s.repo.List(ctx, f)
}

func (s *CallLogService) Get(ctx context.Context, id string) (*CallLog, error) {
	return s.repo.Get(ctx, id)
}

// Export writes the matching call logs as a workbook.
func (s *CallLogService) Export(ctx context.Context, w io.Writer, f CallLogFilter) error {
	if f.Limit <= 0 || f.Limit > exportLimit {
		f.Limit = exportLimit
	}
	logs, err := s.repo.List(ctx, f)
	if err != nil {
		return err
	}
	sheet := spreadsheet.Sheet{
		Name: "Call Logs",
		Header: []string{
			"Waktu Mulai", "Waktu Selesai", "Durasi (detik)", "Agent", "Prospek", "Telepon",
			"Status Sebelumnya", "Disposisi", "Callback", "Catatan", "Sesi",
		},
	}
	for _, l := range logs {
		sheet.Rows = append(sheet.Rows, []interface{}{
			l.StartedAt.Format("2006-01-02 15:04:05"), formatOptional(l.EndedAt), l.DurationSeconds,
			l.AgentID, l.ProspectName, l.Phone, l.PreviousStatus, l.Disposition,
			formatOptional(l.CallbackAt), l.Notes, l.SessionID,
		})
	}
	return spreadsheet.Write(w, sheet)
}

// Export writes the prospects matching f as a workbook whose first columns
// match the import layout.
func (s *ProspectService) Export(ctx context.Context, w io.Writer, f ProspectFilter) error {
	if f.Limit <= 0 || f.Limit > exportLimit {
		f.Limit = exportLimit
	}
	ps, err := s.repo.List(ctx, f)
	if err != nil {
		return err
	}
	sheet := spreadsheet.Sheet{
		Name: "Prospects",
		Header: []string{
			"name", "phone", "email", "source", "notes", "status", "assignedTo",
			"callAttempts", "lastCalledAt", "lastDisposition", "nextCallAt",
		},
	}
	for _, p := range ps {
		sheet.Rows = append(sheet.Rows, []interface{}{
			p.Name, p.Phone, p.Email, p.Source, p.Notes, p.Status, p.AssignedTo,
			p.CallAttempts, formatOptional(p.LastCalledAt), p.LastDisposition, formatOptional(p.NextCallAt),
		})
	}
	return spreadsheet.Write(w, sheet)
}
