package estimation

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/debtdesk/backoffice/internal/client"
	clientsvc "github.com/debtdesk/backoffice/internal/client/service"
	"github.com/debtdesk/backoffice/internal/spreadsheet"
	"github.com/google/uuid"
)

var ErrClientNotFound = errors.New("client not found")

// ClientSource resolves the client an estimation refers to.
type ClientSource interface {
	Get(ctx context.Context, id string) (*client.Client, error)
}

type Service struct {
	repo    Repository
	clients ClientSource
	now     func() time.Time
}

// NewService builds the service. clients may be nil when estimations are not
// linked to client records.
func NewService(repo Repository, clients ClientSource) *Service {
	return &Service{repo: repo, clients: clients, now: time.Now}
}

// prepare checks the client reference and, when no debts are given, takes
// them from the client's creditor list.
func (s *Service) prepare(ctx context.Context, in *Input) error {
	if in.ClientID == "" || s.clients == nil {
		return nil
	}
	c, err := s.clients.Get(ctx, in.ClientID)
	if err != nil {
		if errors.Is(err, clientsvc.ErrNotFound) {
			return ErrClientNotFound
		}
		return err
	}
	if len(in.Debts) == 0 {
		for _, d := range c.Creditors {
			in.Debts = append(in.Debts, DebtItem{Creditor: d.Creditor, Outstanding: d.Outstanding})
		}
	}
	return nil
}

// Calculate computes an estimation without saving it.
func (s *Service) Calculate(ctx context.Context, in Input) (Input, Result, error) {
	if err := s.prepare(ctx, &in); err != nil {
		return in, Result{}, err
	}
	res, err := Calculate(in)
	return in, res, err
}

func (s *Service) Save(ctx context.Context, in Input, actor string) (*Record, error) {
	in, res, err := s.Calculate(ctx, in)
	if err != nil {
		return nil, err
	}
	r := &Record{
		ID:        uuid.NewString(),
		ClientID:  in.ClientID,
		Input:     in,
		Result:    res,
		CreatedBy: actor,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, clientID string) ([]*Record, error) {
	return s.repo.List(ctx, clientID)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Export writes the estimations of a client (or all of them) as a workbook
// with a summary sheet and a per-debt breakdown.
func (s *Service) Export(ctx context.Context, w io.Writer, clientID string) error {
	recs, err := s.repo.List(ctx, clientID)
	if err != nil {
		return err
	}
	summary := spreadsheet.Sheet{
		Name: "Estimasi",
		Header: []string{
			"ID", "Client ID", "Tanggal", "Total Utang", "Diskon (%)", "Nilai Pelunasan", "Penghematan",
			"Fee (%)", "Biaya Layanan", "Total Bayar", "DP", "Tenor (bulan)", "Cicilan per Bulan",
		},
	}
	debts := spreadsheet.Sheet{
		Name:   "Rincian Utang",
		Header: []string{"Estimasi ID", "Kreditur", "Sisa Kewajiban"},
	}
	for _, r := range recs {
		summary.Rows = append(summary.Rows, []interface{}{
			r.ID, r.ClientID, r.CreatedAt.Format("2006-01-02 15:04"), r.TotalDebt, r.Input.DiscountPercent,
			r.SettlementAmount, r.Savings, r.Input.FeePercent, r.ServiceFee, r.TotalPayable,
			r.Input.DownPayment, r.Input.TenorMonths, r.MonthlyInstallment,
		})
		for _, d := range r.Input.Debts {
			debts.Rows = append(debts.Rows, []interface{}{r.ID, d.Creditor, d.Outstanding})
		}
	}
	return spreadsheet.Write(w, summary, debts)
}
