package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/debtdesk/backoffice/internal/client"
	clientsvc "github.com/debtdesk/backoffice/internal/client/service"
	"github.com/debtdesk/backoffice/internal/estimation"
	"github.com/debtdesk/backoffice/internal/spreadsheet"
	"github.com/debtdesk/backoffice/internal/statements"
	"github.com/debtdesk/backoffice/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClientDocsRouter(t *testing.T, store storage.ObjectStore) (*gin.Engine, string) {
	t.Helper()
	clients := clientsvc.NewMemoryService()
	id, err := clients.Create(context.Background(), &client.Client{
		Name:      "Budi Santoso",
		NIK:       "3171234567890001",
		Phone:     "081234567890",
		Creditors: []client.CreditorDebt{{Creditor: "Bank A", Outstanding: 10_000_000}, {Creditor: "Kartu B", Outstanding: 5_000_000}},
	})
	require.NoError(t, err)

	r, api := actorRouter()
	RegisterStatementRoutes(api, statements.NewService(statements.NewMemoryRepository(), clients, store, time.Minute), nil)
	RegisterEstimationRoutes(api, estimation.NewService(estimation.NewMemoryRepository(), clients), nil)
	return r, id
}

func TestStatementHandler(t *testing.T) {
	r, clientID := newClientDocsRouter(t, nil)

	w := callJSON(r, http.MethodPost, "/api/statements", "boss", `{"clientId":"`+clientID+`","kind":"keringanan","place":"Bandung"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	st := decode[statements.Statement](t, w)
	assert.Regexp(t, `^SP/\d{4}/\d{2}/0001$`, st.Number)
	assert.Contains(t, st.Body, "Budi Santoso")
	assert.Equal(t, "boss", st.CreatedBy)

	w = callJSON(r, http.MethodPost, "/api/statements", "boss", `{"clientId":"missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = callJSON(r, http.MethodPost, "/api/statements", "boss", `{"clientId":"`+clientID+`","kind":"lain"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = callJSON(r, http.MethodGet, "/api/statements?clientId="+clientID, "boss", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]statements.Statement](t, w), 1)

	w = callJSON(r, http.MethodPut, "/api/statements/"+st.ID+"/body", "boss", `{"body":"# Surat\n\nIsi <script>x</script>"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = callJSON(r, http.MethodPost, "/api/statements/"+st.ID+"/render", "boss", "")
	require.Equal(t, http.StatusOK, w.Code)
	rendered := decode[statements.Rendered](t, w)
	assert.Contains(t, rendered.HTML, "<h1>Surat</h1>")
	assert.NotContains(t, rendered.HTML, "<script>")

	w = callJSON(r, http.MethodPost, "/api/statements/"+st.ID+"/render?format=html", "boss", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	w = callJSON(r, http.MethodDelete, "/api/statements/"+st.ID, "boss", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = callJSON(r, http.MethodGet, "/api/statements/"+st.ID, "boss", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatementRenderToObjectStore(t *testing.T) {
	store := storage.NewMemoryStore()
	r, clientID := newClientDocsRouter(t, store)

	w := callJSON(r, http.MethodPost, "/api/statements", "boss", `{"clientId":"`+clientID+`"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	st := decode[statements.Statement](t, w)

	w = callJSON(r, http.MethodPost, "/api/statements/"+st.ID+"/render", "boss", "")
	require.Equal(t, http.StatusOK, w.Code)
	rendered := decode[statements.Rendered](t, w)
	assert.Equal(t, "mem://statements/"+st.ID+".html", rendered.URL)
	assert.Empty(t, rendered.HTML)
}

func TestEstimationHandler(t *testing.T) {
	r, clientID := newClientDocsRouter(t, nil)

	w := callJSON(r, http.MethodPost, "/api/estimations/calculate", "boss",
		`{"debts":[{"creditor":"Bank A","outstanding":10000000}],"discountPercent":50,"feePercent":20,"tenorMonths":10}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	calc := decode[struct {
		Result estimation.Result `json:"result"`
	}](t, w)
	assert.Equal(t, int64(5_000_000), calc.Result.SettlementAmount)
	assert.Equal(t, int64(1_000_000), calc.Result.ServiceFee)
	assert.Equal(t, int64(600_000), calc.Result.MonthlyInstallment)

	w = callJSON(r, http.MethodPost, "/api/estimations/calculate", "boss", `{"debts":[{"creditor":"A","outstanding":1000}],"discountPercent":150,"tenorMonths":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = callJSON(r, http.MethodPost, "/api/estimations", "boss", `{"clientId":"`+clientID+`","discountPercent":40,"feePercent":10,"tenorMonths":12}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decode[estimation.Record](t, w)
	assert.Equal(t, int64(15_000_000), rec.TotalDebt)
	assert.Len(t, rec.Input.Debts, 2)

	w = callJSON(r, http.MethodPost, "/api/estimations", "boss", `{"clientId":"missing","tenorMonths":12}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = callJSON(r, http.MethodGet, "/api/estimations?clientId="+clientID, "boss", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]estimation.Record](t, w), 1)

	w = callJSON(r, http.MethodGet, "/api/estimations/export?clientId="+clientID, "boss", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, spreadsheet.ContentType, w.Header().Get("Content-Type"))

	w = callJSON(r, http.MethodDelete, "/api/estimations/"+rec.ID, "boss", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = callJSON(r, http.MethodGet, "/api/estimations/"+rec.ID, "boss", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
