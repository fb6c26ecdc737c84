package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appfinance "github.com/erp/ledger/internal/application/finance"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/erp/ledger/internal/domain/sequence"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/auth"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/erp/ledger/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envelope is dto.Response with the payload left undecoded
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorInfo  `json:"error"`
	Meta    *dto.Meta       `json:"meta"`
}

type testAPI struct {
	t      *testing.T
	engine *gin.Engine
}

// newTestAPI serves the ledger routes over a private SQLite database. The
// caller stored in the request context stands in for the JWT middleware.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()

	database, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, persistence.AutoMigrate(database.DB))
	db := database.DB

	ledger := appfinance.NewLedger(appfinance.Repositories{
		ApInvoices:     persistence.NewApInvoiceRepository(db),
		ArInvoices:     persistence.NewArInvoiceRepository(db),
		ApNotes:        persistence.NewApNoteRepository(db),
		ArNotes:        persistence.NewArNoteRepository(db),
		Payments:       persistence.NewPaymentRepository(db),
		Receipts:       persistence.NewReceiptRepository(db),
		PurchaseOrders: persistence.NewPurchaseOrderRepository(db),
		PaymentBatches: persistence.NewPaymentBatchRepository(db),
		JournalEntries: persistence.NewJournalEntryRepository(db),
		OpenItems:      persistence.NewGormOpenItemRepository(db),
		Clearings:      persistence.NewGormClearingRepository(db),
		Templates:      persistence.NewGormRecurringTemplateRepository(db),
		Counters:       persistence.NewGormCounterStore(db),
	}, appfinance.Infra{
		Tx:       persistence.NewGormTxManager(db),
		Sessions: auth.NewContextSessionResolver(),
		Oracle:   auth.NewCapabilityOracle(),
		Retry:    sequence.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
	})

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.GET("/health", NewSystemHandler(database, "test").Health)

	r := router.NewRouter(engine, router.WithMiddleware(func(c *gin.Context) {
		if caller, ok := shared.CallerFromContext(c.Request.Context()); ok {
			c.Set(middleware.CallerKey, caller)
		}
		c.Next()
	}))
	r.Register(LedgerRoutes(ledger)...)
	r.Setup()

	return &testAPI{t: t, engine: engine}
}

func userIn(scope shared.TenantScope, capabilities ...string) *shared.Caller {
	if len(capabilities) == 0 {
		capabilities = []string{auth.Wildcard}
	}
	return &shared.Caller{UserID: uuid.New(), Scope: scope, Capabilities: capabilities}
}

// do sends body as JSON. A string body is sent verbatim.
func (a *testAPI) do(caller *shared.Caller, method, path string, body any) (int, envelope) {
	a.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req = req.WithContext(shared.WithCaller(context.Background(), *caller))
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func invoiceBody(customer uuid.UUID, gross string) map[string]any {
	return map[string]any{
		"counterparty_id":    customer,
		"counterparty_name":  "Acme Corp",
		"currency":           "USD",
		"net_amount":         gross,
		"tax_amount":         "0",
		"document_date":      "2025-03-10T00:00:00Z",
		"payment_terms_days": 30,
	}
}

func receiptBody(customer uuid.UUID, gross string) map[string]any {
	return map[string]any{
		"counterparty_id":   customer,
		"counterparty_name": "Acme Corp",
		"currency":          "USD",
		"net_amount":        gross,
		"tax_amount":        "0",
		"document_date":     "2025-03-12T00:00:00Z",
		"method":            finance.PaymentMethodBankTransfer,
	}
}

// post walks a freshly created document of the collection at base to POSTED
func (a *testAPI) post(caller *shared.Caller, base string, body map[string]any) DocumentResponse {
	a.t.Helper()
	code, env := a.do(caller, http.MethodPost, base, body)
	require.Equal(a.t, http.StatusCreated, code, "create: %+v", env.Error)
	doc := decode[DocumentResponse](a.t, env)
	for _, action := range []string{"submit", "approve", "post"} {
		code, env = a.do(caller, http.MethodPost, base+"/"+doc.ID.String()+"/"+action, nil)
		require.Equal(a.t, http.StatusOK, code, "%s: %+v", action, env.Error)
	}
	return decode[DocumentResponse](a.t, env)
}

const (
	arInvoices = "/api/v1/accounts-receivable/invoices"
	receipts   = "/api/v1/accounts-receivable/receipts"
)

func TestDocumentHandler_InvoiceLifecycle(t *testing.T) {
	api := newTestAPI(t)
	caller := userIn(shared.AgencyScope(uuid.New()))

	code, env := api.do(caller, http.MethodPost, arInvoices, invoiceBody(uuid.New(), "250.00"))
	require.Equal(t, http.StatusCreated, code)
	created := decode[DocumentResponse](t, env)
	assert.Equal(t, "INV-2025-000001", created.Number)
	assert.Equal(t, lifecycle.StatusDraft, created.Status)
	assert.Equal(t, finance.KindArInvoice, created.Kind)
	assert.Equal(t, caller.Scope.AgencyID, created.AgencyID)
	require.NotNil(t, created.DueDate)
	assert.Equal(t, "2025-04-09", *created.DueDate)

	path := arInvoices + "/" + created.ID.String()
	code, env = api.do(caller, http.MethodPost, path+"/submit", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, lifecycle.StatusPendingApproval, decode[DocumentResponse](t, env).Status)

	code, env = api.do(caller, http.MethodPost, path+"/approve", map[string]string{"notes": "checked"})
	require.Equal(t, http.StatusOK, code)
	approved := decode[DocumentResponse](t, env)
	assert.Equal(t, lifecycle.StatusApproved, approved.Status)
	assert.Equal(t, "checked", approved.Audit.ApprovalNotes)

	code, env = api.do(caller, http.MethodPost, path+"/send", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, lifecycle.StatusSent, decode[DocumentResponse](t, env).Status)

	code, env = api.do(caller, http.MethodPost, path+"/post", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, lifecycle.StatusPosted, decode[DocumentResponse](t, env).Status)

	// posted documents are frozen
	code, env = api.do(caller, http.MethodPut, path, invoiceBody(uuid.New(), "300"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, dto.ErrCodeInvalidTransition, env.Error.Code)

	code, env = api.do(caller, http.MethodGet, arInvoices+"?status=POSTED", nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[[]DocumentResponse](t, env)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	require.NotNil(t, env.Meta)
	assert.EqualValues(t, 1, env.Meta.Total)
}

func TestDocumentHandler_Errors(t *testing.T) {
	api := newTestAPI(t)
	caller := userIn(shared.AgencyScope(uuid.New()))

	code, env := api.do(caller, http.MethodPost, arInvoices, invoiceBody(uuid.New(), "100"))
	require.Equal(t, http.StatusCreated, code)
	id := decode[DocumentResponse](t, env).ID.String()

	t.Run("post from draft", func(t *testing.T) {
		code, env := api.do(caller, http.MethodPost, arInvoices+"/"+id+"/post", nil)
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, dto.ErrCodeInvalidTransition, env.Error.Code)
		assert.NotEmpty(t, env.Error.RequestID)
	})

	t.Run("other agency", func(t *testing.T) {
		code, env := api.do(userIn(shared.AgencyScope(uuid.New())), http.MethodGet, arInvoices+"/"+id, nil)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, dto.ErrCodeScopeMismatch, env.Error.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		code, env := api.do(caller, http.MethodGet, arInvoices+"/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, dto.ErrCodeNotFound, env.Error.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		code, env := api.do(caller, http.MethodGet, arInvoices+"/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, dto.ErrCodeBadRequest, env.Error.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		code, env := api.do(caller, http.MethodPost, arInvoices, `{"currency":`)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, env.Error.Code)
	})

	t.Run("missing currency", func(t *testing.T) {
		body := invoiceBody(uuid.New(), "100")
		delete(body, "currency")
		code, env := api.do(caller, http.MethodPost, arInvoices, body)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, dto.ErrCodeValidation, env.Error.Code)
	})

	t.Run("oversized approval notes", func(t *testing.T) {
		code, env := api.do(caller, http.MethodPost, arInvoices+"/"+id+"/approve",
			map[string]string{"notes": strings.Repeat("x", 1001)})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, dto.ErrCodeValidation, env.Error.Code)
		require.Len(t, env.Error.Details, 1)
		assert.Equal(t, "notes", env.Error.Details[0].Field)
	})

	t.Run("missing capability", func(t *testing.T) {
		clerk := userIn(caller.Scope, "accounts_payable.*")
		code, env := api.do(clerk, http.MethodPost, arInvoices, invoiceBody(uuid.New(), "100"))
		assert.Equal(t, http.StatusForbidden, code)
		assert.Equal(t, dto.ErrCodePermissionDenied, env.Error.Code)
	})

	t.Run("no caller", func(t *testing.T) {
		code, env := api.do(nil, http.MethodGet, arInvoices, nil)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, dto.ErrCodeUnauthorized, env.Error.Code)
	})

	t.Run("send only on customer invoices", func(t *testing.T) {
		code, _ := api.do(caller, http.MethodPost, "/api/v1/accounts-payable/invoices/"+id+"/send", nil)
		assert.Equal(t, http.StatusNotFound, code)
	})
}

func TestDocumentHandler_SubAccountsNumberSeparately(t *testing.T) {
	api := newTestAPI(t)
	agency := uuid.New()
	east := userIn(shared.SubAccountScope(agency, uuid.New()))
	west := userIn(shared.SubAccountScope(agency, uuid.New()))

	for _, caller := range []*shared.Caller{east, west} {
		code, env := api.do(caller, http.MethodPost, arInvoices, invoiceBody(uuid.New(), "10"))
		require.Equal(t, http.StatusCreated, code)
		assert.Equal(t, "INV-2025-000001", decode[DocumentResponse](t, env).Number)
	}

	code, env := api.do(east, http.MethodGet, arInvoices, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]DocumentResponse](t, env), 1)
}

func TestClearingHandler_ClearAndReverse(t *testing.T) {
	api := newTestAPI(t)
	caller := userIn(shared.AgencyScope(uuid.New()))
	customer := uuid.New()

	invoice := api.post(caller, arInvoices, invoiceBody(customer, "100"))
	receipt := api.post(caller, receipts, receiptBody(customer, "100"))

	code, env := api.do(caller, http.MethodGet, "/api/v1/open-items?control_account=ACCOUNTS_RECEIVABLE&status=OPEN", nil)
	require.Equal(t, http.StatusOK, code)
	items := decode[[]OpenItemResponse](t, env)
	require.Len(t, items, 2)

	byDocument := make(map[uuid.UUID]OpenItemResponse, len(items))
	for _, item := range items {
		byDocument[item.DocumentID] = item
	}
	invoiceItem, receiptItem := byDocument[invoice.ID], byDocument[receipt.ID]
	assert.Equal(t, "100", invoiceItem.RemainingAmount.String())
	assert.Equal(t, "-100", receiptItem.RemainingAmount.String())

	code, env = api.do(caller, http.MethodPost, "/api/v1/open-items/clear", map[string]any{
		"group": map[string]any{"members": []map[string]any{
			{"open_item_id": invoiceItem.ID, "amount": "100"},
			{"open_item_id": receiptItem.ID, "amount": "-100"},
		}},
		"clearing_date": "2025-03-20T00:00:00Z",
		"notes":         "March settlement",
	})
	require.Equal(t, http.StatusCreated, code, "%+v", env.Error)
	clearing := decode[ClearingResponse](t, env)
	assert.Equal(t, "CLR-2025-000001", clearing.Number)
	assert.Equal(t, finance.ClearingStatusActive, clearing.Status)
	assert.Len(t, clearing.Lines, 2)

	code, env = api.do(caller, http.MethodGet, arInvoices+"/"+invoice.ID.String(), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, lifecycle.StatusPaid, decode[DocumentResponse](t, env).Status)

	// an unbalanced group is rejected before anything changes
	code, env = api.do(caller, http.MethodPost, "/api/v1/open-items/clear", map[string]any{
		"group": map[string]any{"members": []map[string]any{
			{"open_item_id": invoiceItem.ID, "amount": "10"},
		}},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, dto.ErrCodeValidation, env.Error.Code)

	clearingPath := "/api/v1/clearings/" + clearing.ID.String()
	code, env = api.do(caller, http.MethodPost, clearingPath+"/reverse", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, dto.ErrCodeValidation, env.Error.Code)

	code, env = api.do(caller, http.MethodPost, clearingPath+"/reverse", map[string]string{"reason": "wrong customer"})
	require.Equal(t, http.StatusOK, code, "%+v", env.Error)
	reversed := decode[ClearingResponse](t, env)
	assert.Equal(t, finance.ClearingStatusReversed, reversed.Status)
	assert.Equal(t, "wrong customer", reversed.ReversalReason)

	code, env = api.do(caller, http.MethodGet, arInvoices+"/"+invoice.ID.String(), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, lifecycle.StatusPosted, decode[DocumentResponse](t, env).Status)

	code, env = api.do(caller, http.MethodPost, clearingPath+"/reverse", map[string]string{"reason": "again"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, dto.ErrCodeInvalidTransition, env.Error.Code)

	code, env = api.do(caller, http.MethodGet, clearingPath, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, finance.ClearingStatusReversed, decode[ClearingResponse](t, env).Status)
}

func TestClearingHandler_AutoMatch(t *testing.T) {
	api := newTestAPI(t)
	caller := userIn(shared.AgencyScope(uuid.New()))
	customer := uuid.New()

	api.post(caller, arInvoices, invoiceBody(customer, "75"))
	api.post(caller, receipts, receiptBody(customer, "75"))

	request := map[string]any{"control_account": "ACCOUNTS_RECEIVABLE", "currency": "USD"}
	code, env := api.do(caller, http.MethodPost, "/api/v1/open-items/auto-match", request)
	require.Equal(t, http.StatusOK, code, "%+v", env.Error)
	preview := decode[AutoMatchResponse](t, env)
	require.Len(t, preview.Suggestions, 1)
	assert.Empty(t, preview.Clearings)

	request["apply"] = true
	code, env = api.do(caller, http.MethodPost, "/api/v1/open-items/auto-match", request)
	require.Equal(t, http.StatusOK, code)
	applied := decode[AutoMatchResponse](t, env)
	require.Len(t, applied.Clearings, 1)
	assert.Empty(t, applied.Failed)
	assert.Equal(t, "Auto-matched", applied.Clearings[0].Notes)

	code, env = api.do(caller, http.MethodGet, "/api/v1/open-items?status=OPEN", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]OpenItemResponse](t, env))
}

func TestRecurringHandler_CreateAndExecute(t *testing.T) {
	api := newTestAPI(t)
	caller := userIn(shared.AgencyScope(uuid.New()))
	base := "/api/v1/general-ledger/recurring-journals"

	code, env := api.do(caller, http.MethodPost, base, map[string]any{
		"name":       "Office rent",
		"currency":   "USD",
		"frequency":  finance.FrequencyMonthly,
		"start_date": "2025-01-31T00:00:00Z",
		"lines": []map[string]any{
			{"account_code": "6400", "debit": "1200"},
			{"account_code": "2100", "credit": "1200"},
		},
	})
	require.Equal(t, http.StatusCreated, code, "%+v", env.Error)
	tmpl := decode[TemplateResponse](t, env)
	assert.Equal(t, finance.TemplateStatusActive, tmpl.Status)
	require.NotNil(t, tmpl.NextRunDate)
	assert.Equal(t, "2025-01-31", *tmpl.NextRunDate)

	path := base + "/" + tmpl.ID.String()
	code, env = api.do(caller, http.MethodPost, path+"/execute", nil)
	require.Equal(t, http.StatusCreated, code, "%+v", env.Error)
	result := decode[ExecutionResultResponse](t, env)
	assert.Equal(t, "RJE-2025-000001", result.Journal.Number)
	assert.Equal(t, lifecycle.StatusDraft, result.Journal.Status)
	require.NotNil(t, result.NextRunDate)
	assert.Equal(t, "2025-02-28", *result.NextRunDate)

	code, env = api.do(caller, http.MethodGet, path+"/executions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]ExecutionResponse](t, env), 1)

	code, _ = api.do(caller, http.MethodPost, path+"/pause", nil)
	require.Equal(t, http.StatusOK, code)
	code, env = api.do(caller, http.MethodPost, path+"/execute", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, dto.ErrCodeInvalidTransition, env.Error.Code)

	code, _ = api.do(caller, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestSequenceHandler_AllocateAndCurrent(t *testing.T) {
	api := newTestAPI(t)
	caller := userIn(shared.AgencyScope(uuid.New()))
	body := map[string]any{"range_key": "voucher", "format": "V-{######}", "reset_rule": "NEVER"}

	for _, want := range []string{"V-000001", "V-000002"} {
		code, env := api.do(caller, http.MethodPost, "/api/v1/settings/sequences/allocate", body)
		require.Equal(t, http.StatusCreated, code, "%+v", env.Error)
		assert.Equal(t, want, decode[AllocationResponse](t, env).Number)
	}

	code, env := api.do(caller, http.MethodGet, "/api/v1/settings/sequences/voucher?reset_rule=NEVER", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, decode[appfinance.CounterResponse](t, env).Value)

	// another agency starts from one
	code, env = api.do(userIn(shared.AgencyScope(uuid.New())), http.MethodPost, "/api/v1/settings/sequences/allocate", body)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "V-000001", decode[AllocationResponse](t, env).Number)
}

func TestSystemHandler_Health(t *testing.T) {
	api := newTestAPI(t)

	code, env := api.do(nil, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, code)
	health := decode[HealthResponse](t, env)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
}
