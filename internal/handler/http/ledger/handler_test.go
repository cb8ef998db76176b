package ledger_http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"ledger/internal/app/ledger"
	"ledger/internal/clock"
	"ledger/internal/domain"
	"ledger/internal/lock"
	"ledger/internal/metrics"
	"ledger/internal/processing"
	"ledger/internal/uow"
)

var testStart = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type testServer struct {
	app    *ledger.Application
	clock  *clock.Mock
	server *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clk := clock.NewMock(testStart)
	app := ledger.NewApplication(ledger.MemoryStores(clk), uow.NewManager(nil, logger), lock.NewKeyedMutex(), clk,
		metrics.NewCollector(), ledger.DefaultOptions(), logger)
	srv := httptest.NewServer(NewRouter(app.Service, app.Processors, app.Metrics.Handler(), []string{"*"}, logger))
	t.Cleanup(srv.Close)
	return &testServer{app: app, clock: clk, server: srv}
}

func (s *testServer) drain(t *testing.T) {
	t.Helper()
	if err := s.app.Processors.Drain(context.Background()); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func (s *testServer) createAccount(t *testing.T, email string) uuid.UUID {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/accounts", CreateAccountRequest{EmailAddress: email})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 creating %s, got %d", email, resp.StatusCode)
	}
	return decode[AccountResponse](t, resp).ID
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	if resp := s.do(t, http.MethodGet, "/health", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestCreateAccount_ReturnsLocationAndView(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/accounts", CreateAccountRequest{EmailAddress: "ada@example.org"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decode[AccountResponse](t, resp)
	if got := resp.Header.Get("Location"); got != "/accounts/"+created.ID.String() {
		t.Fatalf("unexpected Location header %q", got)
	}

	s.drain(t)
	resp = s.do(t, http.MethodGet, "/accounts/"+created.ID.String(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	view := decode[domain.AccountView](t, resp)
	if view.EmailAddress != "ada@example.org" || view.Balance != 0 {
		t.Fatalf("unexpected view: %+v", view)
	}

	resp = s.do(t, http.MethodGet, "/accounts", nil)
	if views := decode[[]domain.AccountView](t, resp); len(views) != 1 {
		t.Fatalf("expected one account listed, got %d", len(views))
	}
}

func TestCreateAccount_EchoesStoredEmail(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/accounts", CreateAccountRequest{EmailAddress: "  grace@example.org\t"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decode[AccountResponse](t, resp)
	if created.EmailAddress != "grace@example.org" {
		t.Fatalf("expected the trimmed email in the response, got %q", created.EmailAddress)
	}

	s.drain(t)
	view := decode[domain.AccountView](t, s.do(t, http.MethodGet, "/accounts/"+created.ID.String(), nil))
	if view.EmailAddress != created.EmailAddress {
		t.Fatalf("expected the response to match the stored account, got %q and %q", created.EmailAddress, view.EmailAddress)
	}
}

func TestCreateAccount_ErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	s.createAccount(t, "dup@example.org")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"duplicate email", CreateAccountRequest{EmailAddress: "dup@example.org"}, http.StatusConflict},
		{"missing email", CreateAccountRequest{}, http.StatusBadRequest},
		{"malformed body", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := s.do(t, http.MethodPost, "/accounts", tt.body); resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestGetAccount_NotFoundAndBadID(t *testing.T) {
	s := newTestServer(t)
	if resp := s.do(t, http.MethodGet, "/accounts/"+uuid.NewString(), nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if resp := s.do(t, http.MethodGet, "/accounts/not-a-uuid", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreatePayment_SettlesThroughSaga(t *testing.T) {
	s := newTestServer(t)
	src := s.createAccount(t, "src@example.org")
	dst := s.createAccount(t, "dst@example.org")

	resp := s.do(t, http.MethodPost, "/payments", CreatePaymentRequest{SourceBankAccountID: src, DestinationBankAccountID: dst, Amount: 40})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	id := decode[IDResponse](t, resp).ID
	s.drain(t)

	payment := decode[domain.PaymentView](t, s.do(t, http.MethodGet, "/payments/"+id.String(), nil))
	if payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", payment.Status)
	}
	dest := decode[domain.AccountView](t, s.do(t, http.MethodGet, "/accounts/"+dst.String(), nil))
	if dest.Balance != 40 {
		t.Fatalf("expected destination balance 40, got %d", dest.Balance)
	}
	if list := decode[[]domain.PaymentView](t, s.do(t, http.MethodGet, "/payments", nil)); len(list) != 1 {
		t.Fatalf("expected one payment listed, got %d", len(list))
	}

	if resp := s.do(t, http.MethodGet, "/scheduled-payments/"+id.String(), nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected an immediate payment to be hidden from scheduled lookups, got %d", resp.StatusCode)
	}
}

func TestCreatePayment_RejectsNonPositiveAmount(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, http.MethodPost, "/payments", CreatePaymentRequest{SourceBankAccountID: uuid.New(), DestinationBankAccountID: uuid.New()})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestScheduledPayment_CreateGetCancel(t *testing.T) {
	s := newTestServer(t)
	src := s.createAccount(t, "sched-src@example.org")
	dst := s.createAccount(t, "sched-dst@example.org")

	tooSoon := CreateScheduledPaymentRequest{
		CreatePaymentRequest:     CreatePaymentRequest{SourceBankAccountID: src, DestinationBankAccountID: dst, Amount: 5},
		SettlementInitiationTime: testStart.Add(30 * time.Second),
	}
	if resp := s.do(t, http.MethodPost, "/scheduled-payments", tooSoon); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a settlement under a minute ahead, got %d", resp.StatusCode)
	}

	req := tooSoon
	req.SettlementInitiationTime = testStart.Add(5 * time.Minute)
	resp := s.do(t, http.MethodPost, "/scheduled-payments", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	id := decode[IDResponse](t, resp).ID
	s.drain(t)

	view := decode[domain.PaymentView](t, s.do(t, http.MethodGet, "/scheduled-payments/"+id.String(), nil))
	if view.Status != domain.PaymentStatusCreated || view.Kind != domain.PaymentKindScheduled {
		t.Fatalf("unexpected view: %+v", view)
	}

	if resp := s.do(t, http.MethodDelete, "/scheduled-payments/"+id.String(), nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	s.drain(t)
	view = decode[domain.PaymentView](t, s.do(t, http.MethodGet, "/scheduled-payments/"+id.String(), nil))
	if view.Status != domain.PaymentStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", view.Status)
	}
	pending, err := s.app.Deadlines.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending returned error: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected the deadline to be cancelled, %d pending", len(pending))
	}
}

func TestCancelScheduledPayment_UnknownPayment(t *testing.T) {
	s := newTestServer(t)
	if resp := s.do(t, http.MethodDelete, "/scheduled-payments/"+uuid.NewString(), nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDemoRoutes(t *testing.T) {
	s := newTestServer(t)

	perCommand := decode[ledger.BatchResult](t, s.do(t, http.MethodGet, "/demo/set-based-validation/consistency-at-aggregate-threshold", nil))
	if len(perCommand.Created) < 2 || len(perCommand.Rejected) != 1 {
		t.Fatalf("unexpected per-command report: %+v", perCommand)
	}

	perTx := decode[ledger.BatchResult](t, s.do(t, http.MethodGet, "/demo/set-based-validation/consistency-at-multiple-aggregate-threshold", nil))
	if len(perTx.Created) != 0 || len(perTx.Rejected) < 3 {
		t.Fatalf("unexpected per-transaction report: %+v", perTx)
	}

	report := decode[ledger.SnapshotReport](t, s.do(t, http.MethodGet, "/demo/trigger-account-snapshot", nil))
	if report.Snapshots != 3 {
		t.Fatalf("expected 3 snapshots, got %+v", report)
	}
}

func TestOps_StatusAndRestart(t *testing.T) {
	s := newTestServer(t)
	s.createAccount(t, "ops@example.org")
	s.drain(t)

	statuses := decode[[]processing.Status](t, s.do(t, http.MethodGet, "/_ops/tep", nil))
	if len(statuses) != 3 {
		t.Fatalf("expected 3 processors, got %d", len(statuses))
	}
	for _, st := range statuses {
		if st.Position == 0 {
			t.Errorf("processor %s did not advance", st.Name)
		}
	}

	resp := s.do(t, http.MethodPost, "/_ops/account-view/restart", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	p, err := s.app.Processors.Get("account-view")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if p.Position() != 0 {
		t.Fatalf("expected the position to be reset, got %d", p.Position())
	}

	if resp := s.do(t, http.MethodPost, "/_ops/settlement-saga/restart", nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for the saga processor, got %d", resp.StatusCode)
	}
	if resp := s.do(t, http.MethodPost, "/_ops/nope/restart", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown processor, got %d", resp.StatusCode)
	}

	all := decode[RestartResponse](t, s.do(t, http.MethodPost, "/_ops/restart-all", nil))
	if strings.Join(all.Restarted, ",") != "account-view,payment-view" {
		t.Fatalf("unexpected restarted set: %v", all.Restarted)
	}

	s.drain(t)
	if views := decode[[]domain.AccountView](t, s.do(t, http.MethodGet, "/accounts", nil)); len(views) != 1 {
		t.Fatalf("expected the view to be rebuilt with one account, got %d", len(views))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.createAccount(t, "metrics@example.org")

	resp := s.do(t, http.MethodGet, "/metrics", nil)
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), `ledger_commands_total{command="CreateAccount",outcome="ok"} 1`) {
		t.Fatalf("expected the command counter in the metrics output")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", domain.ErrValidation), http.StatusBadRequest},
		{&domain.EmailAddressInUseError{Email: "x"}, http.StatusConflict},
		{domain.ErrStateConflict, http.StatusConflict},
		{domain.ErrPaymentNotFound, http.StatusNotFound},
		{processing.ErrNotResettable, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
