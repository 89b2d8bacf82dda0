package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/middleware"
	"github.com/iliyamo/slot-reservation/internal/model"
	"github.com/iliyamo/slot-reservation/internal/payment"
	"github.com/iliyamo/slot-reservation/internal/repository"
	"github.com/iliyamo/slot-reservation/internal/service"
	"github.com/iliyamo/slot-reservation/internal/utils"
)

type fakeCustomer struct {
	cartIn     service.SetCartInput
	checkoutIn service.CheckoutInput
	checkout   error
	receiptErr error
}

func (f *fakeCustomer) SetCartContents(_ context.Context, userID uint64, in service.SetCartInput) (*service.CartResult, error) {
	f.cartIn = in
	return &service.CartResult{CartID: 10, ServiceID: in.ServiceID, Added: in.SlotIDs}, nil
}

func (f *fakeCustomer) ReadHeldSlots(context.Context, uint64) ([]model.HeldSlot, error) {
	return nil, nil
}

func (f *fakeCustomer) Checkout(_ context.Context, _ uint64, in service.CheckoutInput) (*service.CheckoutResult, error) {
	f.checkoutIn = in
	if f.checkout != nil {
		return nil, f.checkout
	}
	return &service.CheckoutResult{TransactionID: 5, ReservationIDs: []uint64{1, 2}, Total: "8.00", Tokens: "12.00", FundedBy: service.FundedByTokens}, nil
}

func (f *fakeCustomer) BeginTopup(_ context.Context, _ uint64, in service.TopupInput) (*service.TopupResult, error) {
	return &service.TopupResult{ClientSecret: "pi_1_secret_x", TransactionID: 9, Tokens: in.Tokens, Amount: 1000}, nil
}

func (f *fakeCustomer) BookingReceipt(_ context.Context, _, txID uint64) ([]byte, string, error) {
	if f.receiptErr != nil {
		return nil, "", f.receiptErr
	}
	return []byte("%PDF-1.3"), "receipt-5.pdf", nil
}

func asUser(id uint64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id != 0 {
				c.Set(middleware.ContextUserID, id)
			}
			return next(c)
		}
	}
}

func customerEcho(f *fakeCustomer, userID uint64) *echo.Echo {
	h := NewCustomerHandler(f, f, f, f, nil)
	e := echo.New()
	g := e.Group("/v1", asUser(userID))
	g.PUT("/cart", h.SetCart)
	g.GET("/cart", h.GetCart)
	g.POST("/checkout", h.DoCheckout)
	g.POST("/topup", h.BeginTopup)
	g.GET("/transactions/:id/receipt", h.Receipt)
	return e
}

func do(e *echo.Echo, method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestSetCart(t *testing.T) {
	f := &fakeCustomer{}
	rec := do(customerEcho(f, 1), http.MethodPut, "/v1/cart", `{"service_id":1,"slot_ids":[101,102]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if f.cartIn.ServiceID == nil || *f.cartIn.ServiceID != 1 || len(f.cartIn.SlotIDs) != 2 {
		t.Errorf("input = %+v", f.cartIn)
	}
	if slots, ok := decode(t, rec)["slots"].([]any); !ok || len(slots) != 0 {
		t.Errorf("slots should render as an empty list")
	}
}

func TestSetCartRejections(t *testing.T) {
	tests := []struct {
		name   string
		userID uint64
		body   string
		status int
		code   string
	}{
		{"anonymous", 0, `{}`, http.StatusUnauthorized, apperror.CodeUnauthorized},
		{"unknown field", 1, `{"slots":[1]}`, http.StatusBadRequest, apperror.CodeValidation},
		{"malformed", 1, `{"slot_ids":`, http.StatusBadRequest, apperror.CodeValidation},
		{"trailing data", 1, `{} {}`, http.StatusBadRequest, apperror.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(customerEcho(&fakeCustomer{}, tt.userID), http.MethodPut, "/v1/cart", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := decode(t, rec)["code"]; got != tt.code {
				t.Errorf("code = %v, want %s", got, tt.code)
			}
		})
	}
}

func TestCheckoutEmptyBodyPaysWithTokens(t *testing.T) {
	f := &fakeCustomer{}
	rec := do(customerEcho(f, 1), http.MethodPost, "/v1/checkout", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if f.checkoutIn.PlanID != nil {
		t.Errorf("plan id = %v, want nil", *f.checkoutIn.PlanID)
	}
	if got := decode(t, rec)["funded_by"]; got != "tokens" {
		t.Errorf("funded_by = %v", got)
	}
}

func TestCheckoutErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"insufficient funds", apperror.InsufficientFunds("not enough tokens"), http.StatusBadRequest, apperror.CodeInsufficientFunds, "not enough tokens"},
		{"capacity", apperror.CapacityExceeded("slot is full"), http.StatusBadRequest, apperror.CodeCapacityExceeded, "slot is full"},
		{"plan", apperror.PlanIneligible("plan does not cover this service"), http.StatusBadRequest, apperror.CodePlanIneligible, "plan does not cover this service"},
		{"busy", apperror.Conflict("retry"), http.StatusConflict, apperror.CodeConflict, "retry"},
		{"store", apperror.Store("checkout", errors.New("deadlock found")), http.StatusInternalServerError, apperror.CodeStore, "internal server error"},
		{"untyped", errors.New("boom"), http.StatusInternalServerError, apperror.CodeStore, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(customerEcho(&fakeCustomer{checkout: tt.err}, 1), http.MethodPost, "/v1/checkout", `{"plan_id":3}`)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			body := decode(t, rec)
			if body["code"] != tt.code || body["error"] != tt.message {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestInsufficientFundsDetails(t *testing.T) {
	err := apperror.InsufficientFunds("not enough tokens").
		WithDetails(map[string]any{"required": "8.00", "available": "3.00"})
	rec := do(customerEcho(&fakeCustomer{checkout: err}, 1), http.MethodPost, "/v1/checkout", `{}`)
	details, _ := decode(t, rec)["details"].(map[string]any)
	if details["required"] != "8.00" || details["available"] != "3.00" {
		t.Errorf("details = %v", details)
	}
}

func TestBeginTopup(t *testing.T) {
	rec := do(customerEcho(&fakeCustomer{}, 1), http.MethodPost, "/v1/topup", `{"tokens":"10.00"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["client_secret"] != "pi_1_secret_x" || body["tokens"] != "10.00" {
		t.Errorf("body = %v", body)
	}
}

func TestReceipt(t *testing.T) {
	rec := do(customerEcho(&fakeCustomer{}, 1), http.MethodGet, "/v1/transactions/5/receipt", "")
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != "application/pdf" {
		t.Fatalf("status = %d, content type %q", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "receipt-5.pdf") {
		t.Errorf("disposition = %q", rec.Header().Get(echo.HeaderContentDisposition))
	}

	rec = do(customerEcho(&fakeCustomer{receiptErr: apperror.Forbidden("not your transaction")}, 2), http.MethodGet, "/v1/transactions/5/receipt", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("other user status = %d", rec.Code)
	}
	rec = do(customerEcho(&fakeCustomer{}, 1), http.MethodGet, "/v1/transactions/abc/receipt", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}
}

type fakePayments struct {
	got   []service.PaymentSucceeded
	seen  map[string]bool
	fails error
}

func (f *fakePayments) ApplyPaymentSucceeded(_ context.Context, ev service.PaymentSucceeded) (bool, error) {
	if f.fails != nil {
		return false, f.fails
	}
	f.got = append(f.got, ev)
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	applied := !f.seen[ev.ExternalPaymentID]
	f.seen[ev.ExternalPaymentID] = true
	return applied, nil
}

func TestPaymentWebhook(t *testing.T) {
	const secret = "whsec"
	p := &fakePayments{}
	h := NewWebhookHandler(p, secret, nil)
	e := echo.New()
	e.POST("/v1/webhooks/payment", h.Payment)

	succeeded := `{"id":"evt_1","type":"payment_succeeded","data":{"payment_id":"pi_1","amount":1000}}`
	refunded := `{"id":"evt_2","type":"charge_refunded","data":{"payment_id":"pi_1"}}`

	rec := do(e, http.MethodPost, "/v1/webhooks/payment", succeeded, payment.SignatureHeader, "sha256=00")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad signature status = %d", rec.Code)
	}
	rec = do(e, http.MethodPost, "/v1/webhooks/payment", succeeded)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing signature status = %d", rec.Code)
	}

	rec = do(e, http.MethodPost, "/v1/webhooks/payment", refunded, payment.SignatureHeader, payment.Sign(secret, []byte(refunded)))
	if rec.Code != http.StatusOK || decode(t, rec)["received"] != true {
		t.Fatalf("unknown type: %d %s", rec.Code, rec.Body.String())
	}
	if len(p.got) != 0 {
		t.Fatalf("unknown type reached the service")
	}

	sig := payment.Sign(secret, []byte(succeeded))
	first := decode(t, do(e, http.MethodPost, "/v1/webhooks/payment", succeeded, payment.SignatureHeader, sig))
	second := decode(t, do(e, http.MethodPost, "/v1/webhooks/payment", succeeded, payment.SignatureHeader, sig))
	if first["applied"] != true || second["applied"] != false || second["received"] != true {
		t.Errorf("deliveries = %v, %v", first, second)
	}
	if len(p.got) != 2 || p.got[0].ExternalPaymentID != "pi_1" || p.got[0].AmountCents != 1000 {
		t.Errorf("service calls = %+v", p.got)
	}
}

func TestPaymentWebhookStoreFailure(t *testing.T) {
	const secret = "whsec"
	h := NewWebhookHandler(&fakePayments{fails: apperror.Store("apply payment", errors.New("down"))}, secret, nil)
	e := echo.New()
	e.POST("/hook", h.Payment)
	body := `{"id":"evt_1","type":"payment_succeeded","data":{"payment_id":"pi_1","amount":1000}}`
	rec := do(e, http.MethodPost, "/hook", body, payment.SignatureHeader, payment.Sign(secret, []byte(body)))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 so the processor retries", rec.Code)
	}
}

func TestPaymentWebhookWithoutSecret(t *testing.T) {
	p := &fakePayments{}
	h := NewWebhookHandler(p, "", nil)
	e := echo.New()
	e.POST("/hook", h.Payment)
	body := `{"id":"evt_1","type":"payment_succeeded","data":{"payment_id":"pi_1","amount":1000}}`
	rec := do(e, http.MethodPost, "/hook", body, payment.SignatureHeader, payment.Sign("", []byte(body)))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if len(p.got) != 0 {
		t.Errorf("forged event reached the service: %+v", p.got)
	}
}

type fakeInventory struct {
	q service.SlotQuery
}

func (f *fakeInventory) GetSlot(_ context.Context, id uint64) (*model.SlotDetail, error) {
	if id != 101 {
		return nil, apperror.NotFoundWithID("slot", id)
	}
	d := &model.SlotDetail{ServiceID: 1, ServiceTitle: "Padel court 1"}
	d.ID = 101
	d.PriceCents = 400
	return d, nil
}

func (f *fakeInventory) ListCandidateSlots(_ context.Context, _ uint64, q service.SlotQuery) ([]service.SlotView, error) {
	f.q = q
	return []service.SlotView{{ID: 101, Price: "4.00", Available: true}}, nil
}

func TestPublicSlots(t *testing.T) {
	inv := &fakeInventory{}
	h := NewPublicHandler(inv, nil)
	e := echo.New()
	e.GET("/v1/services/:id/slots", h.ListSlots)
	e.GET("/v1/slots/:id", h.GetSlot)

	rec := do(e, http.MethodGet, "/v1/services/1/slots?from=2026-10-15&to=2026-10-16", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if inv.q.From != "2026-10-15" || inv.q.To != "2026-10-16" {
		t.Errorf("query = %+v", inv.q)
	}
	if rec := do(e, http.MethodGet, "/v1/services/x/slots", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad service id status = %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/v1/slots/101", ""); rec.Code != http.StatusOK {
		t.Errorf("get slot status = %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/v1/slots/9", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing slot status = %d", rec.Code)
	}
}

type fakeSchedules struct{ owner uint64 }

func (f *fakeSchedules) GenerateSlotDefinitions(_ context.Context, ownerID, dayDefID uint64, in service.SlotDefinitionsInput) ([]model.SlotDefinition, error) {
	if ownerID != f.owner {
		return nil, apperror.Forbidden("not your schedule")
	}
	return []model.SlotDefinition{{ID: 1, DayDefinitionID: dayDefID, DurationMinutes: in.DurationMinutes, PriceCents: 400, Capacity: in.Capacity}}, nil
}

func (f *fakeSchedules) ExpandDates(_ context.Context, ownerID, scheduleID uint64, in service.ExpandInput) (*service.ExpandResult, error) {
	if ownerID != f.owner {
		return nil, apperror.Forbidden("not your schedule")
	}
	return &service.ExpandResult{ScheduleID: scheduleID}, nil
}

func TestOwnerEndpoints(t *testing.T) {
	defs := `{"start_time":"08:00","end_time":"10:00","duration":60,"price":"4.00","capacity":1}`
	for _, tt := range []struct {
		user   uint64
		status int
	}{{7, http.StatusCreated}, {8, http.StatusForbidden}} {
		h := NewOwnerHandler(&fakeSchedules{owner: 7}, nil)
		e := echo.New()
		g := e.Group("/v1/owner", asUser(tt.user))
		g.POST("/day-definitions/:id/slot-definitions", h.GenerateSlotDefinitions)
		g.POST("/schedules/:id/expand", h.ExpandDates)

		if rec := do(e, http.MethodPost, "/v1/owner/day-definitions/3/slot-definitions", defs); rec.Code != tt.status {
			t.Errorf("user %d generate status = %d, want %d", tt.user, rec.Code, tt.status)
		}
		rec := do(e, http.MethodPost, "/v1/owner/schedules/1/expand", `{"from":"2026-10-15","to":"2026-10-30"}`)
		if rec.Code != tt.status {
			t.Errorf("user %d expand status = %d, want %d", tt.user, rec.Code, tt.status)
		}
		if tt.status == http.StatusCreated {
			if dates, ok := decode(t, rec)["dates"].([]any); !ok || len(dates) != 0 {
				t.Errorf("dates should render as an empty list")
			}
		}
	}
}

type fakeAccounts struct {
	users map[string]*model.User
}

func (f *fakeAccounts) Create(_ context.Context, email, password, role string, cost int) (uint64, error) {
	if _, ok := f.users[email]; ok {
		return 0, repository.ErrEmailExists
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	id := uint64(len(f.users) + 1)
	f.users[email] = &model.User{ID: id, Email: email, PasswordHash: hash, Role: role, IsActive: true}
	return id, nil
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccounts) GetByID(_ context.Context, id uint64) (*model.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func TestAuthFlow(t *testing.T) {
	const secret = "jwt-secret"
	h := NewAuthHandler(AuthConfig{JWTSecret: secret, AccessTTLMin: 5, BcryptCost: 4}, &fakeAccounts{users: map[string]*model.User{}}, nil, nil)
	e := echo.New()
	e.POST("/v1/auth/register", h.Register)
	e.POST("/v1/auth/login", h.Login)
	e.GET("/v1/me", h.Me, middleware.JWTAuth(secret))

	rec := do(e, http.MethodPost, "/v1/auth/register", `{"email":"Ana@Example.com","password":"password1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}
	user := decode(t, rec)["user"].(map[string]any)
	if user["email"] != "ana@example.com" || user["role"] != RoleCustomer {
		t.Errorf("user = %v", user)
	}

	if rec := do(e, http.MethodPost, "/v1/auth/register", `{"email":"ana@example.com","password":"password1"}`); rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/v1/auth/register", `{"email":"bob@example.com","password":"short"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("short password status = %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/v1/auth/login", `{"email":"ana@example.com","password":"wrong-pass"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/v1/auth/login", `{"email":"nobody@example.com","password":"password1"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown email status = %d", rec.Code)
	}

	rec = do(e, http.MethodPost, "/v1/auth/login", `{"email":"ana@example.com","password":"password1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}
	token := decode(t, rec)["access"].(map[string]any)["token"].(string)

	rec = do(e, http.MethodGet, "/v1/me", "", "Authorization", "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}
	if me := decode(t, rec); me["email"] != "ana@example.com" || me["tokens"] != "0.00" {
		t.Errorf("me = %v", me)
	}
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/ok", Health(pinger{}))
	e.GET("/down", Health(pinger{err: errors.New("refused")}))
	e.GET("/bare", Health(nil))
	for path, want := range map[string]int{"/ok": 200, "/down": 503, "/bare": 200} {
		if rec := do(e, http.MethodGet, path, ""); rec.Code != want {
			t.Errorf("%s status = %d, want %d", path, rec.Code, want)
		}
	}
}
