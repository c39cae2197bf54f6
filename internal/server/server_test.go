package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/restyleworks/restyle/internal/catalog"
	"github.com/restyleworks/restyle/internal/config"
	generationdomain "github.com/restyleworks/restyle/internal/generation/domain"
	ledgerdomain "github.com/restyleworks/restyle/internal/ledger/domain"
	paymentdomain "github.com/restyleworks/restyle/internal/payment/domain"
	"github.com/restyleworks/restyle/internal/providers/identity"
	"github.com/restyleworks/restyle/internal/providers/storage"
	"github.com/restyleworks/restyle/internal/ratelimit"
	unlockdomain "github.com/restyleworks/restyle/internal/unlock/domain"
	userdomain "github.com/restyleworks/restyle/internal/user/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testJWTSecret = "server-test-secret"

type fakeUserService struct {
	ensureCalls int
	lastEmail   string
}

func (f *fakeUserService) EnsureAccount(ctx context.Context, id snowflake.ID, email string) (*userdomain.User, error) {
	f.ensureCalls++
	f.lastEmail = email
	_ = ctx
	return &userdomain.User{ID: id, Email: email}, nil
}

func (f *fakeUserService) Get(ctx context.Context, id snowflake.ID) (*userdomain.User, error) {
	_ = ctx
	return &userdomain.User{ID: id, Email: "user@example.com", CreditBalance: 5}, nil
}

type fakeLedgerService struct {
	balance int64
	history []ledgerdomain.CreditTransaction
}

func (f *fakeLedgerService) GetBalance(ctx context.Context, userID snowflake.ID) (int64, error) {
	_ = ctx
	_ = userID
	return f.balance, nil
}

func (f *fakeLedgerService) Debit(ctx context.Context, req ledgerdomain.DebitRequest) (int64, error) {
	_ = ctx
	_ = req
	return f.balance, nil
}

func (f *fakeLedgerService) DebitTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.DebitRequest) (int64, error) {
	_ = ctx
	_ = tx
	_ = req
	return f.balance, nil
}

func (f *fakeLedgerService) Credit(ctx context.Context, req ledgerdomain.CreditRequest) (ledgerdomain.CreditResult, error) {
	_ = ctx
	_ = req
	return ledgerdomain.CreditResult{Balance: f.balance, Applied: true}, nil
}

func (f *fakeLedgerService) History(ctx context.Context, userID snowflake.ID, limit int) ([]ledgerdomain.CreditTransaction, error) {
	_ = ctx
	_ = userID
	_ = limit
	return f.history, nil
}

type fakeGenerationService struct {
	view          *generationdomain.View
	submitErr     error
	getErr        error
	submitCalls   int
	lastSubmit    generationdomain.SubmitRequest
	reconciledJob string
	reconcileErr  error
	cancelCalls   int
}

func (f *fakeGenerationService) Submit(ctx context.Context, req generationdomain.SubmitRequest) (*generationdomain.View, error) {
	f.submitCalls++
	f.lastSubmit = req
	_ = ctx
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.view, nil
}

func (f *fakeGenerationService) Get(ctx context.Context, userID, id snowflake.ID) (*generationdomain.View, error) {
	_ = ctx
	_ = userID
	_ = id
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.view, nil
}

func (f *fakeGenerationService) List(ctx context.Context, userID snowflake.ID, limit int) ([]generationdomain.View, error) {
	_ = ctx
	_ = userID
	_ = limit
	if f.view == nil {
		return nil, nil
	}
	return []generationdomain.View{*f.view}, nil
}

func (f *fakeGenerationService) Reconcile(ctx context.Context, in generationdomain.ReconcileInput) error {
	_ = ctx
	_ = in
	return f.reconcileErr
}

func (f *fakeGenerationService) ReconcileByJobID(ctx context.Context, jobID string, in generationdomain.ReconcileInput) error {
	f.reconciledJob = jobID
	_ = ctx
	_ = in
	return f.reconcileErr
}

func (f *fakeGenerationService) Cancel(ctx context.Context, userID, id snowflake.ID) (*generationdomain.View, error) {
	f.cancelCalls++
	_ = ctx
	_ = userID
	_ = id
	return f.view, nil
}

type fakeUnlockService struct {
	result    unlockdomain.Result
	unlockErr error
	calls     int
}

func (f *fakeUnlockService) UnlockWithCredit(ctx context.Context, userID, generationID snowflake.ID) (unlockdomain.Result, error) {
	f.calls++
	_ = ctx
	_ = userID
	_ = generationID
	if f.unlockErr != nil {
		return unlockdomain.Result{}, f.unlockErr
	}
	return f.result, nil
}

func (f *fakeUnlockService) UnlockWithPayment(ctx context.Context, generationID snowflake.ID, externalRef string) (unlockdomain.Result, error) {
	_ = ctx
	_ = generationID
	_ = externalRef
	return f.result, nil
}

type fakePaymentService struct {
	outcome     paymentdomain.WebhookOutcome
	webhookErr  error
	session     paymentdomain.CheckoutSession
	checkoutErr error
	lastReq     paymentdomain.CheckoutRequest
}

func (f *fakePaymentService) ProcessWebhook(ctx context.Context, payload []byte, headers http.Header) (paymentdomain.WebhookOutcome, error) {
	_ = ctx
	_ = payload
	_ = headers
	if f.webhookErr != nil {
		return paymentdomain.WebhookOutcome{}, f.webhookErr
	}
	return f.outcome, nil
}

func (f *fakePaymentService) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.CheckoutSession, error) {
	f.lastReq = req
	_ = ctx
	if f.checkoutErr != nil {
		return paymentdomain.CheckoutSession{}, f.checkoutErr
	}
	return f.session, nil
}

func (f *fakePaymentService) ConfirmCheckout(ctx context.Context, userID snowflake.ID, sessionID string) (paymentdomain.WebhookOutcome, error) {
	_ = ctx
	_ = userID
	_ = sessionID
	return f.outcome, nil
}

type fakeObjectStore struct {
	presignPutCalls int
	lastKey         string
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, _, _, _, _ = ctx, key, r, size, contentType
	return nil
}

func (f *fakeObjectStore) UploadFromURL(ctx context.Context, key, url string) (storage.ObjectInfo, error) {
	_, _, _ = ctx, key, url
	return storage.ObjectInfo{Key: key}, nil
}

func (f *fakeObjectStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	_, _ = ctx, expiry
	return "https://store.example.com/get/" + key, nil
}

func (f *fakeObjectStore) PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error) {
	f.presignPutCalls++
	f.lastKey = key
	_, _ = ctx, expiry
	return "https://store.example.com/put/" + key, nil
}

func (f *fakeObjectStore) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	_ = ctx
	return storage.ObjectInfo{Key: key, Size: 1}, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	_, _ = ctx, key
	return nil
}

type serverFixture struct {
	srv      *Server
	users    *fakeUserService
	ledger   *fakeLedgerService
	gens     *fakeGenerationService
	unlocks  *fakeUnlockService
	payments *fakePaymentService
	store    *fakeObjectStore
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier, err := identity.NewVerifier(testJWTSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	f := &serverFixture{
		users:    &fakeUserService{},
		ledger:   &fakeLedgerService{balance: 7},
		gens:     &fakeGenerationService{},
		unlocks:  &fakeUnlockService{},
		payments: &fakePaymentService{},
		store:    &fakeObjectStore{},
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())

	f.srv = &Server{
		engine:        router,
		cfg:           config.Config{SubmitRatePerMin: 600, SubmitBurst: 10},
		log:           zap.NewNop(),
		verifier:      verifier,
		catalog:       catalog.NewStatic(catalog.DefaultCatalog()),
		store:         f.store,
		userSvc:       f.users,
		ledgerSvc:     f.ledger,
		generationSvc: f.gens,
		unlockSvc:     f.unlocks,
		paymentSvc:    f.payments,
		submitLimiter: ratelimit.NewTokenBucket(nil),
	}
	f.srv.registerAPIRoutes()
	f.srv.registerWebhookRoutes()

	return f
}

func issueBearer(t *testing.T, userID snowflake.ID, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func doJSON(f *serverFixture, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp := httptest.NewRecorder()
	f.srv.engine.ServeHTTP(resp, req)
	return resp
}

func TestCatalogIsPublic(t *testing.T) {
	f := newTestServer(t)

	resp := doJSON(f, http.MethodGet, "/api/catalog", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Styles []struct {
			Slug string `json:"slug"`
		} `json:"styles"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Styles) == 0 {
		t.Fatal("expected catalog styles")
	}
}

func TestAuthRequired(t *testing.T) {
	f := newTestServer(t)

	resp := doJSON(f, http.MethodGet, "/api/credits", "", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}

	resp = doJSON(f, http.MethodGet, "/api/credits", "Bearer not.a.token", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a bad token, got %d", resp.Code)
	}
}

func TestAuthProvisionsAccount(t *testing.T) {
	f := newTestServer(t)
	token := issueBearer(t, snowflake.ID(42), "new@example.com")

	resp := doJSON(f, http.MethodGet, "/api/credits", token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if f.users.ensureCalls != 1 {
		t.Fatalf("expected one EnsureAccount call, got %d", f.users.ensureCalls)
	}
	if f.users.lastEmail != "new@example.com" {
		t.Fatalf("unexpected email %q", f.users.lastEmail)
	}

	var body struct {
		Balance int64 `json:"balance"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Balance != 7 {
		t.Fatalf("expected balance 7, got %d", body.Balance)
	}
}

func TestSubmitGeneration(t *testing.T) {
	f := newTestServer(t)
	f.gens.view = &generationdomain.View{Generation: generationdomain.Generation{ID: snowflake.ID(99), Status: generationdomain.StatusPending}}
	token := issueBearer(t, snowflake.ID(42), "user@example.com")

	resp := doJSON(f, http.MethodPost, "/api/generations", token,
		`{"style":"moderne","room_type":"salon","input_image_key":"inputs/42/photo.jpg"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if f.gens.submitCalls != 1 {
		t.Fatalf("expected one submit, got %d", f.gens.submitCalls)
	}
	if f.gens.lastSubmit.StyleSlug != "moderne" || f.gens.lastSubmit.UserID != snowflake.ID(42) {
		t.Fatalf("unexpected submit request %+v", f.gens.lastSubmit)
	}
}

func TestSubmitGenerationInsufficientCredits(t *testing.T) {
	f := newTestServer(t)
	f.gens.submitErr = ledgerdomain.ErrInsufficientCredits
	token := issueBearer(t, snowflake.ID(42), "user@example.com")

	resp := doJSON(f, http.MethodPost, "/api/generations", token,
		`{"style":"moderne","room_type":"salon","input_image_key":"inputs/42/photo.jpg"}`)
	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", resp.Code)
	}
}

func TestSubmitGenerationUnknownStyle(t *testing.T) {
	f := newTestServer(t)
	f.gens.submitErr = catalog.ErrUnknownStyle
	token := issueBearer(t, snowflake.ID(42), "user@example.com")

	resp := doJSON(f, http.MethodPost, "/api/generations", token,
		`{"style":"brutalist","room_type":"salon","input_image_key":"inputs/42/photo.jpg"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetGenerationErrors(t *testing.T) {
	f := newTestServer(t)
	token := issueBearer(t, snowflake.ID(42), "user@example.com")

	f.gens.getErr = generationdomain.ErrNotFound
	resp := doJSON(f, http.MethodGet, "/api/generations/123", token, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}

	f.gens.getErr = generationdomain.ErrForbidden
	resp = doJSON(f, http.MethodGet, "/api/generations/123", token, "")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}

	// A non-numeric id never reaches the service.
	resp = doJSON(f, http.MethodGet, "/api/generations/abc", token, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a malformed id, got %d", resp.Code)
	}
}

func TestUnlockGeneration(t *testing.T) {
	f := newTestServer(t)
	f.unlocks.result = unlockdomain.Result{GenerationID: snowflake.ID(123), Balance: 4}
	token := issueBearer(t, snowflake.ID(42), "user@example.com")

	resp := doJSON(f, http.MethodPost, "/api/generations/123/unlock", token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if f.unlocks.calls != 1 {
		t.Fatalf("expected one unlock call, got %d", f.unlocks.calls)
	}

	f.unlocks.unlockErr = unlockdomain.ErrNotCompleted
	resp = doJSON(f, http.MethodPost, "/api/generations/123/unlock", token, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unfinished generation, got %d", resp.Code)
	}

	f.unlocks.unlockErr = ledgerdomain.ErrInsufficientCredits
	resp = doJSON(f, http.MethodPost, "/api/generations/123/unlock", token, "")
	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", resp.Code)
	}
}

func TestCreateUpload(t *testing.T) {
	f := newTestServer(t)
	token := issueBearer(t, snowflake.ID(42), "user@example.com")

	resp := doJSON(f, http.MethodPost, "/api/uploads", token, `{"filename":"room.jpg"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if f.store.presignPutCalls != 1 {
		t.Fatalf("expected one presign, got %d", f.store.presignPutCalls)
	}

	var body createUploadResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Key == "" || body.UploadURL == "" {
		t.Fatalf("incomplete response %+v", body)
	}

	resp = doJSON(f, http.MethodPost, "/api/uploads", token, `{"filename":"room.exe"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unsupported extension, got %d", resp.Code)
	}
}

func TestCreateCheckout(t *testing.T) {
	f := newTestServer(t)
	f.payments.session = paymentdomain.CheckoutSession{SessionID: "cs_test_1", URL: "https://checkout.example.com/cs_test_1"}
	token := issueBearer(t, snowflake.ID(42), "user@example.com")

	resp := doJSON(f, http.MethodPost, "/api/checkout", token, `{"kind":"credit_pack","pack":"studio"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if f.payments.lastReq.Kind != paymentdomain.CheckoutCreditPack || f.payments.lastReq.PackSlug != "studio" {
		t.Fatalf("unexpected checkout request %+v", f.payments.lastReq)
	}

	resp = doJSON(f, http.MethodPost, "/api/checkout", token, `{"kind":"hd_unlock","generation_id":"123"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if f.payments.lastReq.Kind != paymentdomain.CheckoutHDUnlock || f.payments.lastReq.GenerationID != snowflake.ID(123) {
		t.Fatalf("unexpected checkout request %+v", f.payments.lastReq)
	}

	resp = doJSON(f, http.MethodPost, "/api/checkout", token, `{"kind":"gift_card"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown kind, got %d", resp.Code)
	}

	resp = doJSON(f, http.MethodPost, "/api/checkout", token, `{"kind":"hd_unlock"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing generation id, got %d", resp.Code)
	}
}

func TestPaymentWebhook(t *testing.T) {
	f := newTestServer(t)
	f.payments.outcome = paymentdomain.WebhookOutcome{Processed: true, EventType: "checkout.session.completed"}

	resp := doJSON(f, http.MethodPost, "/api/payments/webhooks/stripe", "", `{"id":"evt_1"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	f.payments.webhookErr = paymentdomain.ErrInvalidSignature
	resp = doJSON(f, http.MethodPost, "/api/payments/webhooks/stripe", "", `{"id":"evt_1"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad signature, got %d", resp.Code)
	}
}

func TestInferenceWebhook(t *testing.T) {
	f := newTestServer(t)

	payload := `{"id":"job-1","status":"succeeded","output":["https://cdn.example.com/out.png"]}`
	resp := doJSON(f, http.MethodPost, "/api/inference/webhooks", "", payload)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if f.gens.reconciledJob != "job-1" {
		t.Fatalf("expected reconcile for job-1, got %q", f.gens.reconciledJob)
	}

	// A delivery for a job we no longer track is acknowledged so the
	// provider stops retrying.
	f.gens.reconcileErr = generationdomain.ErrNotFound
	resp = doJSON(f, http.MethodPost, "/api/inference/webhooks", "", payload)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for an unknown job, got %d", resp.Code)
	}

	resp = doJSON(f, http.MethodPost, "/api/inference/webhooks", "", `{"status":"succeeded"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a payload without a job id, got %d", resp.Code)
	}
}

func TestCreditHistory(t *testing.T) {
	f := newTestServer(t)
	f.ledger.history = []ledgerdomain.CreditTransaction{
		{ID: snowflake.ID(2), Amount: -1, Type: ledgerdomain.TypeGeneration},
		{ID: snowflake.ID(1), Amount: 10, Type: ledgerdomain.TypePurchase},
	}
	token := issueBearer(t, snowflake.ID(42), "user@example.com")

	resp := doJSON(f, http.MethodGet, "/api/credits/history", token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Transactions []ledgerdomain.CreditTransaction `json:"transactions"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(body.Transactions))
	}

	resp = doJSON(f, http.MethodGet, "/api/credits/history?limit=oops", token, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad limit, got %d", resp.Code)
	}
}
