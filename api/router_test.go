package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/learngate"
	"github.com/xraph/learngate/auth"
	"github.com/xraph/learngate/gemini"
	"github.com/xraph/learngate/mpesa"
	"github.com/xraph/learngate/payment"
	"github.com/xraph/learngate/plan"
	"github.com/xraph/learngate/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ──────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────

type staticVerifier map[string]string

func (v staticVerifier) Verify(_ context.Context, token string) (*auth.Claims, error) {
	sub, ok := v[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{Subject: sub}, nil
}

type fakeGenerator struct {
	mu   sync.Mutex
	text string
	err  error
	reqs []gemini.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req gemini.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.text, f.err
}

func (f *fakeGenerator) last() gemini.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

// fakeDaraja parses real Daraja payloads but never leaves the process.
type fakeDaraja struct {
	status *payment.StatusResult
}

func (fakeDaraja) Name() string { return "mpesa" }

func (fakeDaraja) Validate(phone string, amount float64) (string, error) {
	return mpesa.Validate(phone, amount)
}

func (fakeDaraja) Push(_ context.Context, _ payment.PushRequest) (*payment.PushResponse, error) {
	return &payment.PushResponse{
		Accepted:          true,
		CheckoutRequestID: "ws_CO_191220191020363925",
		MerchantRequestID: "29115-34620561-1",
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

func (f fakeDaraja) QueryStatus(_ context.Context, _ string) (*payment.StatusResult, error) {
	if f.status == nil {
		return nil, errors.New("unavailable")
	}
	return f.status, nil
}

func (fakeDaraja) ParseCallback(body []byte) (*payment.CallbackResult, error) {
	return mpesa.ParseCallback(body)
}

func (fakeDaraja) ParseTimeout(body []byte) (string, error) {
	return mpesa.ParseTimeout(body)
}

type env struct {
	gw     *learngate.Gateway
	gen    *fakeGenerator
	router *gin.Engine
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	gen := &fakeGenerator{text: `[{"title":"Fractions"}]`}
	gw := learngate.New(memory.New(),
		learngate.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		learngate.WithGenerator(gen),
		learngate.WithProvider(fakeDaraja{}),
		learngate.WithClock(func() time.Time { return time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC) }),
	)
	if err := gw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = gw.Stop() })

	opts = append([]Option{WithVerifier(staticVerifier{"good-token": "user-1", "other-token": "user-2"})}, opts...)
	return &env{gw: gw, gen: gen, router: New(gw, opts...).Router()}
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func (e *env) usage(t *testing.T, userID, feature string) int64 {
	t.Helper()
	sub, err := e.gw.GetSubscription(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if c := sub.Usage[feature]; c != nil {
		return c.Count
	}
	return 0
}

var profile = map[string]any{
	"name":              "Amina",
	"country":           "Kenya",
	"educationalSystem": "CBC",
	"strengths":         "Mathematics",
	"weaknesses":        "Essay writing",
}

// ──────────────────────────────────────────────────
// Public routes
// ──────────────────────────────────────────────────

func TestRootAndHealth(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "Server running" {
		t.Fatalf("root: %d %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/", "", nil)
	if !strings.HasPrefix(rec.Header().Get(HeaderRequestID), "req_") {
		t.Fatalf("generated request id = %q", rec.Header().Get(HeaderRequestID))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	out := httptest.NewRecorder()
	e.router.ServeHTTP(out, req)
	if out.Header().Get(HeaderRequestID) != "abc-123" {
		t.Fatalf("propagated request id = %q", out.Header().Get(HeaderRequestID))
	}
}

func TestCORSAllowList(t *testing.T) {
	e := newEnv(t, WithAllowedOrigins("https://app.example.com/"))

	for origin, allowed := range map[string]bool{
		"https://app.example.com":  true,
		"https://evil.example.com": false,
	} {
		req := httptest.NewRequest(http.MethodOptions, "/api/ai/tutor-chat", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		e.router.ServeHTTP(rec, req)

		got := rec.Header().Get("Access-Control-Allow-Origin") == origin
		if got != allowed {
			t.Errorf("origin %s: allowed=%v, want %v (status %d)", origin, got, allowed, rec.Code)
		}
	}
}

// ──────────────────────────────────────────────────
// AI routes
// ──────────────────────────────────────────────────

func TestAIRoutesRequireAuth(t *testing.T) {
	e := newEnv(t)

	for _, token := range []string{"", "bad-token"} {
		rec := e.do(t, http.MethodPost, "/api/ai/generate-tasks", token, map[string]any{"studentProfile": profile})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: expected 401, got %d", token, rec.Code)
		}
	}
	if _, err := e.gw.GetSubscription(context.Background(), "user-1"); !learngate.IsNotFound(err) {
		t.Fatalf("unauthenticated request touched quota state: %v", err)
	}
}

func TestGenerateTasks(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/ai/generate-tasks", "good-token", map[string]any{"studentProfile": profile})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["success"] != true || body["content"] != `[{"title":"Fractions"}]` {
		t.Fatalf("unexpected body: %v", body)
	}
	if got := e.usage(t, "user-1", plan.FeatureTaskGeneration); got != 1 {
		t.Fatalf("usage = %d, want 1", got)
	}
	if req := e.gen.last(); !strings.Contains(req.UserContent, "- Country: Kenya") {
		t.Fatalf("profile missing from prompt: %q", req.UserContent)
	}
}

func TestMissingProfileIsNotCharged(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/ai/analyze-skills", "good-token", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if decode(t, rec)["error"] != missingProfile {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	rec = e.do(t, http.MethodPost, "/api/ai/analyze-skills", "good-token", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %d", rec.Code)
	}
}

func TestTutorChatQuota(t *testing.T) {
	e := newEnv(t)
	req := map[string]any{"studentProfile": profile, "userMessage": "What is a fraction?"}

	for i := 0; i < 20; i++ {
		rec := e.do(t, http.MethodPost, "/api/ai/tutor-chat", "good-token", req)
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d", i+1, rec.Code)
		}
	}
	if got := e.gen.last().MaxOutputTokens; got != tutorTokens {
		t.Fatalf("tutor budget = %d", got)
	}

	rec := e.do(t, http.MethodPost, "/api/ai/tutor-chat", "good-token", req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["error"] != "Usage limit exceeded" || body["feature"] != "aiTutorQueries" ||
		body["limit"] != float64(20) || body["period"] != "daily" || body["upgradeRequired"] != true {
		t.Fatalf("unexpected body: %v", body)
	}
	want := "You've reached your daily limit of 20 for aiTutorQueries. Upgrade to Premium for unlimited access."
	if body["message"] != want {
		t.Fatalf("message = %q", body["message"])
	}

	// Another user is unaffected.
	if rec := e.do(t, http.MethodPost, "/api/ai/tutor-chat", "other-token", req); rec.Code != http.StatusOK {
		t.Fatalf("other user: expected 200, got %d", rec.Code)
	}
}

func TestLearningPath(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/ai/generate-learning-path", "good-token", map[string]any{
		"studentProfile": profile,
		"skillName":      "Basic Coding",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: expected 400, got %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/api/ai/generate-learning-path", "good-token", map[string]any{
		"studentProfile": profile,
		"skillName":      "Basic Coding",
		"currentScore":   0,
		"category":       "technology",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	req := e.gen.last()
	if req.MaxOutputTokens != learningPathTokens {
		t.Fatalf("learning path budget = %d", req.MaxOutputTokens)
	}
	if !strings.Contains(req.UserContent, "careerOpportunities") || !strings.Contains(req.UserContent, "from 0% proficiency") {
		t.Fatalf("technology prompt not built: %q", req.UserContent)
	}
}

func TestUpstreamErrorPassesThrough(t *testing.T) {
	e := newEnv(t)
	e.gen.err = &gemini.UpstreamError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    "The model is overloaded.",
		Details:    map[string]any{"error": map[string]any{"code": 503, "status": "UNAVAILABLE"}},
	}

	rec := e.do(t, http.MethodPost, "/api/ai/generate-achievements", "good-token", map[string]any{"studentProfile": profile})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["error"] != "Failed to generate achievements" || body["details"] == nil {
		t.Fatalf("unexpected body: %v", body)
	}
	if got := e.usage(t, "user-1", plan.FeatureAchievements); got != 0 {
		t.Fatalf("failed generation was charged: %d", got)
	}
}

func TestSkillRecommendationsUngoverned(t *testing.T) {
	e := newEnv(t)

	for i := 0; i < 5; i++ {
		rec := e.do(t, http.MethodPost, "/api/student/skill-recommendations", "good-token", map[string]any{
			"completedTasksCount": 3,
			"currentStreak":       2,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d", i+1, rec.Code)
		}
	}
	if !strings.Contains(e.gen.last().UserContent, "- Current Streak: 2 days") {
		t.Fatalf("progress missing from prompt")
	}
}

func TestGeminiProxy(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/gemini", "good-token", map[string]any{"systemPrompt": "sys"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/api/gemini", "good-token", map[string]any{
		"systemPrompt": "sys",
		"userPrompt":   "hello",
		"maxTokens":    1024,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["response"] != e.gen.text {
		t.Fatalf("unexpected body: %v", body)
	}
	if got := e.gen.last(); got.SystemInstruction != "sys" || got.MaxOutputTokens != 1024 {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestGetSubscription(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/subscription", "good-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	sub, ok := decode(t, rec)["subscription"].(map[string]any)
	if !ok || sub["userId"] != "user-1" || sub["tier"] != "free" {
		t.Fatalf("unexpected subscription: %v", sub)
	}
}

// ──────────────────────────────────────────────────
// Payment routes
// ──────────────────────────────────────────────────

const darajaSuccess = `{"Body":{"stkCallback":{"MerchantRequestID":"29115-34620561-1",` +
	`"CheckoutRequestID":"ws_CO_191220191020363925","ResultCode":0,` +
	`"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[` +
	`{"Name":"Amount","Value":500},{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},` +
	`{"Name":"TransactionDate","Value":20191219102115},{"Name":"PhoneNumber","Value":254712345678}]}}}}`

func (e *env) initiate(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/payment/mpesa/initiate", "", map[string]any{
		"phoneNumber":      "0712345678",
		"amount":           500,
		"userId":           "user-1",
		"subscriptionTier": "premium",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("initiate: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["checkoutRequestId"] != "ws_CO_191220191020363925" || body["message"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}
	return body["transactionId"].(string)
}

func TestPaymentFlow(t *testing.T) {
	e := newEnv(t)
	txnID := e.initiate(t)

	rec := e.do(t, http.MethodPost, "/api/payment/mpesa/callback", "", darajaSuccess)
	if rec.Code != http.StatusOK {
		t.Fatalf("callback: expected 200, got %d", rec.Code)
	}
	if ack := decode(t, rec); ack["ResultCode"] != float64(0) || ack["ResultDesc"] != "Accepted" {
		t.Fatalf("unexpected ack: %v", ack)
	}

	rec = e.do(t, http.MethodGet, "/api/payment/mpesa/status/"+txnID+"?userId=user-1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	txn := decode(t, rec)["transaction"].(map[string]any)
	if txn["status"] != "completed" || txn["mpesaReceiptNumber"] != "NLJ7RT61SV" || txn["phoneNumber"] != "254712345678" {
		t.Fatalf("unexpected transaction: %v", txn)
	}

	sub, err := e.gw.GetSubscription(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if sub.Tier != plan.TierPremium {
		t.Fatalf("tier = %s, want premium", sub.Tier)
	}
}

func TestPaymentTimeout(t *testing.T) {
	e := newEnv(t)
	txnID := e.initiate(t)

	rec := e.do(t, http.MethodPost, "/api/payment/mpesa/timeout", "", `{"CheckoutRequestID":"ws_CO_191220191020363925"}`)
	if ack := decode(t, rec); ack["ResultCode"] != float64(0) {
		t.Fatalf("unexpected ack: %v", ack)
	}

	rec = e.do(t, http.MethodGet, "/api/payment/mpesa/status/"+txnID+"?userId=user-1", "", nil)
	txn := decode(t, rec)["transaction"].(map[string]any)
	if txn["status"] != "timeout" || txn["error"] != learngate.TimeoutMessage {
		t.Fatalf("unexpected transaction: %v", txn)
	}
}

func TestCallbackMalformed(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/payment/mpesa/callback", "", `{"Body":{}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ack := decode(t, rec); ack["ResultCode"] != float64(1) || ack["ResultDesc"] != "Failed" {
		t.Fatalf("unexpected ack: %v", ack)
	}
}

func TestInitiateValidation(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/payment/mpesa/initiate", "", map[string]any{
		"phoneNumber": "12345",
		"amount":      0,
		"userId":      "user-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decode(t, rec)
	details, ok := body["details"].([]any)
	if body["error"] != "Validation failed" || !ok || len(details) != 2 {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestPaymentStatusErrors(t *testing.T) {
	e := newEnv(t)
	txnID := e.initiate(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"missing user", "/api/payment/mpesa/status/" + txnID, http.StatusBadRequest},
		{"other user", "/api/payment/mpesa/status/" + txnID + "?userId=user-2", http.StatusForbidden},
		{"malformed id", "/api/payment/mpesa/status/nope?userId=user-1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := e.do(t, http.MethodGet, tt.path, "", nil); rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestExtraRoutes(t *testing.T) {
	e := newEnv(t, WithRoutes(func(r *gin.Engine) {
		r.GET("/metrics", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	}))

	if rec := e.do(t, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
