package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/EASONTAN03/zus-api-deployment/internal/auth"
	"github.com/EASONTAN03/zus-api-deployment/internal/chat"
	"github.com/EASONTAN03/zus-api-deployment/internal/outlets"
	"github.com/EASONTAN03/zus-api-deployment/internal/products"
	"github.com/EASONTAN03/zus-api-deployment/internal/ratelimit"
)

type stubChatbot struct {
	resp      chat.Response
	err       error
	gotHeader string
	gotPrompt string
}

func (s *stubChatbot) Chat(_ context.Context, authHeader, prompt string) (chat.Response, error) {
	s.gotHeader = authHeader
	s.gotPrompt = prompt
	return s.resp, s.err
}

type stubProducts struct {
	result products.Result
	err    error
	gotK   int
}

func (s *stubProducts) Search(_ context.Context, _ string, topK int) (products.Result, error) {
	s.gotK = topK
	return s.result, s.err
}

type stubOutlets struct {
	result outlets.Result
	err    error
}

func (s *stubOutlets) Query(_ context.Context, _ string, _ int) (outlets.Result, error) {
	return s.result, s.err
}

type stubUsers struct {
	registerErr error
	authErr     error
}

func (s *stubUsers) Register(username, password string) error { return s.registerErr }
func (s *stubUsers) Authenticate(username, password string) error {
	return s.authErr
}

type stubTokens struct{ token string }

func (s stubTokens) Issue(string) (string, error) { return s.token, nil }

type stubHealth struct {
	products int
	outlets  int
}

func (s stubHealth) ProductCount(context.Context) (int, error) { return s.products, nil }
func (s stubHealth) OutletCount(context.Context) (int, error)  { return s.outlets, nil }

func newTestHandler(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	if deps.Chatbot == nil {
		deps.Chatbot = &stubChatbot{}
	}
	if deps.Products == nil {
		deps.Products = &stubProducts{}
	}
	if deps.Outlets == nil {
		deps.Outlets = &stubOutlets{}
	}
	if deps.Users == nil {
		deps.Users = &stubUsers{}
	}
	if deps.Tokens == nil {
		deps.Tokens = stubTokens{token: "tok"}
	}
	if deps.Health == nil {
		deps.Health = stubHealth{products: 1, outlets: 1}
	}
	if deps.CORSOrigins == nil {
		deps.CORSOrigins = []string{"*"}
	}
	return NewHandler(deps)
}

func errorMessage(t *testing.T, body *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding error body %q: %v", body.Body.String(), err)
	}
	return payload.Error.Message
}

func TestRoot(t *testing.T) {
	h := newTestHandler(t, Deps{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["service"] != "ZUS Coffee API" {
		t.Errorf("service = %v", body["service"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := newTestHandler(t, Deps{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestRequestID_EchoesCallerID(t *testing.T) {
	h := newTestHandler(t, Deps{})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "caller-id-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "caller-id-123" {
		t.Errorf("X-Request-ID = %q, want caller-id-123", got)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		health   stubHealth
		wantCode int
		wantStat string
	}{
		{"both ready", stubHealth{products: 10, outlets: 5}, http.StatusOK, "ok"},
		{"empty product index", stubHealth{products: 0, outlets: 5}, http.StatusServiceUnavailable, "degraded"},
		{"empty outlet table", stubHealth{products: 10, outlets: 0}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, Deps{Health: tt.health})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var body map[string]any
			json.Unmarshal(rec.Body.Bytes(), &body)
			if body["status"] != tt.wantStat {
				t.Errorf("status field = %v, want %s", body["status"], tt.wantStat)
			}
		})
	}
}

func TestProducts(t *testing.T) {
	prods := &stubProducts{result: products.Result{
		Summary: "The OG Cup is a 500ml tumbler.",
		Matches: []products.Match{{Product: products.Product{Name: "ZUS OG Cup"}, Score: 0.9}},
	}}
	h := newTestHandler(t, Deps{Products: prods})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/products?query=og+cup", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var body products.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Matches) != 1 || body.Matches[0].Name != "ZUS OG Cup" {
		t.Errorf("matches = %+v", body.Matches)
	}
}

func TestProducts_MissingQuery(t *testing.T) {
	h := newTestHandler(t, Deps{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/products", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProducts_TopKParameter(t *testing.T) {
	prods := &stubProducts{result: products.Result{Matches: []products.Match{}}}
	h := newTestHandler(t, Deps{Products: prods})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/products?query=cups&top_k=7", nil))

	if prods.gotK != 7 {
		t.Errorf("topK = %d, want 7", prods.gotK)
	}

	// Out-of-range values fall back to the query-text hint / default.
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/products?query=cups&top_k=999", nil))
	if prods.gotK != 3 {
		t.Errorf("topK = %d, want default 3 for out-of-range parameter", prods.gotK)
	}
}

func TestProducts_PipelineFailureHidesDetails(t *testing.T) {
	prods := &stubProducts{err: errors.New("openai: 401 invalid api key sk-abc123")}
	h := newTestHandler(t, Deps{Products: prods})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/products?query=cups", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if msg := errorMessage(t, rec); strings.Contains(msg, "sk-abc123") {
		t.Errorf("error message leaks provider detail: %q", msg)
	}
}

func TestOutlets(t *testing.T) {
	outs := &stubOutlets{result: outlets.Result{
		Summary: "3 outlets in Selangor.",
		SQL:     "SELECT * FROM outlets WHERE address LIKE '%Selangor%' LIMIT 3",
		Rows:    []map[string]any{{"name": "ZUS Coffee SS15"}},
	}}
	h := newTestHandler(t, Deps{Outlets: outs})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/outlets?query=selangor", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var body outlets.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.SQL == "" {
		t.Error("response missing sql_query")
	}
	if len(body.Rows) != 1 {
		t.Errorf("got %d rows, want 1", len(body.Rows))
	}
}

func TestChat(t *testing.T) {
	bot := &stubChatbot{resp: chat.Response{Summary: "answer"}}
	h := newTestHandler(t, Deps{Chatbot: bot})

	req := httptest.NewRequest("POST", "/api/v1/chat", strings.NewReader(`{"prompt":"og cup"}`))
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if bot.gotPrompt != "og cup" {
		t.Errorf("prompt = %q", bot.gotPrompt)
	}
	if bot.gotHeader != "Bearer tok" {
		t.Errorf("auth header = %q, not forwarded", bot.gotHeader)
	}
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"empty query", chat.ErrEmptyQuery, http.StatusBadRequest},
		{"unclassified", chat.ErrUnclassified, http.StatusBadRequest},
		{"rate limited", ratelimit.ErrRateLimited, http.StatusTooManyRequests},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, Deps{Chatbot: &stubChatbot{err: tt.err}})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/chat", strings.NewReader(`{"prompt":"q"}`)))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusInternalServerError {
				if msg := errorMessage(t, rec); strings.Contains(msg, "connection refused") {
					t.Errorf("error message leaks internal detail: %q", msg)
				}
			}
		})
	}
}

func TestChat_MalformedBody(t *testing.T) {
	h := newTestHandler(t, Deps{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/chat", strings.NewReader("{not json")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"success", nil, http.StatusCreated},
		{"duplicate", auth.ErrUserExists, http.StatusBadRequest},
		{"empty fields", auth.ErrInvalidCredentials, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, Deps{Users: &stubUsers{registerErr: tt.err}})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/register", strings.NewReader(`{"username":"alice","password":"pw"}`)))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func TestLogin(t *testing.T) {
	h := newTestHandler(t, Deps{Tokens: stubTokens{token: "signed.jwt.token"}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/login", strings.NewReader(`{"username":"alice","password":"pw"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["access_token"] != "signed.jwt.token" {
		t.Errorf("access_token = %q", body["access_token"])
	}
	if body["token_type"] != "bearer" {
		t.Errorf("token_type = %q, want bearer", body["token_type"])
	}
}

func TestLogin_FormEncoded(t *testing.T) {
	h := newTestHandler(t, Deps{Tokens: stubTokens{token: "tok"}})

	req := httptest.NewRequest("POST", "/api/v1/login", strings.NewReader("username=alice&password=pw"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["access_token"] != "tok" {
		t.Errorf("access_token = %q", body["access_token"])
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	h := newTestHandler(t, Deps{Users: &stubUsers{authErr: auth.ErrInvalidCredentials}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/login", strings.NewReader(`{"username":"alice","password":"wrong"}`)))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
