package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/EASONTAN03/zus-api-deployment/internal/auth"
	"github.com/EASONTAN03/zus-api-deployment/internal/chat"
	"github.com/EASONTAN03/zus-api-deployment/internal/query"
	"github.com/EASONTAN03/zus-api-deployment/internal/ratelimit"
)

const maxRequestBodySize = 1 << 20 // 1MB

func handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "ZUS Coffee API",
		"status":  "ok",
		"endpoints": []string{
			"/api/v1/chat",
			"/api/v1/products",
			"/api/v1/outlets",
			"/api/v1/register",
			"/api/v1/login",
			"/api/v1/health",
		},
	})
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productCount, productErr := deps.Health.ProductCount(r.Context())
		outletCount, outletErr := deps.Health.OutletCount(r.Context())

		productsReady := productErr == nil && productCount > 0
		outletsReady := outletErr == nil && outletCount > 0

		status := http.StatusOK
		label := "ok"
		if !productsReady || !outletsReady {
			status = http.StatusServiceUnavailable
			label = "degraded"
		}

		writeJSON(w, status, map[string]any{
			"status":          label,
			"products_ready":  productsReady,
			"outlets_ready":   outletsReady,
			"products_loaded": productCount,
			"outlets_loaded":  outletCount,
		})
	}
}

func handleProducts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("query"))
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query parameter is required")
			return
		}
		topK := parseTopK(r, q)

		res, err := deps.Products.Search(r.Context(), q, topK)
		if err != nil {
			slog.Error("product search failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "product search failed, please try again")
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func handleOutlets(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("query"))
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query parameter is required")
			return
		}
		topK := parseTopK(r, q)

		res, err := deps.Outlets.Query(r.Context(), q, topK)
		if err != nil {
			slog.Error("outlet query failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "outlet query failed, please try again")
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

type chatRequest struct {
	Prompt string `json:"prompt"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		resp, err := deps.Chatbot.Chat(r.Context(), r.Header.Get("Authorization"), req.Prompt)
		if err != nil {
			writeChatError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// writeChatError maps orchestration failures to status codes. Anything
// unexpected becomes a generic 500 so provider and database details never
// reach the client.
func writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyQuery):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, chat.ErrUnclassified):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, ratelimit.ErrRateLimited):
		httpError(w, http.StatusTooManyRequests, "rate_limit_error", "%v", err)
	default:
		slog.Error("chat failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "something went wrong, please try again")
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func handleRegister(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeCredentials(w, r)
		if !ok {
			return
		}

		if err := deps.Users.Register(req.Username, req.Password); err != nil {
			switch {
			case errors.Is(err, auth.ErrUserExists):
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			case errors.Is(err, auth.ErrInvalidCredentials):
				httpError(w, http.StatusBadRequest, "invalid_request_error", "username and password are required")
			default:
				slog.Error("registration failed", "error", err)
				httpError(w, http.StatusInternalServerError, "api_error", "registration failed, please try again")
			}
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
	}
}

func handleLogin(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeCredentials(w, r)
		if !ok {
			return
		}

		if err := deps.Users.Authenticate(req.Username, req.Password); err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
				return
			}
			slog.Error("login failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "login failed, please try again")
			return
		}

		token, err := deps.Tokens.Issue(req.Username)
		if err != nil {
			slog.Error("token issue failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "login failed, please try again")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"access_token": token,
			"token_type":   "bearer",
		})
	}
}

// decodeCredentials accepts either form-encoded or JSON bodies so both
// browser forms and API clients can register and log in.
func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid form body: %v", err)
			return credentialsRequest{}, false
		}
		return credentialsRequest{
			Username: r.PostForm.Get("username"),
			Password: r.PostForm.Get("password"),
		}, true
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return credentialsRequest{}, false
	}
	return req, true
}

// parseTopK honors an explicit top_k parameter, falling back to the hint
// embedded in the query text.
func parseTopK(r *http.Request, q string) int {
	if s := r.URL.Query().Get("top_k"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 && v <= 20 {
			return v
		}
	}
	return query.TopK(q)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
