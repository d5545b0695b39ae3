package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGetCSRFTokenIssuesCookieAndHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil)

	GetCSRFToken(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	token := body["csrfToken"]
	require.NotEmpty(t, token)
	assert.Equal(t, token, rec.Header().Get("X-CSRF-Token"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "_csrf_token", cookies[0].Name)
	assert.Equal(t, token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestCSRFMiddlewareAllowsSafeMethods(t *testing.T) {
	mw := CSRFMiddleware()
	handler := mw(okHandler())

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(method, "/api/portfolio", nil))
		assert.Equal(t, http.StatusOK, rec.Code, "method %s", method)
	}
}

func TestCSRFMiddlewareAcceptsMatchingTokens(t *testing.T) {
	mw := CSRFMiddleware()
	handler := mw(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/import/file", nil)
	req.Header.Set("X-CSRF-Token", "matching-token")
	req.AddCookie(&http.Cookie{Name: "_csrf_token", Value: "matching-token"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRFMiddlewareRejectsMutations(t *testing.T) {
	mw := CSRFMiddleware()
	handler := mw(okHandler())

	cases := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no token at all", func(r *http.Request) {}},
		{"header only", func(r *http.Request) {
			r.Header.Set("X-CSRF-Token", "tok")
		}},
		{"cookie only", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "_csrf_token", Value: "tok"})
		}},
		{"mismatched", func(r *http.Request) {
			r.Header.Set("X-CSRF-Token", "tok")
			r.AddCookie(&http.Cookie{Name: "_csrf_token", Value: "other"})
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/import/file", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
}
