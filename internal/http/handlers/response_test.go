package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-article-webhooks/internal/http/middleware"
	"github.com/tbourn/go-article-webhooks/internal/services"
)

// serve runs h behind RequestID and a logger writing into logs.
func serve(t *testing.T, method, rid string, h gin.HandlerFunc) (*httptest.ResponseRecorder, *bytes.Buffer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logs := &bytes.Buffer{}
	lg := zerolog.New(logs)

	r := gin.New()
	r.Use(middleware.RequestID(), func(c *gin.Context) {
		c.Set("logger", &lg)
		c.Next()
	})
	r.Handle(method, "/t", h)

	req := httptest.NewRequest(method, "/t", nil)
	if rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, logs
}

func TestFail_EnvelopeAndLogging(t *testing.T) {
	w, logs := serve(t, http.MethodGet, "rid-404", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "no such route")
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	want := ErrorResponse{Error: "no such route", Status: "error", Code: ErrCodeNotFound, RequestID: "rid-404"}
	if got := decodeErr(t, w); got != want {
		t.Fatalf("body = %+v; want %+v", got, want)
	}
	if logs.Len() != 0 {
		t.Fatalf("4xx must not be logged as an api error: %s", logs.String())
	}

	w, logs = serve(t, http.MethodGet, "rid-500", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "store offline")
	})
	if w.Code != http.StatusInternalServerError || decodeErr(t, w).RequestID != "rid-500" {
		t.Fatalf("500: status=%d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(logs.String(), `"level":"error"`) || !strings.Contains(logs.String(), `"reason":"store offline"`) {
		t.Fatalf("5xx log = %s", logs.String())
	}
}

func TestFail_GeneratedRequestIDIsEchoed(t *testing.T) {
	w, _ := serve(t, http.MethodGet, "", func(c *gin.Context) {
		Fail(c, http.StatusForbidden, ErrCodeForbidden, "nope")
	})
	rid := w.Header().Get("X-Request-ID")
	if rid == "" || decodeErr(t, w).RequestID != rid {
		t.Fatalf("header %q vs body %+v", rid, decodeErr(t, w))
	}
}

func TestSuccessHelpers(t *testing.T) {
	w, _ := serve(t, http.MethodPost, "", func(c *gin.Context) {
		ok(c, http.StatusCreated, gin.H{"id": 7})
	})
	if w.Code != http.StatusCreated || strings.TrimSpace(w.Body.String()) != `{"id":7}` {
		t.Fatalf("ok: %d %s", w.Code, w.Body.String())
	}

	w, _ = serve(t, http.MethodDelete, "", noContent)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("noContent: %d %q", w.Code, w.Body.String())
	}
}

func Test_failFromError_MapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{fmt.Errorf("%w: id=3", services.ErrArticleNotFound), http.StatusNotFound, ErrCodeNotFound, "article not found: id=3"},
		{fmt.Errorf("%w: user 3", services.ErrSubscriptionNotFound), http.StatusNotFound, ErrCodeNotFound, "subscription not found: user 3"},
		{fmt.Errorf("%w: article 1, user 2", services.ErrNotOwner), http.StatusForbidden, ErrCodeForbidden, "user does not own this article: article 1, user 2"},
		{fmt.Errorf("%w: title is required", services.ErrInvalidArticle), http.StatusBadRequest, ErrCodeBadRequest, "invalid article: title is required"},
		{fmt.Errorf("%w: bad url", services.ErrInvalidSubscription), http.StatusBadRequest, ErrCodeBadRequest, "invalid subscription: bad url"},
		{errors.New("sql: connection refused"), http.StatusInternalServerError, ErrCodeInternal, msgInternal},
	}

	for _, tc := range cases {
		w, logs := serve(t, http.MethodGet, "", func(c *gin.Context) { failFromError(c, tc.err) })

		if w.Code != tc.status {
			t.Fatalf("%v: status=%d want %d", tc.err, w.Code, tc.status)
		}
		resp := decodeErr(t, w)
		if resp.Code != tc.code || resp.Error != tc.msg || resp.Status != "error" {
			t.Fatalf("%v: unexpected body %+v", tc.err, resp)
		}
		if tc.status == http.StatusInternalServerError && !strings.Contains(logs.String(), "connection refused") {
			t.Fatalf("internal detail must be logged server-side, got %s", logs.String())
		}
	}
}
