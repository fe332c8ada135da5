package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-article-webhooks/internal/domain"
	"github.com/tbourn/go-article-webhooks/internal/http/middleware"
	"github.com/tbourn/go-article-webhooks/internal/services"
)

// ---------- fakes ----------

type fakeArticles struct {
	createIn  services.ArticleInput
	createOut *domain.Article
	replayed  bool
	createErr error

	updateID  uint64
	updateIn  services.ArticleInput
	updateErr error

	deleteID   uint64
	deleteUser int64
	deleteErr  error

	getErr error

	list     []domain.Article
	listErr  error
	listHits int

	statsCount int64
	statsMax   *time.Time
	statsErr   error
}

func (f *fakeArticles) Create(_ context.Context, in services.ArticleInput) (*domain.Article, bool, error) {
	f.createIn = in
	if f.createErr != nil {
		return nil, false, f.createErr
	}
	if f.createOut != nil {
		return f.createOut, f.replayed, nil
	}
	return &domain.Article{ID: 1, Title: in.Title, Content: in.Content, UserID: in.UserID}, f.replayed, nil
}

func (f *fakeArticles) Update(_ context.Context, id uint64, in services.ArticleInput) (*domain.Article, error) {
	f.updateID, f.updateIn = id, in
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &domain.Article{ID: id, Title: in.Title, Content: in.Content, UserID: in.UserID}, nil
}

func (f *fakeArticles) Delete(_ context.Context, id uint64, userID int64) error {
	f.deleteID, f.deleteUser = id, userID
	return f.deleteErr
}

func (f *fakeArticles) Get(_ context.Context, id uint64) (*domain.Article, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &domain.Article{ID: id, Title: "t", Content: "c", UserID: 1}, nil
}

func (f *fakeArticles) ListByUser(_ context.Context, userID int64) ([]domain.Article, error) {
	f.listHits++
	return f.list, f.listErr
}

func (f *fakeArticles) Stats(context.Context, int64) (int64, *time.Time, error) {
	return f.statsCount, f.statsMax, f.statsErr
}

type fakeSubs struct {
	in     services.SubscribeInput
	err    error
	getErr error
}

func (f *fakeSubs) SubscribeOrUpdate(_ context.Context, in services.SubscribeInput) (*domain.WebhookSubscription, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &domain.WebhookSubscription{ID: 1, UserID: in.UserID, WebhookURL: in.WebhookURL}, nil
}

func (f *fakeSubs) GetByUser(_ context.Context, userID int64) (*domain.WebhookSubscription, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &domain.WebhookSubscription{ID: 1, UserID: userID, WebhookURL: "http://h/x"}, nil
}

func newTestRouter(a ArticleService, s SubscriptionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	h := New(a, s)
	r.POST("/articles", h.CreateArticle)
	r.PUT("/articles/:id", h.UpdateArticle)
	r.DELETE("/articles/:id", h.DeleteArticle)
	r.GET("/articles/user/:userId", h.ListUserArticles)
	r.GET("/articles/:id", h.GetArticle)
	r.POST("/webhooks/subscribe", h.Subscribe)
	r.GET("/webhooks/user/:userId", h.GetSubscription)
	return r
}

func do(r http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return er
}

// ---------- tests ----------

func TestCreateArticle_201_PassesInput(t *testing.T) {
	fa := &fakeArticles{}
	r := newTestRouter(fa, &fakeSubs{})

	w := do(r, http.MethodPost, "/articles", ArticleRequest{Title: "Hello", Content: "World", UserID: 7}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if fa.createIn.Title != "Hello" || fa.createIn.Content != "World" || fa.createIn.UserID != 7 || fa.createIn.IdempotencyKey != "" {
		t.Fatalf("unexpected input: %+v", fa.createIn)
	}
	var got map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got["id"] != float64(1) || got["userId"] != float64(7) || got["title"] != "Hello" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("fresh create must not be marked replayed")
	}
}

func TestCreateArticle_IdempotencyKey_ForwardedAndReplayHeader(t *testing.T) {
	fa := &fakeArticles{replayed: true}
	r := newTestRouter(fa, &fakeSubs{})

	w := do(r, http.MethodPost, "/articles", ArticleRequest{Title: "t", Content: "c", UserID: 1},
		map[string]string{"Idempotency-Key": "key-123"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d", w.Code)
	}
	if fa.createIn.IdempotencyKey != "key-123" {
		t.Fatalf("key not forwarded: %+v", fa.createIn)
	}
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected Idempotency-Replayed header")
	}
}

func TestCreateArticle_BadJSON_And_Validation(t *testing.T) {
	fa := &fakeArticles{}
	r := newTestRouter(fa, &fakeSubs{})

	w := do(r, http.MethodPost, "/articles", "{not json", nil)
	if w.Code != http.StatusBadRequest || decodeErr(t, w).Code != ErrCodeBadRequest {
		t.Fatalf("bad json: status=%d body=%s", w.Code, w.Body.String())
	}

	fa.createErr = fmt.Errorf("%w: title is required", services.ErrInvalidArticle)
	w = do(r, http.MethodPost, "/articles", ArticleRequest{Content: "c", UserID: 1}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("validation: status=%d", w.Code)
	}
	if er := decodeErr(t, w); er.Error != "invalid article: title is required" || er.Status != "error" {
		t.Fatalf("unexpected error body: %+v", er)
	}
}

func TestCreateArticle_InternalError_GenericMessage(t *testing.T) {
	fa := &fakeArticles{createErr: errors.New("database is locked")}
	r := newTestRouter(fa, &fakeSubs{})

	w := do(r, http.MethodPost, "/articles", ArticleRequest{Title: "t", Content: "c", UserID: 1}, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	if er := decodeErr(t, w); er.Error != "An unexpected error occurred" || er.Code != ErrCodeInternal {
		t.Fatalf("internal details leaked: %+v", er)
	}
}

func TestUpdateArticle_StatusMapping(t *testing.T) {
	fa := &fakeArticles{}
	r := newTestRouter(fa, &fakeSubs{})

	w := do(r, http.MethodPut, "/articles/12", ArticleRequest{Title: "n", Content: "b", UserID: 7}, nil)
	if w.Code != http.StatusOK || fa.updateID != 12 || fa.updateIn.UserID != 7 {
		t.Fatalf("status=%d id=%d in=%+v", w.Code, fa.updateID, fa.updateIn)
	}

	fa.updateErr = fmt.Errorf("%w: article 12, user 8", services.ErrNotOwner)
	if w := do(r, http.MethodPut, "/articles/12", ArticleRequest{Title: "n", Content: "b", UserID: 8}, nil); w.Code != http.StatusForbidden {
		t.Fatalf("not owner: status=%d", w.Code)
	}

	fa.updateErr = fmt.Errorf("%w: id=99", services.ErrArticleNotFound)
	if w := do(r, http.MethodPut, "/articles/99", ArticleRequest{Title: "n", Content: "b", UserID: 7}, nil); w.Code != http.StatusNotFound {
		t.Fatalf("not found: status=%d", w.Code)
	}

	for _, bad := range []string{"/articles/abc", "/articles/0", "/articles/-1"} {
		if w := do(r, http.MethodPut, bad, ArticleRequest{Title: "n", Content: "b", UserID: 7}, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", bad, w.Code)
		}
	}
	if w := do(r, http.MethodPut, "/articles/12", "[]", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad body: status=%d", w.Code)
	}
}

func TestDeleteArticle(t *testing.T) {
	fa := &fakeArticles{}
	r := newTestRouter(fa, &fakeSubs{})

	w := do(r, http.MethodDelete, "/articles/5?userId=7", nil, nil)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
	if fa.deleteID != 5 || fa.deleteUser != 7 {
		t.Fatalf("unexpected args: id=%d user=%d", fa.deleteID, fa.deleteUser)
	}

	for _, q := range []string{"/articles/5", "/articles/5?userId=", "/articles/5?userId=x", "/articles/5?userId=0"} {
		if w := do(r, http.MethodDelete, q, nil, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", q, w.Code)
		}
	}

	fa.deleteErr = fmt.Errorf("%w: article 5, user 8", services.ErrNotOwner)
	if w := do(r, http.MethodDelete, "/articles/5?userId=8", nil, nil); w.Code != http.StatusForbidden {
		t.Fatalf("not owner: status=%d", w.Code)
	}
	fa.deleteErr = fmt.Errorf("%w: id=5", services.ErrArticleNotFound)
	if w := do(r, http.MethodDelete, "/articles/5?userId=7", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("not found: status=%d", w.Code)
	}
}

func TestListUserArticles_ETagAnd304(t *testing.T) {
	ts := time.Unix(1700000000, 5).UTC()
	fa := &fakeArticles{
		list:       []domain.Article{{ID: 1, UserID: 7}, {ID: 2, UserID: 7}},
		statsCount: 2,
		statsMax:   &ts,
	}
	r := newTestRouter(fa, &fakeSubs{})

	w := do(r, http.MethodGet, "/articles/user/7", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	etag := w.Header().Get("ETag")
	want := fmt.Sprintf(`W/"articles:7:2:%d"`, ts.UnixNano())
	if etag != want {
		t.Fatalf("etag=%q want %q", etag, want)
	}
	var items []domain.Article
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil || len(items) != 2 {
		t.Fatalf("items=%v err=%v", items, err)
	}

	w = do(r, http.MethodGet, "/articles/user/7", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}
	if fa.listHits != 1 {
		t.Fatalf("304 must not load the list, hits=%d", fa.listHits)
	}
}

func TestListUserArticles_EmptyIsArray_StatsErrorIgnored(t *testing.T) {
	fa := &fakeArticles{list: []domain.Article{}, statsErr: errors.New("stats down")}
	r := newTestRouter(fa, &fakeSubs{})

	w := do(r, http.MethodGet, "/articles/user/9", nil, nil)
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("ETag") != "" {
		t.Fatalf("no ETag expected when stats fail")
	}
	if w := do(r, http.MethodGet, "/articles/user/abc", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad user id: status=%d", w.Code)
	}
}

func TestGetArticle(t *testing.T) {
	fa := &fakeArticles{}
	r := newTestRouter(fa, &fakeSubs{})

	if w := do(r, http.MethodGet, "/articles/3", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	fa.getErr = fmt.Errorf("%w: id=3", services.ErrArticleNotFound)
	if w := do(r, http.MethodGet, "/articles/3", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	if w := do(r, http.MethodGet, "/articles/x", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}
