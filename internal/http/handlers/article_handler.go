// Article HTTP handlers.
//
// This file exposes REST endpoints for article resources:
//   - POST   /articles                  (create, Idempotency-Key aware)
//   - PUT    /articles/{id}             (update, owner only)
//   - DELETE /articles/{id}?userId=     (delete, owner only)
//   - GET    /articles/user/{userId}    (list, weak ETag)
//   - GET    /articles/{id}             (fetch)
//
// Every successful mutation triggers an asynchronous webhook to the owner's
// registered endpoint; delivery never affects the response.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-article-webhooks/internal/http/middleware"
	"github.com/tbourn/go-article-webhooks/internal/services"
	"github.com/tbourn/go-article-webhooks/internal/utils"
)

// ArticleRequest is the JSON payload for creating or updating an article.
type ArticleRequest struct {
	// Title of the article (1–255 chars after trimming).
	Title string `json:"title" example:"Release notes"`
	// Content body of the article.
	Content string `json:"content" example:"Version 1.2 ships webhooks."`
	// UserID is the author on create and the acting user on update.
	UserID int64 `json:"userId" example:"7"`
}

// CreateArticle godoc
// @ID          createArticle
// @Summary     Create an article
// @Description Creates an article owned by userId and notifies the owner's webhook with article-created.
// @Description Supports idempotency via the Idempotency-Key header (same key and user → same article, no second event).
// @Tags        Articles
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string                   false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.ArticleRequest  true  "Article payload"
//
// @Success     201  {object}  domain.Article
// @Header      201  {string}  Idempotency-Replayed  "true when served from a previous request"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /articles [post]
func (h *Handlers) CreateArticle(c *gin.Context) {
	var req ArticleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	a, replayed, err := h.articles.Create(c.Request.Context(), services.ArticleInput{
		Title:          req.Title,
		Content:        req.Content,
		UserID:         req.UserID,
		IdempotencyKey: key,
	})
	if err != nil {
		failFromError(c, err)
		return
	}
	if replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	ok(c, http.StatusCreated, a)
}

// UpdateArticle godoc
// @ID          updateArticle
// @Summary     Update an article
// @Description Overwrites title and content. userId must be the article's owner. Notifies article-updated.
// @Tags        Articles
// @Accept      json
// @Produce     json
//
// @Param       id    path  int                      true  "Article ID"  minimum(1) example(12)
// @Param       body  body  handlers.ArticleRequest  true  "Article payload"
//
// @Success     200  {object} domain.Article
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not the owner"
// @Failure     404  {object} handlers.ErrorResponse "Article not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /articles/{id} [put]
func (h *Handlers) UpdateArticle(c *gin.Context) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "article id must be a positive integer")
		return
	}
	var req ArticleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	a, err := h.articles.Update(c.Request.Context(), id, services.ArticleInput{
		Title:   req.Title,
		Content: req.Content,
		UserID:  req.UserID,
	})
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// DeleteArticle godoc
// @ID          deleteArticle
// @Summary     Delete an article
// @Description Deletes an article owned by userId. Notifies article-deleted with the last state.
// @Tags        Articles
// @Produce     json
//
// @Param       id      path   int  true  "Article ID"      minimum(1) example(12)
// @Param       userId  query  int  true  "Acting user ID"  minimum(1) example(7)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not the owner"
// @Failure     404  {object} handlers.ErrorResponse "Article not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /articles/{id} [delete]
func (h *Handlers) DeleteArticle(c *gin.Context) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "article id must be a positive integer")
		return
	}
	uid, valid := utils.ParseUserID(c.Query("userId"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "userId query parameter must be a positive integer")
		return
	}

	if err := h.articles.Delete(c.Request.Context(), id, uid); err != nil {
		failFromError(c, err)
		return
	}
	noContent(c)
}

// ListUserArticles godoc
// @ID          listUserArticles
// @Summary     List a user's articles
// @Description Returns every article owned by userId, oldest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Articles
// @Produce     json
//
// @Param       userId         path    int     true  "User ID"                     minimum(1) example(7)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"articles:7:2:1735689600000000000\")
//
// @Success     200  {array}  domain.Article
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /articles/user/{userId} [get]
func (h *Handlers) ListUserArticles(c *gin.Context) {
	ctx := c.Request.Context()
	uid, valid := utils.ParseUserID(c.Param("userId"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "userId must be a positive integer")
		return
	}

	// ETag pre-check (best effort).
	if count, maxTS, err := h.articles.Stats(ctx, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"articles:%d:%d:%d"`, uid, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.articles.ListByUser(ctx, uid)
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// GetArticle godoc
// @ID          getArticle
// @Summary     Fetch an article
// @Tags        Articles
// @Produce     json
//
// @Param       id  path  int  true  "Article ID"  minimum(1) example(12)
//
// @Success     200  {object} domain.Article
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Article not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /articles/{id} [get]
func (h *Handlers) GetArticle(c *gin.Context) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "article id must be a positive integer")
		return
	}
	a, err := h.articles.Get(c.Request.Context(), id)
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}
