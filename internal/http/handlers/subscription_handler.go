// Webhook subscription HTTP handlers.
//
//   - POST /webhooks/subscribe        (register or replace)
//   - GET  /webhooks/user/{userId}    (fetch)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-article-webhooks/internal/services"
	"github.com/tbourn/go-article-webhooks/internal/utils"
)

// SubscribeRequest is the JSON payload for registering a webhook.
type SubscribeRequest struct {
	UserID     int64  `json:"userId" example:"7"`
	WebhookURL string `json:"webhookUrl" example:"http://localhost:3000/webhook"`
}

// Subscribe godoc
// @ID          subscribeWebhook
// @Summary     Register a webhook
// @Description Creates the user's webhook subscription or replaces its URL. A user has at most one.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SubscribeRequest  true  "Subscription payload"
//
// @Success     200  {object} domain.WebhookSubscription
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /webhooks/subscribe [post]
func (h *Handlers) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	sub, err := h.subs.SubscribeOrUpdate(c.Request.Context(), services.SubscribeInput{
		UserID:     req.UserID,
		WebhookURL: req.WebhookURL,
	})
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, sub)
}

// GetSubscription godoc
// @ID          getWebhookSubscription
// @Summary     Fetch a user's webhook
// @Tags        Webhooks
// @Produce     json
//
// @Param       userId  path  int  true  "User ID"  minimum(1) example(7)
//
// @Success     200  {object} domain.WebhookSubscription
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "No subscription"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /webhooks/user/{userId} [get]
func (h *Handlers) GetSubscription(c *gin.Context) {
	uid, valid := utils.ParseUserID(c.Param("userId"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "userId must be a positive integer")
		return
	}
	sub, err := h.subs.GetByUser(c.Request.Context(), uid)
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, sub)
}
