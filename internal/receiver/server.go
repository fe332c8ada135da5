package receiver

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-article-webhooks/internal/http/middleware"
)

// maxBody caps an accepted delivery body.
const maxBody = 1 << 20

var receivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "receiver_webhooks_received_total",
		Help: "Webhook deliveries accepted by the receiver, by event type.",
	},
	[]string{"event_type"},
)

func init() {
	prometheus.MustRegister(receivedTotal)
}

// Server exposes a Store over HTTP.
type Server struct {
	store *Store
	now   func() time.Time
}

// NewServer wraps store. A nil store gets DefaultCapacity.
func NewServer(store *Store) *Server {
	if store == nil {
		store = NewStore(DefaultCapacity)
	}
	return &Server{store: store, now: time.Now}
}

// Handler builds the gin engine:
//
//	POST   /webhook        record a delivery
//	GET    /webhooks       list, newest first (?limit=)
//	GET    /webhooks/:id   one delivery
//	DELETE /webhooks       clear history
//	GET    /stats          counters
//	GET    /health         liveness
//	GET    /metrics        Prometheus
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(), middleware.Recovery())

	r.POST("/webhook", s.receive)
	r.GET("/webhooks", s.list)
	r.GET("/webhooks/:id", s.get)
	r.DELETE("/webhooks", s.clear)
	r.GET("/stats", func(c *gin.Context) { c.JSON(http.StatusOK, s.store.Stats()) })
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func (s *Server) receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBody))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large", "status": "error"})
		return
	}
	if !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be JSON", "status": "error"})
		return
	}

	var head struct {
		EventType string `json:"eventType"`
	}
	_ = json.Unmarshal(body, &head)

	d := s.store.Add(head.EventType, body, s.now())
	receivedTotal.WithLabelValues(eventLabel(d.EventType)).Inc()

	zerolog.Ctx(c.Request.Context()).Info().
		Str("delivery_id", d.ID).
		Str("event_type", d.EventType).
		Str("user_agent", c.GetHeader("User-Agent")).
		RawJSON("body", d.Body).
		Msg("webhook received")

	c.JSON(http.StatusOK, gin.H{"status": "received", "id": d.ID})
}

func (s *Server) list(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer", "status": "error"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, s.store.List(limit))
}

func (s *Server) get(c *gin.Context) {
	d, ok := s.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "delivery not found", "status": "error"})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) clear(c *gin.Context) {
	s.store.Clear()
	zerolog.Ctx(c.Request.Context()).Info().Msg("webhook history cleared")
	c.Status(http.StatusNoContent)
}
