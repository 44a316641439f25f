// Package httpapi is the thin HTTP adapter over the booking service. Routing
// and status mapping live here; every decision belongs to the layers below.
package httpapi

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/airstriplabs/slotbook/internal/booking/service"
	"github.com/airstriplabs/slotbook/internal/booking/storage"
	"github.com/airstriplabs/slotbook/internal/booking/storage/sqlite"
	"github.com/airstriplabs/slotbook/internal/platform/logger"
)

// Ops is the operational introspection surface backed by the sqlite store.
type Ops interface {
	GetPropagationOutboxSummary(ctx context.Context) (sqlite.OutboxSummary, error)
	GetProjectionApplyOutboxSummary(ctx context.Context) (sqlite.OutboxSummary, error)
	ListPropagationOutboxRows(ctx context.Context, status string, limit int) ([]sqlite.OutboxEntry, error)
	ListProjectionApplyOutboxRows(ctx context.Context, status string, limit int) ([]sqlite.OutboxEntry, error)
	RequeuePropagationOutboxDeadRows(ctx context.Context, limit int, now time.Time) (int, error)
	RequeueProjectionApplyOutboxDeadRows(ctx context.Context, limit int, now time.Time) (int, error)
	ListProjectionWatermarks(ctx context.Context) ([]storage.ProjectionWatermark, error)
	VerifyEventIntegrity(ctx context.Context) error
}

// RouterConfig wires the router's dependencies.
type RouterConfig struct {
	Service     *service.Service
	Ops         Ops
	Log         *logger.Logger
	ServiceName string
}

// NewRouter builds the gin engine with all routes and middleware attached.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Log == nil {
		cfg.Log = logger.NewNop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "slotbook"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger(cfg.Log))
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: false,
	}))

	h := &handler{svc: cfg.Service, ops: cfg.Ops, log: cfg.Log}

	router.GET("/healthz", h.health)

	flight := router.Group("/flight")
	{
		flight.POST("/availability/:slotId", h.markAvailability)
		flight.DELETE("/availability/:slotId", h.unmarkAvailability)
		flight.GET("/availability/:slotId", h.getSlot)
		flight.POST("/bookings/:slotId", h.bookSlot)
		flight.DELETE("/bookings/:slotId/:bookingId", h.cancelBooking)
		flight.GET("/slots/:participantId", h.listSlots)
		flight.GET("/slots/:participantId/:status", h.listSlotsByStatus)
	}

	if cfg.Ops != nil {
		admin := router.Group("/admin")
		{
			admin.GET("/outbox", h.outboxSummaries)
			admin.GET("/outbox/:queue", h.listOutboxRows)
			admin.POST("/outbox/:queue/requeue", h.requeueOutboxDead)
			admin.GET("/watermarks", h.watermarks)
			admin.POST("/integrity/verify", h.verifyIntegrity)
		}
	}

	return router
}
