package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/airstriplabs/slotbook/internal/booking/service"
	"github.com/airstriplabs/slotbook/internal/booking/storage"
	"github.com/airstriplabs/slotbook/internal/booking/storage/sqlite"
	apperrors "github.com/airstriplabs/slotbook/internal/platform/errors"
	"github.com/airstriplabs/slotbook/internal/platform/logger"
)

type handler struct {
	svc *service.Service
	ops Ops
	log *logger.Logger
}

type availabilityRequest struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type bookRequest struct {
	StudentID    string `json:"studentId"`
	AircraftID   string `json:"aircraftId"`
	InstructorID string `json:"instructorId"`
	BookingID    string `json:"bookingId"`
}

type slotRowResponse struct {
	SlotID          string    `json:"slot_id"`
	ParticipantID   string    `json:"participant_id"`
	ParticipantType string    `json:"participant_type"`
	Status          string    `json:"status"`
	BookingID       string    `json:"booking_id"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) markAvailability(c *gin.Context) {
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.CodeRequestBodyMalformed, "request body must be valid JSON", err))
		return
	}
	if err := h.svc.MarkAvailable(c.Request.Context(), c.Param("slotId"), req.ID, req.Type); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) unmarkAvailability(c *gin.Context) {
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.CodeRequestBodyMalformed, "request body must be valid JSON", err))
		return
	}
	if err := h.svc.UnmarkAvailable(c.Request.Context(), c.Param("slotId"), req.ID, req.Type); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) getSlot(c *gin.Context) {
	view, err := h.svc.GetSlot(c.Request.Context(), c.Param("slotId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handler) bookSlot(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.CodeRequestBodyMalformed, "request body must be valid JSON", err))
		return
	}
	bookingID, err := h.svc.BookSlot(c.Request.Context(), c.Param("slotId"), req.StudentID, req.AircraftID, req.InstructorID, req.BookingID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"bookingId": bookingID})
}

func (h *handler) cancelBooking(c *gin.Context) {
	if err := h.svc.CancelBooking(c.Request.Context(), c.Param("slotId"), c.Param("bookingId")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) listSlots(c *gin.Context) {
	rows, err := h.svc.ListSlotsByParticipant(c.Request.Context(), c.Param("participantId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": toSlotRowResponses(rows)})
}

func (h *handler) listSlotsByStatus(c *gin.Context) {
	rows, err := h.svc.ListSlotsByParticipantAndStatus(c.Request.Context(), c.Param("participantId"), c.Param("status"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": toSlotRowResponses(rows)})
}

func (h *handler) outboxSummaries(c *gin.Context) {
	ctx := c.Request.Context()
	propagation, err := h.ops.GetPropagationOutboxSummary(ctx)
	if err != nil {
		writeError(c, apperrors.Wrap(apperrors.CodeStorageUnavailable, "outbox summary failed", err))
		return
	}
	projection, err := h.ops.GetProjectionApplyOutboxSummary(ctx)
	if err != nil {
		writeError(c, apperrors.Wrap(apperrors.CodeStorageUnavailable, "outbox summary failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"propagation":      propagation,
		"projection_apply": projection,
	})
}

const defaultAdminOutboxLimit = 50

// Admin queue path segments.
const (
	outboxQueuePropagation     = "propagation"
	outboxQueueProjectionApply = "projection_apply"
)

func (h *handler) listOutboxRows(c *gin.Context) {
	status := c.Query("status")
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "pending", "processing", "failed", "dead":
	default:
		writeError(c, apperrors.New(apperrors.CodeOutboxRequestInvalid, fmt.Sprintf("invalid outbox status %q", status)))
		return
	}

	ctx := c.Request.Context()
	limit := queryLimit(c, defaultAdminOutboxLimit)

	var (
		entries []sqlite.OutboxEntry
		err     error
	)
	switch c.Param("queue") {
	case outboxQueuePropagation:
		entries, err = h.ops.ListPropagationOutboxRows(ctx, status, limit)
	case outboxQueueProjectionApply:
		entries, err = h.ops.ListProjectionApplyOutboxRows(ctx, status, limit)
	default:
		writeError(c, apperrors.New(apperrors.CodeOutboxRequestInvalid, fmt.Sprintf("unknown outbox queue %q", c.Param("queue"))))
		return
	}
	if err != nil {
		writeError(c, apperrors.Wrap(apperrors.CodeStorageUnavailable, "list outbox rows failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": entries})
}

func (h *handler) requeueOutboxDead(c *gin.Context) {
	ctx := c.Request.Context()
	limit := queryLimit(c, defaultAdminOutboxLimit)
	now := time.Now().UTC()

	var (
		requeued int
		err      error
	)
	switch c.Param("queue") {
	case outboxQueuePropagation:
		requeued, err = h.ops.RequeuePropagationOutboxDeadRows(ctx, limit, now)
	case outboxQueueProjectionApply:
		requeued, err = h.ops.RequeueProjectionApplyOutboxDeadRows(ctx, limit, now)
	default:
		writeError(c, apperrors.New(apperrors.CodeOutboxRequestInvalid, fmt.Sprintf("unknown outbox queue %q", c.Param("queue"))))
		return
	}
	if err != nil {
		writeError(c, apperrors.Wrap(apperrors.CodeStorageUnavailable, "requeue dead outbox rows failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"requeued": requeued})
}

// queryLimit reads the limit query parameter, falling back to def when
// absent or not a positive integer.
func queryLimit(c *gin.Context, def int) int {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}

func (h *handler) watermarks(c *gin.Context) {
	watermarks, err := h.ops.ListProjectionWatermarks(c.Request.Context())
	if err != nil {
		writeError(c, apperrors.Wrap(apperrors.CodeStorageUnavailable, "list watermarks failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"watermarks": watermarks})
}

func (h *handler) verifyIntegrity(c *gin.Context) {
	if err := h.ops.VerifyEventIntegrity(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"status": "corrupt", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func toSlotRowResponses(rows []storage.SlotRow) []slotRowResponse {
	out := make([]slotRowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, slotRowResponse{
			SlotID:          row.SlotID,
			ParticipantID:   row.ParticipantID,
			ParticipantType: row.ParticipantType,
			Status:          string(row.Status),
			BookingID:       row.BookingID,
			UpdatedAt:       row.UpdatedAt,
		})
	}
	return out
}

// writeError renders the coded error shape every route shares.
func writeError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	c.JSON(code.HTTPStatus(), gin.H{
		"error": err.Error(),
		"code":  string(code),
	})
}
