package handlers

import (
	"errors"
	"net/http"

	"blinds_bridge/internal/dispatcher"
	"blinds_bridge/internal/gateway"
	"blinds_bridge/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	statusOK = "ok"

	errDeviceNotFound    = "device not found"
	errGetState          = "failed to load state"
	errNotConnected      = "gateway not connected"
	errGatewayRejected   = "gateway rejected the command"
	errGatewayTimeout    = "gateway did not acknowledge in time"
	errCommandSuperseded = "command superseded by a newer request"
	errCommandFailed     = "command failed"
	errInvalidBodyPref   = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// commandStatus maps a write boundary error to a status code and a client message.
func commandStatus(err error) (int, string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, models.ErrDeviceNotFound):
		return http.StatusNotFound, errDeviceNotFound
	case errors.Is(err, dispatcher.ErrSuperseded):
		return http.StatusConflict, errCommandSuperseded
	case gateway.IsCommandKind(err, gateway.NotConnected):
		return http.StatusServiceUnavailable, errNotConnected
	case gateway.IsCommandKind(err, gateway.GatewayRejected):
		return http.StatusBadGateway, errGatewayRejected
	case gateway.IsCommandKind(err, gateway.CommandTimeout):
		return http.StatusGatewayTimeout, errGatewayTimeout
	default:
		return http.StatusInternalServerError, errCommandFailed
	}
}

// readError writes 404 for unknown ids and 500 otherwise.
func (h *Handler) readError(c *gin.Context, err error) {
	if errors.Is(err, models.ErrDeviceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": errDeviceNotFound})
		return
	}
	h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "accessory_get_state_failed", err, "device", c.Param("id"))
}

// SetTargetRequest is the payload of PUT /accessories/{id}/target-position.
type SetTargetRequest struct {
	// Requested position, 0 = closed, 100 = open
	Value *int `json:"value" binding:"required" example:"70"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      List accessories
// @Tags         accessories
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, accessories"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/accessories [get]
// @Security     BearerAuth
func (h *Handler) listAccessories(c *gin.Context) {
	snaps, err := h.services.ListSnapshots(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "accessory_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":       len(snaps),
		"accessories": snaps,
	})
}

// @Summary      Get accessory snapshot
// @Tags         accessories
// @Produce      json
// @Param        id   path      string  true  "Device id"
// @Success      200  {object}  models.DeviceSnapshot
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/accessories/{id} [get]
// @Security     BearerAuth
func (h *Handler) getAccessory(c *gin.Context) {
	snap, err := h.services.GetSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.readError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// @Summary      Get current position
// @Tags         accessories
// @Produce      json
// @Param        id   path      string  true  "Device id"
// @Success      200  {object}  map[string]int
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/accessories/{id}/current-position [get]
// @Security     BearerAuth
func (h *Handler) getCurrentPosition(c *gin.Context) {
	v, err := h.services.GetCurrentPosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.readError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": v})
}

// @Summary      Get target position
// @Tags         accessories
// @Produce      json
// @Param        id   path      string  true  "Device id"
// @Success      200  {object}  map[string]int
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/accessories/{id}/target-position [get]
// @Security     BearerAuth
func (h *Handler) getTargetPosition(c *gin.Context) {
	v, err := h.services.GetTargetPosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.readError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": v})
}

// @Summary      Get battery level and low battery flag
// @Tags         accessories
// @Produce      json
// @Param        id   path      string  true  "Device id"
// @Success      200  {object}  map[string]interface{}  "value, low"
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/accessories/{id}/battery [get]
// @Security     BearerAuth
func (h *Handler) getBattery(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	level, err := h.services.GetBatteryLevel(ctx, id)
	if err != nil {
		h.readError(c, err)
		return
	}
	low, err := h.services.GetLowBatteryFlag(ctx, id)
	if err != nil {
		h.readError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": level, "low": low})
}

// @Summary      Set target position
// @Description  Blocks until the gateway acknowledges. On failure the target is reverted.
// @Tags         accessories
// @Accept       json
// @Produce      json
// @Param        id    path   string            true  "Device id"
// @Param        body  body   SetTargetRequest  true  "Target payload"
// @Success      200   {object}  models.DeviceSnapshot
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Failure      504   {object}  map[string]string
// @Router       /api/v1/accessories/{id}/target-position [put]
// @Security     BearerAuth
func (h *Handler) setTargetPosition(c *gin.Context) {
	var req SetTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.services.SetTargetPosition(ctx, id, *req.Value); err != nil {
		code, msg := commandStatus(err)
		if code >= http.StatusInternalServerError || code == http.StatusConflict {
			h.logAndJSONError(c, code, msg, "accessory_set_target_failed", err, "device", id, "value", *req.Value, "controller", controllerID(c))
			return
		}
		c.JSON(code, gin.H{"error": msg})
		return
	}
	snap, err := h.services.GetSnapshot(ctx, id)
	if err != nil {
		h.readError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
