package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"dispatch/internal/domain"
	"dispatch/internal/observability"
	"dispatch/internal/presence"
)

// wsUpgrader is shared by the streaming endpoints. Origin checking is left to
// the deployment's edge.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// PresenceHandler handles presence publish/leave and the observer stream.
type PresenceHandler struct {
	channel *presence.Channel
	logger  *slog.Logger
}

// NewPresenceHandler creates a new PresenceHandler.
func NewPresenceHandler(channel *presence.Channel, logger *slog.Logger) *PresenceHandler {
	return &PresenceHandler{channel: channel, logger: logger}
}

// PublishPresenceRequest is the HTTP request body for a presence update.
type PublishPresenceRequest struct {
	DisplayName    string  `json:"display_name"`
	VehicleLabel   string  `json:"vehicle_label,omitempty"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Heading        float64 `json:"heading,omitempty"`
	SpeedKph       float64 `json:"speed_kph,omitempty"`
	Availability   string  `json:"availability"`
	RatingSnapshot float64 `json:"rating_snapshot,omitempty"`
}

// Publish handles POST /v1/presence/:id
func (h *PresenceHandler) Publish(c *gin.Context) {
	var req PublishPresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	availability := domain.Availability(req.Availability)
	if availability == "" {
		availability = domain.AvailabilityAvailable
	}

	p := domain.DriverPresence{
		DriverID:       c.Param("id"),
		DisplayName:    req.DisplayName,
		VehicleLabel:   req.VehicleLabel,
		Position:       domain.Coordinate{Latitude: req.Latitude, Longitude: req.Longitude},
		Heading:        req.Heading,
		SpeedKph:       req.SpeedKph,
		Availability:   availability,
		RatingSnapshot: req.RatingSnapshot,
		LastUpdatedAt:  time.Now().UTC(),
	}

	if err := h.channel.Publish(c.Request.Context(), p); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusAccepted, gin.H{"status": "published"})
}

// Leave handles DELETE /v1/presence/:id
func (h *PresenceHandler) Leave(c *gin.Context) {
	if err := h.channel.Leave(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "left"})
}

// Observe handles GET /v1/presence/observe, upgrading to a websocket that
// receives a full snapshot on every presence change. Optional lat/lng query
// parameters set a reference point: the stream is then filtered to available
// drivers, sorted by distance and truncated to the nearest ten.
func (h *PresenceHandler) Observe(c *gin.Context) {
	ref, err := refFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	snapshots, err := h.channel.Observe(c.Request.Context(), ref)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for snap := range snapshots {
		observability.PresentDrivers.Set(float64(len(snap)))
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// refFromQuery parses the optional lat/lng reference point. Both must be
// present or both absent.
func refFromQuery(c *gin.Context) (*domain.Coordinate, error) {
	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr == "" && lngStr == "" {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, domain.ErrInvalidCoordinate
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, domain.ErrInvalidCoordinate
	}

	ref := &domain.Coordinate{Latitude: lat, Longitude: lng}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return ref, nil
}
