package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// RideHandler handles HTTP requests for the ride lifecycle.
type RideHandler struct {
	rides  *service.RideService
	logger *slog.Logger
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rides *service.RideService, logger *slog.Logger) *RideHandler {
	return &RideHandler{rides: rides, logger: logger}
}

// CreateRideRequest is the HTTP request body for creating a ride.
type CreateRideRequest struct {
	PassengerID  string     `json:"passenger_id"`
	Pickup       string     `json:"pickup"`
	Destination  string     `json:"destination"`
	Price        float64    `json:"price,omitempty"`
	RideType     string     `json:"ride_type,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

// AcceptRideRequest is the HTTP request body for accepting a ride.
type AcceptRideRequest struct {
	DriverID string `json:"driver_id"`
}

// TransitionRideRequest is the HTTP request body for a status transition.
type TransitionRideRequest struct {
	Status       string `json:"status"`
	CancelReason string `json:"cancel_reason,omitempty"`
}

// PostUpdateRequest is the HTTP request body for an in-trip update.
type PostUpdateRequest struct {
	DriverID         string     `json:"driver_id"`
	DriverLat        *float64   `json:"driver_lat,omitempty"`
	DriverLng        *float64   `json:"driver_lng,omitempty"`
	EstimatedArrival *time.Time `json:"estimated_arrival,omitempty"`
	StatusMessage    string     `json:"status_message,omitempty"`
}

// RideResponse is the HTTP representation of a ride.
type RideResponse struct {
	ID           string  `json:"id"`
	PassengerID  string  `json:"passenger_id"`
	DriverID     string  `json:"driver_id,omitempty"`
	Pickup       string  `json:"pickup"`
	Destination  string  `json:"destination"`
	Price        float64 `json:"price"`
	RideType     string  `json:"ride_type,omitempty"`
	Status       string  `json:"status"`
	ScheduledFor string  `json:"scheduled_for,omitempty"`
	CreatedAt    string  `json:"created_at"`
	CancelReason string  `json:"cancel_reason,omitempty"`
}

// RideUpdateResponse is the HTTP representation of an in-trip update.
type RideUpdateResponse struct {
	ID               string   `json:"id"`
	RideID           string   `json:"ride_id"`
	DriverLat        *float64 `json:"driver_lat,omitempty"`
	DriverLng        *float64 `json:"driver_lng,omitempty"`
	EstimatedArrival string   `json:"estimated_arrival,omitempty"`
	StatusMessage    string   `json:"status_message,omitempty"`
	CreatedAt        string   `json:"created_at"`
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	in := service.CreateRideRequest{
		PassengerID: req.PassengerID,
		Pickup:      req.Pickup,
		Destination: req.Destination,
		Price:       req.Price,
		RideType:    req.RideType,
	}
	if req.ScheduledFor != nil {
		in.ScheduledFor = *req.ScheduledFor
	}

	ride, err := h.rides.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toRideResponse(ride))
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.rides.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// AcceptRide handles POST /v1/rides/:id/accept
func (h *RideHandler) AcceptRide(c *gin.Context) {
	var req AcceptRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rides.Accept(c.Request.Context(), c.Param("id"), req.DriverID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// TransitionRide handles POST /v1/rides/:id/transition
func (h *RideHandler) TransitionRide(c *gin.Context) {
	var req TransitionRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rides.Transition(c.Request.Context(), c.Param("id"), domain.RideStatus(req.Status), req.CancelReason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// PostUpdate handles POST /v1/rides/:id/updates
func (h *RideHandler) PostUpdate(c *gin.Context) {
	var req PostUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	var location *domain.Coordinate
	if req.DriverLat != nil && req.DriverLng != nil {
		location = &domain.Coordinate{Latitude: *req.DriverLat, Longitude: *req.DriverLng}
	}

	update, err := h.rides.PostUpdate(c.Request.Context(), c.Param("id"), req.DriverID, location, req.EstimatedArrival, req.StatusMessage)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toUpdateResponse(update))
}

// ListUpdates handles GET /v1/rides/:id/updates
func (h *RideHandler) ListUpdates(c *gin.Context) {
	updates, err := h.rides.ListUpdates(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]RideUpdateResponse, 0, len(updates))
	for _, u := range updates {
		out = append(out, toUpdateResponse(u))
	}
	respondJSON(c, http.StatusOK, out)
}

// StreamRide handles GET /v1/rides/:id/stream, upgrading to a websocket that
// carries ride change events until the client disconnects.
func (h *RideHandler) StreamRide(c *gin.Context) {
	events, err := h.rides.Subscribe(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.streamEvents(c, events)
}

// StreamByStatus handles GET /v1/rides/stream?status=requested, a websocket
// feed of every ride entering the given status.
func (h *RideHandler) StreamByStatus(c *gin.Context) {
	events, err := h.rides.SubscribeStatus(c.Request.Context(), domain.RideStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	h.streamEvents(c, events)
}

func (h *RideHandler) streamEvents(c *gin.Context, events <-chan domain.RideEvent) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close/ping handling keeps working.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for event := range events {
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func toRideResponse(ride *domain.Ride) RideResponse {
	resp := RideResponse{
		ID:           ride.ID,
		PassengerID:  ride.PassengerID,
		DriverID:     ride.DriverID,
		Pickup:       ride.Pickup,
		Destination:  ride.Destination,
		Price:        ride.Price,
		RideType:     ride.RideType,
		Status:       string(ride.Status),
		CreatedAt:    ride.CreatedAt.Format(time.RFC3339),
		CancelReason: ride.CancelReason,
	}
	if !ride.ScheduledFor.IsZero() {
		resp.ScheduledFor = ride.ScheduledFor.Format(time.RFC3339)
	}
	return resp
}

func toUpdateResponse(u *domain.RideUpdate) RideUpdateResponse {
	resp := RideUpdateResponse{
		ID:            u.ID,
		RideID:        u.RideID,
		StatusMessage: u.StatusMessage,
		CreatedAt:     u.CreatedAt.Format(time.RFC3339),
	}
	if u.DriverLocation != nil {
		lat, lng := u.DriverLocation.Latitude, u.DriverLocation.Longitude
		resp.DriverLat, resp.DriverLng = &lat, &lng
	}
	if u.EstimatedArrival != nil {
		resp.EstimatedArrival = u.EstimatedArrival.Format(time.RFC3339)
	}
	return resp
}
