package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// MatchHandler handles HTTP requests for driver matching.
type MatchHandler struct {
	orchestrator *service.MatchOrchestrator
}

// NewMatchHandler creates a new MatchHandler.
func NewMatchHandler(orchestrator *service.MatchOrchestrator) *MatchHandler {
	return &MatchHandler{orchestrator: orchestrator}
}

// MatchRequestBody is the HTTP request body for a match.
type MatchRequestBody struct {
	PassengerID string               `json:"passenger_id"`
	Pickup      string               `json:"pickup"`
	PickupLat   *float64             `json:"pickup_lat,omitempty"`
	PickupLng   *float64             `json:"pickup_lng,omitempty"`
	Preferences *service.Preferences `json:"preferences,omitempty"`
}

// MatchResponse is the HTTP response for a successful match.
type MatchResponse struct {
	Success                   bool                      `json:"success"`
	BestMatch                 service.ScoredCandidate   `json:"best_match"`
	Alternatives              []service.ScoredCandidate `json:"alternatives"`
	TotalCandidatesConsidered int                       `json:"total_candidates_considered"`
	Recommendation            string                    `json:"recommendation,omitempty"`
}

// NoDriversResponse is the business outcome when nobody can take the ride.
// It is not an error response: the request was handled, the answer is "wait".
type NoDriversResponse struct {
	Success        bool   `json:"success"`
	Error          string `json:"error"`
	Recommendation string `json:"recommendation"`
}

// FindMatch handles POST /v1/match
func (h *MatchHandler) FindMatch(c *gin.Context) {
	var body MatchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	req := service.MatchRequest{
		PassengerID: body.PassengerID,
		Pickup:      body.Pickup,
		Preferences: body.Preferences,
	}
	if body.PickupLat != nil && body.PickupLng != nil {
		req.PickupLocation = &domain.Coordinate{Latitude: *body.PickupLat, Longitude: *body.PickupLng}
	}

	result, err := h.orchestrator.FindMatch(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrNoDriversAvailable) {
			respondJSON(c, http.StatusOK, NoDriversResponse{
				Success:        false,
				Error:          err.Error(),
				Recommendation: service.NoDriversRecommendation,
			})
			return
		}
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, MatchResponse{
		Success:                   true,
		BestMatch:                 result.BestMatch,
		Alternatives:              result.Alternatives,
		TotalCandidatesConsidered: result.TotalCandidatesConsidered,
		Recommendation:            result.Recommendation,
	})
}

// GetDriver handles GET /v1/drivers/:id
func (h *MatchHandler) GetDriver(c *gin.Context) {
	candidate, err := h.orchestrator.GetCandidate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, candidate)
}
