package controllers

import (
	"log/slog"
	"net/http"

	"gatherplan/internal/delivery/http/helpers"
	"gatherplan/internal/domain"
)

// AIScoreRequest is the request body for PUT /options/{optionID}/ai-score.
type AIScoreRequest struct {
	Score     *float64 `json:"score" validate:"required,gte=0,lte=100"`
	Reasoning string   `json:"reasoning" validate:"max=5000"`
	Pros      []string `json:"pros" validate:"max=20,dive,max=500"`
	Cons      []string `json:"cons" validate:"max=20,dive,max=500"`
}

// VoteRequest is the request body for PUT /events/{eventID}/options/{optionID}/vote.
type VoteRequest struct {
	Value   *int   `json:"value" validate:"required,gte=-1,lte=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

// VenueOptionsSuccessResponse is the success envelope for option lists.
type VenueOptionsSuccessResponse struct {
	Data  []*domain.VenueOption `json:"data"`
	Error *helpers.APIError     `json:"error"`
}

// VenueOptionSuccessResponse is the success envelope for a single option.
type VenueOptionSuccessResponse struct {
	Data  *domain.VenueOption `json:"data"`
	Error *helpers.APIError   `json:"error"`
}

// VoteStatisticsSuccessResponse is the success envelope for GET /events/{eventID}/votes/statistics (200).
type VoteStatisticsSuccessResponse struct {
	Data  *domain.VoteStatistics `json:"data"`
	Error *helpers.APIError      `json:"error"`
}

type VenueController struct {
	Logger   *slog.Logger
	Registry domain.RegistryService
	Tally    domain.TallyService
}

func NewVenueController(logger *slog.Logger, registry domain.RegistryService, tally domain.TallyService) *VenueController {
	return &VenueController{
		Logger:   logger,
		Registry: registry,
		Tally:    tally,
	}
}

// AddOption godoc
// @Summary Add a candidate venue
// @Description Adding the same source twice returns the existing option.
// @Tags options
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param option body VenueOptionRequest true "Venue option"
// @Success 201 {object} controllers.VenueOptionSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state"
// @Router /events/{eventID}/options [post]
func (c *VenueController) AddOption(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "eventID")
	if !ok {
		return
	}
	var req VenueOptionRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	if _, ok := currentUser(w, r); !ok {
		return
	}
	opt, err := c.Registry.AddOption(r.Context(), params[0], req.toInput())
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, opt)
}

// ListOptions godoc
// @Summary List candidate venues
// @Description Highest AI score first; unscored options last.
// @Tags options
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.VenueOptionsSuccessResponse
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/options [get]
func (c *VenueController) ListOptions(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "eventID")
	if !ok {
		return
	}
	if _, ok := currentUser(w, r); !ok {
		return
	}
	opts, err := c.Registry.GetOptions(r.Context(), params[0])
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, opts)
}

// SetAIScore godoc
// @Summary Record the reasoning engine's score for an option
// @Tags options
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param optionID path string true "Venue option ID"
// @Param body body AIScoreRequest true "Score in [0, 100]"
// @Success 200 {object} controllers.VenueOptionSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /options/{optionID}/ai-score [put]
func (c *VenueController) SetAIScore(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "optionID")
	if !ok {
		return
	}
	var req AIScoreRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	if _, ok := currentUser(w, r); !ok {
		return
	}
	opt, err := c.Registry.SetAiScore(r.Context(), params[0], domain.AIScoreUpdate{
		Score:     *req.Score,
		Reasoning: req.Reasoning,
		Pros:      req.Pros,
		Cons:      req.Cons,
	})
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, opt)
}

// CastVote godoc
// @Summary Vote on a venue option
// @Description Values range from -1 to 5; voting again on the same option replaces the earlier vote.
// @Tags votes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param optionID path string true "Venue option ID"
// @Param body body VoteRequest true "Vote"
// @Success 200 {object} helpers.APIResponse{data=domain.Vote}
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state"
// @Router /events/{eventID}/options/{optionID}/vote [put]
func (c *VenueController) CastVote(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "eventID", "optionID")
	if !ok {
		return
	}
	var req VoteRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	vote, err := c.Tally.CastVote(r.Context(), params[0], params[1], userID, *req.Value, req.Comment)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, vote)
}

// GetStatistics godoc
// @Summary Voting progress and per-option tallies
// @Tags votes
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.VoteStatisticsSuccessResponse
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/votes/statistics [get]
func (c *VenueController) GetStatistics(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "eventID")
	if !ok {
		return
	}
	if _, ok := currentUser(w, r); !ok {
		return
	}
	stats, err := c.Tally.GetStatistics(r.Context(), params[0])
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, stats)
}

// GetWinner godoc
// @Summary Preview the current winning option
// @Description Highest vote score, then highest AI score, then earliest added.
// @Tags votes
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.VenueOptionSuccessResponse
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 422 {object} helpers.APIResponse "error.code: no_candidates"
// @Router /events/{eventID}/votes/winner [get]
func (c *VenueController) GetWinner(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "eventID")
	if !ok {
		return
	}
	if _, ok := currentUser(w, r); !ok {
		return
	}
	winner, err := c.Tally.DetermineWinner(r.Context(), params[0])
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, winner)
}
