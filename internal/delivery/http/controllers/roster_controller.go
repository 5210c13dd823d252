package controllers

import (
	"log/slog"
	"net/http"

	"gatherplan/internal/delivery/http/helpers"
	"gatherplan/internal/domain"
)

// InviteRequest is the request body for POST /events/{eventID}/participants.
type InviteRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,max=500,dive,required,max=100"`
}

// RespondRequest is the request body for POST /events/{eventID}/rsvp.
type RespondRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

// PreferenceRequest is the request body for PUT /events/{eventID}/preferences.
type PreferenceRequest struct {
	Cuisines           []string `json:"cuisines" validate:"max=20,dive,required,max=50"`
	MaxBudgetPerPerson *float64 `json:"max_budget_per_person" validate:"omitempty,gte=0"`
	MaxDistanceKm      *float64 `json:"max_distance_km" validate:"omitempty,gte=0"`
	Notes              string   `json:"notes" validate:"max=1000"`
}

// AcceptanceResponse reports roster counts and the acceptance ratio of an event.
type AcceptanceResponse struct {
	Counts domain.RosterCounts `json:"counts"`
	Ratio  float64             `json:"ratio"`
}

// ParticipantsSuccessResponse is the success envelope for participant lists.
type ParticipantsSuccessResponse struct {
	Data  []*domain.Participant `json:"data"`
	Error *helpers.APIError     `json:"error"`
}

// RespondSuccessResponse is the success envelope for POST /events/{eventID}/rsvp (200).
type RespondSuccessResponse struct {
	Data  *domain.RespondResult `json:"data"`
	Error *helpers.APIError     `json:"error"`
}

// WaitlistSuccessResponse is the success envelope for waitlist lists.
type WaitlistSuccessResponse struct {
	Data  []*domain.WaitlistEntry `json:"data"`
	Error *helpers.APIError       `json:"error"`
}

// GroupPreferencesSuccessResponse is the success envelope for GET /events/{eventID}/preferences (200).
type GroupPreferencesSuccessResponse struct {
	Data  *domain.GroupPreferences `json:"data"`
	Error *helpers.APIError        `json:"error"`
}

type RosterController struct {
	Logger      *slog.Logger
	Roster      domain.RosterService
	Waitlist    domain.WaitlistService
	Preferences domain.PreferenceService
}

func NewRosterController(logger *slog.Logger, roster domain.RosterService, waitlist domain.WaitlistService, prefs domain.PreferenceService) *RosterController {
	return &RosterController{
		Logger:      logger,
		Roster:      roster,
		Waitlist:    waitlist,
		Preferences: prefs,
	}
}

// Invite godoc
// @Summary Invite users to an event
// @Description Organizer only. Users already on the roster are skipped; data holds the newly invited participants.
// @Tags participants
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param body body InviteRequest true "User ids"
// @Success 201 {object} controllers.ParticipantsSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state"
// @Router /events/{eventID}/participants [post]
func (c *RosterController) Invite(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "eventID")
	if !ok {
		return
	}
	var req InviteRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	created, err := c.Roster.Invite(r.Context(), params[0], userID, req.UserIDs)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, created)
}

// ListParticipants godoc
// @Summary List the participants of an event
// @Tags participants
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.ParticipantsSuccessResponse
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/participants [get]
func (c *RosterController) ListParticipants(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "eventID")
	if !ok {
		return
	}
	if _, ok := currentUser(w, r); !ok {
		return
	}
	list, err := c.Roster.ListParticipants(r.Context(), params[0])
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, list)
}

// Respond godoc
// @Summary Accept or decline an invitation
// @Description The caller answers their own invitation. Accepting a full event places the caller on the waitlist.
// @Tags participants
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param body body RespondRequest true "Response"
// @Success 200 {object} controllers.RespondSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state"
// @Router /events/{eventID}/rsvp [post]
func (c *RosterController) Respond(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "eventID")
	if !ok {
		return
	}
	var req RespondRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	res, err := c.Roster.Respond(r.Context(), params[0], userID, *req.Accept)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, res)
}

// RemoveParticipant godoc
// @Summary Remove a participant
// @Description Organizer only. Frees a seat, which promotes the head of the waitlist.
// @Tags participants
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param userID path string true "User ID"
// @Success 204 "No Content"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/participants/{userID} [delete]
func (c *RosterController) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "eventID", "userID")
	if !ok {
		return
	}
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := c.Roster.Remove(r.Context(), params[0], actorID, params[1]); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAcceptance godoc
// @Summary Roster counts and acceptance ratio
// @Tags participants
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} helpers.APIResponse{data=controllers.AcceptanceResponse}
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/acceptance [get]
func (c *RosterController) GetAcceptance(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "eventID")
	if !ok {
		return
	}
	if _, ok := currentUser(w, r); !ok {
		return
	}
	counts, err := c.Roster.Counts(r.Context(), params[0])
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, AcceptanceResponse{Counts: counts, Ratio: counts.AcceptanceRatio()})
}

// JoinWaitlist godoc
// @Summary Join the waitlist of an event
// @Description Joining twice returns the original entry.
// @Tags waitlist
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} helpers.APIResponse{data=domain.WaitlistEntry}
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state"
// @Router /events/{eventID}/waitlist [post]
func (c *RosterController) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	entry, err := c.Waitlist.Join(r.Context(), params[0], userID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, entry)
}

// ListWaitlist godoc
// @Summary List the waitlist in promotion order
// @Tags waitlist
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.WaitlistSuccessResponse
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/waitlist [get]
func (c *RosterController) ListWaitlist(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "eventID")
	if !ok {
		return
	}
	if _, ok := currentUser(w, r); !ok {
		return
	}
	list, err := c.Waitlist.List(r.Context(), params[0])
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, list)
}

// SubmitPreference godoc
// @Summary Submit the caller's venue preferences
// @Description Accepted participants only, while the event is planning or gathering preferences. Resubmitting replaces the earlier answer.
// @Tags preferences
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param body body PreferenceRequest true "Preferences"
// @Success 200 {object} helpers.APIResponse{data=domain.Preference}
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state"
// @Router /events/{eventID}/preferences [put]
func (c *RosterController) SubmitPreference(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "eventID")
	if !ok {
		return
	}
	var req PreferenceRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	pref, err := c.Preferences.Submit(r.Context(), &domain.Preference{
		EventID:            params[0],
		UserID:             userID,
		Cuisines:           req.Cuisines,
		MaxBudgetPerPerson: req.MaxBudgetPerPerson,
		MaxDistanceKm:      req.MaxDistanceKm,
		Notes:              req.Notes,
	})
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, pref)
}

// GroupPreferences godoc
// @Summary Aggregated preferences of an event
// @Tags preferences
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.GroupPreferencesSuccessResponse
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/preferences [get]
func (c *RosterController) GroupPreferences(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "eventID")
	if !ok {
		return
	}
	if _, ok := currentUser(w, r); !ok {
		return
	}
	group, err := c.Preferences.Group(r.Context(), params[0])
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, group)
}
