package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"gatherplan/internal/delivery/http/helpers"
	"gatherplan/internal/domain"
)

// CreateEventRequest is the request body for POST /events.
type CreateEventRequest struct {
	Title               string              `json:"title" validate:"required,max=200"`
	Description         string              `json:"description" validate:"max=5000"`
	ScheduledAt         time.Time           `json:"scheduled_at" validate:"required"`
	Timezone            string              `json:"timezone" validate:"omitempty,timezone"`
	DurationMinutes     int                 `json:"duration_minutes" validate:"gte=0,lte=10080"`
	ExpectedAttendees   int                 `json:"expected_attendees" validate:"gte=0,lte=10000"`
	AcceptanceThreshold *float64            `json:"acceptance_threshold" validate:"omitempty,gte=0,lte=1"`
	BudgetTotal         *float64            `json:"budget_total" validate:"omitempty,gte=0"`
	BudgetPerPerson     *float64            `json:"budget_per_person" validate:"omitempty,gte=0"`
	Privacy             string              `json:"privacy" validate:"omitempty,oneof=public private"`
	RSVPDeadline        *time.Time          `json:"rsvp_deadline"`
	PreferenceDeadline  *time.Time          `json:"preference_deadline"`
	VotingDeadline      *time.Time          `json:"voting_deadline"`
	FinalVenue          *VenueOptionRequest `json:"final_venue" validate:"omitempty"`
}

func (c CreateEventRequest) toInput() domain.NewEventInput {
	in := domain.NewEventInput{
		Title:               c.Title,
		Description:         c.Description,
		ScheduledAt:         c.ScheduledAt,
		Timezone:            c.Timezone,
		DurationMinutes:     c.DurationMinutes,
		ExpectedAttendees:   c.ExpectedAttendees,
		AcceptanceThreshold: c.AcceptanceThreshold,
		BudgetTotal:         c.BudgetTotal,
		BudgetPerPerson:     c.BudgetPerPerson,
		Privacy:             domain.Privacy(c.Privacy),
		RSVPDeadline:        c.RSVPDeadline,
		PreferenceDeadline:  c.PreferenceDeadline,
		VotingDeadline:      c.VotingDeadline,
	}
	if c.FinalVenue != nil {
		venue := c.FinalVenue.toInput()
		in.FinalVenue = &venue
	}
	return in
}

// EventSuccessResponse is the success response envelope for a single event.
type EventSuccessResponse struct {
	Data  *domain.Event     `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// ListMyEventsResponse is the paginated list of events the caller organizes.
type ListMyEventsResponse struct {
	Items      []*domain.Event        `json:"items"`
	Pagination helpers.PaginationMeta `json:"pagination"`
}

// ListMyEventsSuccessResponse is the success response envelope for GET /events (200).
type ListMyEventsSuccessResponse struct {
	Data  ListMyEventsResponse `json:"data"`
	Error *helpers.APIError    `json:"error"`
}

// CancelEventRequest is the request body for POST /events/{eventID}/cancel.
type CancelEventRequest struct {
	Reason string `json:"reason" validate:"required,min=10,max=1000"`
}

// CreateSeriesRequest is the request body for POST /series.
type CreateSeriesRequest struct {
	Title               string     `json:"title" validate:"required,max=200"`
	Description         string     `json:"description" validate:"max=5000"`
	Timezone            string     `json:"timezone" validate:"omitempty,timezone"`
	Frequency           string     `json:"frequency" validate:"required,oneof=weekly monthly"`
	Interval            int        `json:"interval" validate:"omitempty,gte=1,lte=52"`
	FirstOccurrence     time.Time  `json:"first_occurrence" validate:"required"`
	Until               *time.Time `json:"until"`
	LeadTimeHours       int        `json:"lead_time_hours" validate:"gte=0,lte=2160"`
	RSVPOffsetHours     int        `json:"rsvp_offset_hours" validate:"gte=0,lte=2160"`
	DurationMinutes     int        `json:"duration_minutes" validate:"gte=0,lte=10080"`
	ExpectedAttendees   int        `json:"expected_attendees" validate:"gte=0,lte=10000"`
	AcceptanceThreshold float64    `json:"acceptance_threshold" validate:"gte=0,lte=1"`
	Privacy             string     `json:"privacy" validate:"omitempty,oneof=public private"`
}

// SeriesSuccessResponse is the success response envelope for POST /series (201).
type SeriesSuccessResponse struct {
	Data  *domain.RecurringSeries `json:"data"`
	Error *helpers.APIError       `json:"error"`
}

type EventController struct {
	Logger    *slog.Logger
	Lifecycle domain.LifecycleService
	Recurring domain.RecurringExpander
}

func NewEventController(logger *slog.Logger, lifecycle domain.LifecycleService, recurring domain.RecurringExpander) *EventController {
	return &EventController{
		Logger:    logger,
		Lifecycle: lifecycle,
		Recurring: recurring,
	}
}

// CreateEvent godoc
// @Summary Create an event
// @Description Creates a Draft event organized by the caller. When final_venue is given the event is confirmed immediately and skips recommendation and voting.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param event body CreateEventRequest true "Event data"
// @Success 201 {object} controllers.EventSuccessResponse "data contains the created event"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events [post]
func (c *EventController) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ev, err := c.Lifecycle.CreateEvent(r.Context(), userID, req.toInput())
	if err != nil {
		if ev != nil {
			c.Logger.Warn("event created but not confirmed", "event_id", ev.ID, "err", err)
		}
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, ev)
}

// GetEvent godoc
// @Summary Get an event by ID
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.EventSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID} [get]
func (c *EventController) GetEvent(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(w, r, "eventID")
	if !ok {
		return
	}
	if _, ok := currentUser(w, r); !ok {
		return
	}
	ev, err := c.Lifecycle.GetEvent(r.Context(), params[0])
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, ev)
}

// ListMyEvents godoc
// @Summary List events organized by the caller
// @Description Newest first. Supports page and page_size query parameters.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} controllers.ListMyEventsSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Router /events [get]
func (c *EventController) ListMyEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	params := helpers.ParsePagination(r)
	events, total, err := c.Lifecycle.ListEventsByOrganizer(r.Context(), userID, params)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	meta := helpers.NewPaginationMeta(params.Page, params.PageSize, total)
	helpers.WriteJSONSuccess(w, http.StatusOK, ListMyEventsResponse{Items: events, Pagination: meta})
}

// Publish godoc
// @Summary Publish a draft event
// @Description Moves the event from draft to planning. Organizer only. Repeating the call reports applied=false.
// @Tags lifecycle
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.TransitionSuccessResponse
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state"
// @Router /events/{eventID}/publish [post]
func (c *EventController) Publish(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, c.Lifecycle.Publish)
}

// CheckAcceptance godoc
// @Summary Re-evaluate the acceptance threshold
// @Description Starts preference gathering once enough invitees accepted, or cancels the event after an expired RSVP deadline. Otherwise a no-op.
// @Tags lifecycle
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.TransitionSuccessResponse
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state"
// @Router /events/{eventID}/check-acceptance [post]
func (c *EventController) CheckAcceptance(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, func(ctx context.Context, eventID, _ string) (*domain.TransitionResult, error) {
		return c.Lifecycle.CheckAcceptance(ctx, eventID)
	})
}

// StartRecommendation godoc
// @Summary Close preference gathering early
// @Description Moves the event to ai_recommending and triggers venue scoring. Organizer only.
// @Tags lifecycle
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.TransitionSuccessResponse
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state"
// @Router /events/{eventID}/start-recommendation [post]
func (c *EventController) StartRecommendation(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, c.Lifecycle.StartRecommendation)
}

// MarkScoresReady godoc
// @Summary Signal that venue scoring finished
// @Description Callback for the reasoning engine. Opens voting when at least one option is scored.
// @Tags lifecycle
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.TransitionSuccessResponse
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state"
// @Router /events/{eventID}/scores-ready [post]
func (c *EventController) MarkScoresReady(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, func(ctx context.Context, eventID, _ string) (*domain.TransitionResult, error) {
		return c.Lifecycle.MarkScoresReady(ctx, eventID)
	})
}

// Finalize godoc
// @Summary Close voting and confirm the winning venue
// @Tags lifecycle
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.TransitionSuccessResponse
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state"
// @Failure 422 {object} helpers.APIResponse "error.code: no_candidates"
// @Router /events/{eventID}/finalize [post]
func (c *EventController) Finalize(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, c.Lifecycle.Finalize)
}

// ConfirmWithVenue godoc
// @Summary Confirm a draft event with an organizer-chosen venue
// @Tags lifecycle
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param venue body VenueOptionRequest true "Venue"
// @Success 200 {object} controllers.TransitionSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state"
// @Router /events/{eventID}/confirm [post]
func (c *EventController) ConfirmWithVenue(w http.ResponseWriter, r *http.Request) {
	var req VenueOptionRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	c.transition(w, r, func(ctx context.Context, eventID, actorID string) (*domain.TransitionResult, error) {
		return c.Lifecycle.ConfirmWithVenue(ctx, eventID, actorID, req.toInput())
	})
}

// Cancel godoc
// @Summary Cancel an event
// @Description Organizer only. Any non-terminal event can be cancelled; the reason is kept on the event.
// @Tags lifecycle
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param body body CancelEventRequest true "Cancellation reason"
// @Success 200 {object} controllers.TransitionSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state"
// @Router /events/{eventID}/cancel [post]
func (c *EventController) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	c.transition(w, r, func(ctx context.Context, eventID, actorID string) (*domain.TransitionResult, error) {
		return c.Lifecycle.Cancel(ctx, eventID, actorID, req.Reason)
	})
}

// CreateSeries godoc
// @Summary Create a recurring event series
// @Description Draft events are created lead_time_hours before each occurrence.
// @Tags series
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param series body CreateSeriesRequest true "Series definition"
// @Success 201 {object} controllers.SeriesSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Router /series [post]
func (c *EventController) CreateSeries(w http.ResponseWriter, r *http.Request) {
	var req CreateSeriesRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	interval := req.Interval
	if interval == 0 {
		interval = 1
	}
	series, err := c.Recurring.CreateSeries(r.Context(), &domain.RecurringSeries{
		OrganizerID:         userID,
		Title:               req.Title,
		Description:         req.Description,
		Timezone:            req.Timezone,
		Frequency:           domain.Frequency(req.Frequency),
		Interval:            interval,
		NextOccurrence:      req.FirstOccurrence,
		Until:               req.Until,
		LeadTime:            time.Duration(req.LeadTimeHours) * time.Hour,
		RSVPOffset:          time.Duration(req.RSVPOffsetHours) * time.Hour,
		DurationMinutes:     req.DurationMinutes,
		ExpectedAttendees:   req.ExpectedAttendees,
		AcceptanceThreshold: req.AcceptanceThreshold,
		Privacy:             domain.Privacy(req.Privacy),
	})
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, series)
}

func (c *EventController) transition(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, eventID, actorID string) (*domain.TransitionResult, error)) {
	params, ok := pathParams(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	res, err := fn(r.Context(), params[0], userID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, res)
}
