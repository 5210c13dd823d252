package http

import (
	"log/slog"
	"net/http"

	"gatherplan/internal/delivery/http/controllers"
	"gatherplan/internal/delivery/http/helpers"
	"gatherplan/internal/delivery/http/middleware"
	"gatherplan/internal/domain"

	httpSwagger "github.com/swaggo/http-swagger"
)

// Controllers groups the handlers mounted by NewRouter.
type Controllers struct {
	Events *controllers.EventController
	Roster *controllers.RosterController
	Venues *controllers.VenueController
}

// NewRouter initializes the HTTP router with all application routes
func NewRouter(c Controllers, verifier domain.TokenVerifier, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(verifier, logger)

	// Events
	mux.HandleFunc("POST /events", auth(c.Events.CreateEvent))
	mux.HandleFunc("GET /events", auth(c.Events.ListMyEvents))
	mux.HandleFunc("GET /events/{eventID}", auth(c.Events.GetEvent))
	mux.HandleFunc("POST /series", auth(c.Events.CreateSeries))

	// Lifecycle
	mux.HandleFunc("POST /events/{eventID}/publish", auth(c.Events.Publish))
	mux.HandleFunc("POST /events/{eventID}/check-acceptance", auth(c.Events.CheckAcceptance))
	mux.HandleFunc("POST /events/{eventID}/start-recommendation", auth(c.Events.StartRecommendation))
	mux.HandleFunc("POST /events/{eventID}/scores-ready", auth(c.Events.MarkScoresReady))
	mux.HandleFunc("POST /events/{eventID}/finalize", auth(c.Events.Finalize))
	mux.HandleFunc("POST /events/{eventID}/confirm", auth(c.Events.ConfirmWithVenue))
	mux.HandleFunc("POST /events/{eventID}/cancel", auth(c.Events.Cancel))

	// Roster
	mux.HandleFunc("POST /events/{eventID}/participants", auth(c.Roster.Invite))
	mux.HandleFunc("GET /events/{eventID}/participants", auth(c.Roster.ListParticipants))
	mux.HandleFunc("DELETE /events/{eventID}/participants/{userID}", auth(c.Roster.RemoveParticipant))
	mux.HandleFunc("POST /events/{eventID}/rsvp", auth(c.Roster.Respond))
	mux.HandleFunc("GET /events/{eventID}/acceptance", auth(c.Roster.GetAcceptance))
	mux.HandleFunc("POST /events/{eventID}/waitlist", auth(c.Roster.JoinWaitlist))
	mux.HandleFunc("GET /events/{eventID}/waitlist", auth(c.Roster.ListWaitlist))
	mux.HandleFunc("PUT /events/{eventID}/preferences", auth(c.Roster.SubmitPreference))
	mux.HandleFunc("GET /events/{eventID}/preferences", auth(c.Roster.GroupPreferences))

	// Venues and votes
	mux.HandleFunc("POST /events/{eventID}/options", auth(c.Venues.AddOption))
	mux.HandleFunc("GET /events/{eventID}/options", auth(c.Venues.ListOptions))
	mux.HandleFunc("PUT /options/{optionID}/ai-score", auth(c.Venues.SetAIScore))
	mux.HandleFunc("PUT /events/{eventID}/options/{optionID}/vote", auth(c.Venues.CastVote))
	mux.HandleFunc("GET /events/{eventID}/votes/statistics", auth(c.Venues.GetStatistics))
	mux.HandleFunc("GET /events/{eventID}/votes/winner", auth(c.Venues.GetWinner))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		helpers.WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
