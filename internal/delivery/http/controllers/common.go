package controllers

import (
	"net/http"

	"gatherplan/internal/delivery/http/helpers"
	"gatherplan/internal/delivery/http/middleware"
	"gatherplan/internal/domain"
)

// TransitionSuccessResponse is the success envelope of every lifecycle action.
type TransitionSuccessResponse struct {
	Data  *domain.TransitionResult `json:"data"`
	Error *helpers.APIError        `json:"error"`
}

// VenueOptionRequest describes a venue either by internal place id or by external provider id.
type VenueOptionRequest struct {
	Kind            string                `json:"kind" validate:"required,oneof=internal external"`
	PlaceID         string                `json:"place_id" validate:"omitempty,max=200"`
	Provider        string                `json:"provider" validate:"omitempty,max=50"`
	ExternalPlaceID string                `json:"external_place_id" validate:"omitempty,max=200"`
	Snapshot        *domain.VenueSnapshot `json:"snapshot"`
	DistanceMeters  *int                  `json:"distance_meters" validate:"omitempty,gte=0"`
	DurationSeconds *int                  `json:"duration_seconds" validate:"omitempty,gte=0"`
}

func (v VenueOptionRequest) toInput() domain.VenueOptionInput {
	return domain.VenueOptionInput{
		Source: domain.VenueSource{
			Kind:            domain.VenueSourceKind(v.Kind),
			PlaceID:         v.PlaceID,
			Provider:        v.Provider,
			ExternalPlaceID: v.ExternalPlaceID,
		},
		Snapshot:        v.Snapshot,
		DistanceMeters:  v.DistanceMeters,
		DurationSeconds: v.DurationSeconds,
	}
}

// currentUser returns the authenticated user id, writing 401 when there is none.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}

// pathParams reads the named path values, writing 400 when one is empty.
func pathParams(w http.ResponseWriter, r *http.Request, names ...string) ([]string, bool) {
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = r.PathValue(name)
		if values[i] == "" {
			helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing "+name)
			return nil, false
		}
	}
	return values, true
}
