package domain

import "strings"

// EventStatus is the lifecycle label of an event.
type EventStatus string

const (
	StatusDraft                EventStatus = "draft"
	StatusPlanning             EventStatus = "planning"
	StatusGatheringPreferences EventStatus = "gathering_preferences"
	StatusAIRecommending       EventStatus = "ai_recommending"
	StatusVoting               EventStatus = "voting"
	StatusConfirmed            EventStatus = "confirmed"
	StatusCompleted            EventStatus = "completed"
	StatusCancelled            EventStatus = "cancelled"
)

var statusRank = map[EventStatus]int{
	StatusDraft:                0,
	StatusPlanning:             1,
	StatusGatheringPreferences: 2,
	StatusAIRecommending:       3,
	StatusVoting:               4,
	StatusConfirmed:            5,
	StatusCompleted:            6,
}

// ParseEventStatus canonicalizes a status label.
func ParseEventStatus(value string) (EventStatus, bool) {
	s := EventStatus(strings.ToLower(strings.TrimSpace(value)))
	if s == StatusCancelled {
		return s, true
	}
	if _, ok := statusRank[s]; ok {
		return s, true
	}
	return "", false
}

// IsTerminal reports whether no further transition can leave s.
func (s EventStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HasVenue reports whether events in s must carry a final venue.
func (s EventStatus) HasVenue() bool {
	return s == StatusConfirmed || s == StatusCompleted
}

// Reached reports whether an event in s has already progressed to target or beyond it.
// A cancelled event counts as having reached every target, so late commands become no-ops.
func (s EventStatus) Reached(target EventStatus) bool {
	if s == StatusCancelled {
		return true
	}
	if target == StatusCancelled {
		return false
	}
	return statusRank[s] >= statusRank[target]
}

// isStatusTransitionAllowed enforces the event lifecycle graph.
func isStatusTransitionAllowed(from, to EventStatus) bool {
	if to == StatusCancelled {
		return !from.IsTerminal() && from != ""
	}
	switch from {
	case StatusDraft:
		return to == StatusPlanning || to == StatusConfirmed
	case StatusPlanning:
		return to == StatusGatheringPreferences || to == StatusConfirmed
	case StatusGatheringPreferences:
		return to == StatusAIRecommending
	case StatusAIRecommending:
		return to == StatusVoting
	case StatusVoting:
		return to == StatusConfirmed
	case StatusConfirmed:
		return to == StatusCompleted
	default:
		return false
	}
}

// CanTransition reports whether a status transition is permitted.
func CanTransition(from, to EventStatus) bool {
	return isStatusTransitionAllowed(from, to)
}

// In reports whether s is one of the given statuses.
func (s EventStatus) In(statuses ...EventStatus) bool {
	for _, candidate := range statuses {
		if s == candidate {
			return true
		}
	}
	return false
}
