// Package memory is a mutex-guarded implementation of every repository port. It backs the
// test suites and STORE_DRIVER=memory deployments.
package memory

import (
	"sync"

	"gatherplan/internal/domain"
)

type voteKey struct {
	optionID string
	voterID  string
}

// Store holds all entities behind a single lock, so multi-entity operations are atomic.
type Store struct {
	mu sync.Mutex

	events       map[string]*domain.Event
	participants map[string]map[string]*domain.Participant
	options      map[string]*domain.VenueOption
	optionSeq    int64
	votes        map[voteKey]*domain.Vote
	waitlist     map[string][]*domain.WaitlistEntry
	waitlistSeq  int64
	outbox       []*domain.DomainEvent
	outboxKeys   map[string]struct{}
	preferences  map[string]map[string]*domain.Preference
	series       map[string]*domain.RecurringSeries
	users        map[string]*domain.User
}

// New returns an empty store.
func New() *Store {
	return &Store{
		events:       make(map[string]*domain.Event),
		participants: make(map[string]map[string]*domain.Participant),
		options:      make(map[string]*domain.VenueOption),
		votes:        make(map[voteKey]*domain.Vote),
		waitlist:     make(map[string][]*domain.WaitlistEntry),
		outboxKeys:   make(map[string]struct{}),
		preferences:  make(map[string]map[string]*domain.Preference),
		series:       make(map[string]*domain.RecurringSeries),
		users:        make(map[string]*domain.User),
	}
}

func (s *Store) Events() domain.EventRepository { return &eventRepo{s} }
func (s *Store) Participants() domain.ParticipantRepository { return &participantRepo{s} }
func (s *Store) Waitlist() domain.WaitlistRepository { return &waitlistRepo{s} }
func (s *Store) VenueOptions() domain.VenueOptionRepository { return &venueOptionRepo{s} }
func (s *Store) Votes() domain.VoteRepository { return &voteRepo{s} }
func (s *Store) DomainEvents() domain.DomainEventRepository { return &domainEventRepo{s} }
func (s *Store) Preferences() domain.PreferenceRepository { return &preferenceRepo{s} }
func (s *Store) RecurringSeries() domain.RecurringSeriesRepository { return &seriesRepo{s} }
func (s *Store) Users() domain.UserRepository { return &userRepo{s} }

// PutUser seeds a user record.
func (s *Store) PutUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *u
	s.users[u.ID] = &c
}

// appendEventsLocked stores events whose key is new. Caller holds s.mu.
func (s *Store) appendEventsLocked(events []*domain.DomainEvent) {
	for _, ev := range events {
		if _, dup := s.outboxKeys[ev.Key]; dup {
			continue
		}
		s.outboxKeys[ev.Key] = struct{}{}
		c := *ev
		s.outbox = append(s.outbox, &c)
	}
}

func (s *Store) acceptedCountLocked(eventID string) int {
	n := 0
	for _, p := range s.participants[eventID] {
		if p.Status == domain.InvitationAccepted {
			n++
		}
	}
	return n
}
