// Package slot implements the authoritative timeslot state machine. A slot
// only becomes booked when every required party is simultaneously marked
// available, and booking or cancellation commits all of its per-party events
// as one atomic batch.
package slot

// ParticipantType enumerates the roles a booking requires.
type ParticipantType string

const (
	ParticipantTypeStudent    ParticipantType = "STUDENT"
	ParticipantTypeInstructor ParticipantType = "INSTRUCTOR"
	ParticipantTypeAircraft   ParticipantType = "AIRCRAFT"
)

// ValidParticipantType reports whether t is a known participant type.
func ValidParticipantType(t ParticipantType) bool {
	switch t {
	case ParticipantTypeStudent, ParticipantTypeInstructor, ParticipantTypeAircraft:
		return true
	}
	return false
}

// Participant identifies one party. Identity for set membership is the full
// (ID, Type) pair.
type Participant struct {
	ID   string
	Type ParticipantType
}

// Booking ties a participant to an active booking id.
type Booking struct {
	Participant Participant
	BookingID   string
}

// State captures timeslot facts derived from domain events. Availability and
// bookings are independent sets: booking a participant does not remove them
// from Available.
type State struct {
	Available map[Participant]struct{}
	Bookings  map[Booking]struct{}
}

// NewState returns an empty timeslot.
func NewState() State {
	return State{
		Available: make(map[Participant]struct{}),
		Bookings:  make(map[Booking]struct{}),
	}
}

// IsAvailable reports whether the participant is currently marked available.
func (s State) IsAvailable(p Participant) bool {
	_, ok := s.Available[p]
	return ok
}

// BookingsFor returns the bookings sharing the given booking id.
func (s State) BookingsFor(bookingID string) []Booking {
	var matches []Booking
	for b := range s.Bookings {
		if b.BookingID == bookingID {
			matches = append(matches, b)
		}
	}
	return matches
}
