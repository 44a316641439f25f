package slot

// AvailabilityPayload captures the payload for slot.mark_available and
// slot.unmark_available commands and the marked/unmarked events they emit.
type AvailabilityPayload struct {
	SlotID          string `json:"slot_id"`
	ParticipantID   string `json:"participant_id"`
	ParticipantType string `json:"participant_type"`
}

// BookPayload captures the payload for slot.book commands.
type BookPayload struct {
	StudentID    string `json:"student_id"`
	AircraftID   string `json:"aircraft_id"`
	InstructorID string `json:"instructor_id"`
	BookingID    string `json:"booking_id"`
}

// BookingPayload captures the payload for slot.participant_booked and
// slot.participant_canceled events, one event per booked party.
type BookingPayload struct {
	SlotID          string `json:"slot_id"`
	ParticipantID   string `json:"participant_id"`
	ParticipantType string `json:"participant_type"`
	BookingID       string `json:"booking_id"`
}

// CancelPayload captures the payload for slot.cancel_booking commands.
type CancelPayload struct {
	BookingID string `json:"booking_id"`
}
