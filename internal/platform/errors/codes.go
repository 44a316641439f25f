// Package errors provides structured, coded errors shared across the service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Slot errors
	CodeSlotNotBookable      Code = "SLOT_NOT_BOOKABLE"
	CodeSlotIDRequired       Code = "SLOT_ID_REQUIRED"
	CodeParticipantIDEmpty   Code = "PARTICIPANT_ID_EMPTY"
	CodeParticipantTypeBad   Code = "PARTICIPANT_TYPE_INVALID"
	CodeBookingIDRequired    Code = "BOOKING_ID_REQUIRED"
	CodeBookingNotFound      Code = "BOOKING_NOT_FOUND"
	CodeSlotStatusInvalid    Code = "SLOT_STATUS_INVALID"
	CodeRequestBodyMalformed Code = "REQUEST_BODY_MALFORMED"

	// Operational errors
	CodeOutboxRequestInvalid Code = "OUTBOX_REQUEST_INVALID"

	// Infrastructure errors
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
)

// HTTPStatus maps an error code to the HTTP status the API layer should emit.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeSlotNotBookable,
		CodeSlotIDRequired,
		CodeParticipantIDEmpty,
		CodeParticipantTypeBad,
		CodeBookingIDRequired,
		CodeBookingNotFound,
		CodeSlotStatusInvalid,
		CodeRequestBodyMalformed,
		CodeOutboxRequestInvalid:
		return http.StatusBadRequest
	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
