package session

import (
	"errors"
	"net/http"
)

var (
	ErrArtifactUnavailable = errors.New("classifier artifact unavailable")
	ErrDecode              = errors.New("uploaded file is not a valid image")
	ErrClassification      = errors.New("classification failed")
	ErrValidation          = errors.New("invalid email address")
	ErrDelivery            = errors.New("email delivery failed")
	ErrSendInProgress      = errors.New("an email is already being sent")
	ErrAlreadySent         = errors.New("result already sent")
	ErrNoPrediction        = errors.New("no prediction available")
)

// ErrorKind is the user-facing category of a failed interaction.
type ErrorKind string

const (
	KindArtifactUnavailable ErrorKind = "artifact_unavailable"
	KindDecode              ErrorKind = "decode_error"
	KindClassification      ErrorKind = "classification_error"
	KindValidation          ErrorKind = "validation_error"
	KindDelivery            ErrorKind = "delivery_failure"
	KindConflict            ErrorKind = "conflict"
	KindInternal            ErrorKind = "internal_error"
)

// KindOf maps an error to its kind. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrArtifactUnavailable):
		return KindArtifactUnavailable
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrClassification):
		return KindClassification
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrDelivery):
		return KindDelivery
	case errors.Is(err, ErrSendInProgress), errors.Is(err, ErrAlreadySent), errors.Is(err, ErrNoPrediction):
		return KindConflict
	default:
		return KindInternal
	}
}

// HTTPStatus is the response status used for an error kind.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindArtifactUnavailable:
		return http.StatusServiceUnavailable
	case KindDecode:
		return http.StatusUnprocessableEntity
	case KindClassification, KindDelivery:
		return http.StatusBadGateway
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
