package session

import "errors"

var errInvalidTransition = errors.New("invalid email status transition")

type emailTrigger int

const (
	triggerSubmit emailTrigger = iota
	triggerDelivered
	triggerFailed
	triggerReset
)

type emailEdge struct {
	from    EmailStatus
	trigger emailTrigger
}

var emailTransitions = map[emailEdge]EmailStatus{
	{EmailIdle, triggerSubmit}:       EmailSending,
	{EmailSending, triggerDelivered}: EmailSent,
	{EmailSending, triggerFailed}:    EmailIdle,
	{EmailSent, triggerReset}:        EmailIdle,
	{EmailIdle, triggerReset}:        EmailIdle,
}

var emailRejections = map[emailEdge]error{
	{EmailSending, triggerSubmit}: ErrSendInProgress,
	{EmailSending, triggerReset}:  ErrSendInProgress,
	{EmailSent, triggerSubmit}:    ErrAlreadySent,
}

// nextEmailStatus is the single source of truth for notification status changes.
func nextEmailStatus(from EmailStatus, trigger emailTrigger) (EmailStatus, error) {
	if to, ok := emailTransitions[emailEdge{from, trigger}]; ok {
		return to, nil
	}
	if err, ok := emailRejections[emailEdge{from, trigger}]; ok {
		return from, err
	}
	return from, errInvalidTransition
}
