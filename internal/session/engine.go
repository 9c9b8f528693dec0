package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultSendTimeout bounds how long a stored Sending status is honoured. A send that never
// reported back (crashed process) is treated as failed after this long.
const DefaultSendTimeout = 2 * time.Minute

// Classifier is the image classification capability.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (label string, confidence float64, err error)
}

// Notifier is the result delivery capability.
type Notifier interface {
	ValidateAddress(address string) error
	SendResult(ctx context.Context, address, label string) error
}

// Engine renders one interaction: staleness check, inference when needed, then notification.
type Engine struct {
	classifier  Classifier
	notifier    Notifier
	sendTimeout time.Duration
	now         func() time.Time
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithSendTimeout overrides DefaultSendTimeout. Zero disables expiry.
func WithSendTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.sendTimeout = d }
}

// NewEngine builds an Engine around the two external capabilities.
func NewEngine(classifier Classifier, notifier Notifier, opts ...EngineOption) *Engine {
	e := &Engine{
		classifier:  classifier,
		notifier:    notifier,
		sendTimeout: DefaultSendTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render applies ev to state and returns the next state with its view. state is never modified.
//
// When ev starts an email send the returned state is Sending and dispatch is true; the caller
// should persist it and then complete the send with Deliver. When inference fails for a new
// upload the previous result is dropped: the returned state has no upload, no prediction and an
// idle email form. A failed retry of the same upload returns state unchanged.
func (e *Engine) Render(ctx context.Context, state Result, ev Event) (next Result, view View, dispatch bool) {
	next = state.Clone()
	e.expireSend(&next)

	current := next.UploadIdentity
	switch ev := ev.(type) {
	case Upload:
		id := ev.Identity
		current = &id
	case ClearUpload:
		current = nil
	}
	stale := next.IsStale(current)
	if stale {
		next.Reset()
		if current != nil {
			id := *current
			next.UploadIdentity = &id
		}
		if up, ok := ev.(Upload); ok {
			next.UploadName = up.Name
		}
	}

	if up, ok := ev.(Upload); ok && next.HasUpload() && next.Prediction == nil {
		prediction, err := e.infer(ctx, up.Image)
		if err != nil {
			if !stale {
				return state, state.View().withError(err), false
			}
			rejected := Result{UpdatedAt: e.now()}
			return rejected, rejected.View().withError(err), false
		}
		next.Prediction = prediction
	}

	var err error
	switch ev := ev.(type) {
	case SubmitEmail:
		dispatch, err = e.beginSend(&next, ev.Address)
	case ResetEmail:
		err = e.resetEmail(&next)
	}
	next.UpdatedAt = e.now()
	return next, next.View().withError(err), dispatch
}

// Deliver performs the send for a state left in Sending by Render.
func (e *Engine) Deliver(ctx context.Context, state Result) (Result, View) {
	next := state.Clone()
	if next.EmailStatus != EmailSending || next.Prediction == nil {
		return next, next.View()
	}

	err := e.notifier.SendResult(ctx, next.Email, next.Prediction.Label)
	trigger := triggerDelivered
	if err != nil {
		trigger = triggerFailed
		if !errors.Is(err, ErrDelivery) {
			err = fmt.Errorf("%w: %v", ErrDelivery, err)
		}
	}
	next.EmailStatus, _ = nextEmailStatus(next.EmailStatus, trigger)
	next.SendingSince = time.Time{}
	next.UpdatedAt = e.now()

	view := next.View()
	if err != nil {
		return next, view.withError(err)
	}
	view.Message = "Result sent successfully!"
	return next, view
}

// Handle is Render followed by Deliver when a send was started, for callers that do not need
// to persist the intermediate Sending state.
func (e *Engine) Handle(ctx context.Context, state Result, ev Event) (Result, View) {
	next, view, dispatch := e.Render(ctx, state, ev)
	if !dispatch {
		return next, view
	}
	return e.Deliver(ctx, next)
}

func (e *Engine) infer(ctx context.Context, image []byte) (*Prediction, error) {
	label, confidence, err := e.classifier.Classify(ctx, image)
	if err != nil {
		if KindOf(err) == KindInternal {
			err = fmt.Errorf("%w: %v", ErrClassification, err)
		}
		return nil, err
	}
	if label == "" {
		return nil, fmt.Errorf("%w: empty label", ErrClassification)
	}
	return &Prediction{Label: label, Confidence: clampConfidence(confidence)}, nil
}

func (e *Engine) beginSend(r *Result, address string) (bool, error) {
	if r.Prediction == nil {
		return false, ErrNoPrediction
	}
	to, err := nextEmailStatus(r.EmailStatus, triggerSubmit)
	if err != nil {
		return false, err
	}
	address = strings.TrimSpace(address)
	if err := e.notifier.ValidateAddress(address); err != nil {
		if !errors.Is(err, ErrValidation) {
			err = fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return false, err
	}
	r.EmailStatus = to
	r.Email = address
	r.SendingSince = e.now()
	return true, nil
}

func (e *Engine) resetEmail(r *Result) error {
	to, err := nextEmailStatus(r.EmailStatus, triggerReset)
	if err != nil {
		return err
	}
	r.EmailStatus = to
	r.Email = ""
	r.SendingSince = time.Time{}
	return nil
}

func (e *Engine) expireSend(r *Result) {
	if r.EmailStatus != EmailSending || e.sendTimeout <= 0 {
		return
	}
	if e.now().Sub(r.SendingSince) > e.sendTimeout {
		r.EmailStatus, _ = nextEmailStatus(r.EmailStatus, triggerFailed)
		r.SendingSince = time.Time{}
	}
}
