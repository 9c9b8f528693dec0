package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/mri-check/internal/logging"
	"github.com/example/mri-check/internal/retry"
	"github.com/example/mri-check/internal/session"
)

// SessionStore defines the persistence operations needed by the use case.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*session.Result, error)
	Save(ctx context.Context, sessionID string, state *session.Result) error
	Delete(ctx context.Context, sessionID string) error
}

// SessionUseCase runs one interaction of a session: load its state, render the event, save.
type SessionUseCase struct {
	store   SessionStore
	engine  *session.Engine
	logger  *zap.Logger
	policy  retry.Policy
	locks   *sessionLocks
	metrics *metrics
}

// NewSessionUseCase constructs a new use case instance.
func NewSessionUseCase(store SessionStore, engine *session.Engine, logger *zap.Logger) *SessionUseCase {
	return &SessionUseCase{
		store:   store,
		engine:  engine,
		logger:  logger.Named("session_usecase"),
		policy:  retry.DefaultPolicy(),
		locks:   newSessionLocks(),
		metrics: newMetrics(),
	}
}

// Interact applies ev to the session and returns the resulting view. User-facing failures are
// reported in the view; the error is only set when the session state could not be read or
// written.
func (uc *SessionUseCase) Interact(ctx context.Context, sessionID string, ev session.Event) (session.View, error) {
	unlock := uc.lock(sessionID)
	defer unlock()

	opLogger := logging.WithOperation(uc.logger, "usecase.interact", sessionID)
	start := time.Now()

	state, err := uc.load(ctx, sessionID)
	if err != nil {
		opLogger.Error("failed to load session", zap.Error(err))
		return session.View{}, err
	}

	next, view, dispatch := uc.engine.Render(ctx, *state, ev)
	uc.metrics.observeRender(*state, next, view)
	if err := uc.save(ctx, sessionID, &next); err != nil {
		opLogger.Error("failed to save session", zap.Error(err))
		return session.View{}, err
	}

	if dispatch {
		next, view = uc.engine.Deliver(ctx, next)
		uc.metrics.observeDelivery(view)
		if err := uc.save(ctx, sessionID, &next); err != nil {
			opLogger.Error("failed to save session after send", zap.Error(err))
			return session.View{}, err
		}
	}

	if view.Error != nil {
		opLogger.Warn("interaction rejected",
			zap.String("kind", string(view.Error.Kind)),
			zap.String("reason", view.Error.Message),
		)
	}
	opLogger.Debug("interaction rendered",
		zap.String("event", eventName(ev)),
		zap.String("email_status", view.EmailStatus),
		zap.Duration("took", time.Since(start)),
	)
	return view, nil
}

// End discards the session's state.
func (uc *SessionUseCase) End(ctx context.Context, sessionID string) error {
	unlock := uc.lock(sessionID)
	defer unlock()

	return retry.Do(ctx, uc.policy, uc.logger, "store.delete", sessionID, func() error {
		return uc.store.Delete(ctx, sessionID)
	})
}

func (uc *SessionUseCase) load(ctx context.Context, sessionID string) (*session.Result, error) {
	var state *session.Result
	err := retry.Do(ctx, uc.policy, uc.logger, "store.load", sessionID, func() error {
		loaded, err := uc.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		state = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (uc *SessionUseCase) save(ctx context.Context, sessionID string, state *session.Result) error {
	return retry.Do(ctx, uc.policy, uc.logger, "store.save", sessionID, func() error {
		return uc.store.Save(ctx, sessionID, state)
	})
}

// lock serialises interactions of one session within this process.
func (uc *SessionUseCase) lock(sessionID string) func() {
	return uc.locks.acquire(sessionID)
}

func eventName(ev session.Event) string {
	switch ev.(type) {
	case session.Upload:
		return "upload"
	case session.ClearUpload:
		return "clear_upload"
	case session.SubmitEmail:
		return "submit_email"
	case session.ResetEmail:
		return "reset_email"
	default:
		return "refresh"
	}
}
