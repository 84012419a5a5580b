// Package acquire runs one CNR acquisition end to end. Each pass opens a
// fresh browser session, solves the CAPTCHA, classifies the result, and on
// success extracts the record and retrieves its documents. Recoverable
// outcomes close the session and start over under bounded budgets.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/documents"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/extract"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/metrics"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/pagestate"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/retry"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/session"
)

// Session is one live browser context as the orchestrator uses it.
type Session interface {
	pagestate.Page
	extract.Source
	documents.Page
	NavigateToPortal(ctx context.Context) error
	CaptureCaptchaImage(ctx context.Context) ([]byte, error)
	SubmitIdentifierAndCaptcha(ctx context.Context, id, captchaText string) error
	ProfileDir() string
	Close() error
}

var _ Session = (*session.Session)(nil)

// Opener creates sessions.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// Solver reads CAPTCHA text from an image.
type Solver interface {
	Recognize(ctx context.Context, img []byte) (string, error)
}

// Classifier judges the page after a submission.
type Classifier interface {
	Classify(ctx context.Context, page pagestate.Page, timeout time.Duration) (cnr.PageState, error)
}

// Retriever fetches the documents behind order rows.
type Retriever interface {
	Retrieve(ctx context.Context, page documents.Page, ref cnr.CaseReference, rows []cnr.OrderRow) ([]cnr.DocumentReference, documents.Report)
}

// Pacer throttles session opens against the portal.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config bounds the whole-run retry loop.
type Config struct {
	PortalURL string
	// CaptchaRetries is how many fresh sessions may follow a misread CAPTCHA.
	CaptchaRetries int
	// TransientRetries is how many fresh sessions may follow an unresolved or
	// failed page. Zero on either budget means the first failure is final.
	TransientRetries int
	RetryDelay       time.Duration
	ClassifyTimeout  time.Duration
}

// Orchestrator implements cnr.Acquirer.
type Orchestrator struct {
	cfg        Config
	opener     Opener
	solver     Solver
	classifier Classifier
	retriever  Retriever
	pacer      Pacer
	logger     *zap.Logger
}

// New wires an Orchestrator. pacer may be nil.
func New(
	cfg Config,
	opener Opener,
	solver Solver,
	classifier Classifier,
	retriever Retriever,
	pacer Pacer,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if opener == nil || solver == nil || classifier == nil || retriever == nil {
		return nil, errors.New("acquire: opener, solver, classifier and retriever are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PortalURL == "" {
		cfg.PortalURL = session.DefaultPortalURL
	}
	if cfg.CaptchaRetries < 0 {
		cfg.CaptchaRetries = 0
	}
	if cfg.TransientRetries < 0 {
		cfg.TransientRetries = 0
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = 20 * time.Second
	}
	return &Orchestrator{
		cfg:        cfg,
		opener:     opener,
		solver:     solver,
		classifier: classifier,
		retriever:  retriever,
		pacer:      pacer,
		logger:     logger,
	}, nil
}

// Acquire loops over fresh sessions until the portal yields a record, a
// definitive not-found, an unclassified failure, or a budget runs out.
func (o *Orchestrator) Acquire(ctx context.Context, req cnr.Request) (cnr.CaseRecord, error) {
	if !req.Reference.Valid() {
		return cnr.CaseRecord{}, fmt.Errorf("acquire %q: %w", req.Reference, cnr.ErrInvalidReference)
	}
	logger := o.logger.With(zap.String("cnr", req.Reference.String()))

	// Budgets count retries, so each allows one more session than its max.
	captchaBudget := retryBudget(o.cfg.CaptchaRetries, o.cfg.RetryDelay)
	transientBudget := retryBudget(o.cfg.TransientRetries, o.cfg.RetryDelay)

	for sessions := 1; ; sessions++ {
		state, rec, err := o.runSession(ctx, req, sessions)
		metrics.ObserveSessionAttempt(state.String())
		logger.Info("session finished",
			zap.Int("attempt", sessions),
			zap.Stringer("state", state),
			zap.Error(err),
		)
		if ctxErr := ctx.Err(); ctxErr != nil && state != cnr.StateSuccess {
			return cnr.CaseRecord{}, fmt.Errorf("acquire %s: %w", req.Reference, ctxErr)
		}

		var budget *retry.Budget
		switch state {
		case cnr.StateSuccess:
			rec.SessionsOpened = sessions
			return rec, nil
		case cnr.StateRecordNotFound:
			return cnr.CaseRecord{}, fmt.Errorf("acquire %s: %w", req.Reference, cnr.ErrRecordNotFound)
		case cnr.StateInvalidCaptcha:
			budget = captchaBudget
		case cnr.StateTransientError:
			budget = transientBudget
		default:
			if err == nil {
				err = errors.New("page state could not be determined")
			}
			return cnr.CaseRecord{}, fmt.Errorf("acquire %s: %w: %w", req.Reference, cnr.ErrUnexpected, err)
		}

		if budget == nil || !budget.Take() {
			cause := err
			if cause == nil {
				cause = fmt.Errorf("last state %s", state)
			}
			return cnr.CaseRecord{}, fmt.Errorf("acquire %s: %w after %d sessions: %w",
				req.Reference, cnr.ErrRetriesExhausted, sessions, cause)
		}
		if err := budget.Wait(ctx); err != nil {
			return cnr.CaseRecord{}, fmt.Errorf("acquire %s: %w", req.Reference, err)
		}
	}
}

// retryBudget returns nil when no retries are allowed.
func retryBudget(retries int, delay time.Duration) *retry.Budget {
	if retries <= 0 {
		return nil
	}
	return retry.NewBudget(retries, delay)
}

// runSession is one pass from Init to a classified state. The session is
// always closed before it returns.
func (o *Orchestrator) runSession(ctx context.Context, req cnr.Request, attempt int) (cnr.PageState, cnr.CaseRecord, error) {
	if o.pacer != nil {
		if err := o.pacer.Wait(ctx, o.cfg.PortalURL); err != nil {
			return cnr.StateUnknown, cnr.CaseRecord{}, err
		}
	}

	sess, err := o.opener.Open(ctx)
	if err != nil {
		return cnr.StateTransientError, cnr.CaseRecord{}, fmt.Errorf("open session: %w", err)
	}
	logger := o.logger.With(
		zap.String("cnr", req.Reference.String()),
		zap.Int("attempt", attempt),
		zap.String("profile", sess.ProfileDir()),
	)
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("close session", zap.Error(err))
		}
	}()

	if err := sess.NavigateToPortal(ctx); err != nil {
		return cnr.StateTransientError, cnr.CaseRecord{}, err
	}
	img, err := sess.CaptureCaptchaImage(ctx)
	if err != nil {
		return cnr.StateTransientError, cnr.CaseRecord{}, err
	}
	text, err := o.solver.Recognize(ctx, img)
	if err != nil {
		return cnr.StateTransientError, cnr.CaseRecord{}, fmt.Errorf("recognize captcha: %w", err)
	}
	if text == "" {
		logger.Debug("captcha unreadable, skipping submit")
		return cnr.StateInvalidCaptcha, cnr.CaseRecord{}, nil
	}
	if err := sess.SubmitIdentifierAndCaptcha(ctx, req.Reference.String(), text); err != nil {
		return cnr.StateTransientError, cnr.CaseRecord{}, err
	}

	state, err := o.classifier.Classify(ctx, sess, o.cfg.ClassifyTimeout)
	if err != nil || state != cnr.StateSuccess {
		return state, cnr.CaseRecord{}, err
	}

	rec, rows, err := extract.Extract(ctx, sess)
	if err != nil {
		return cnr.StateTransientError, cnr.CaseRecord{}, err
	}
	rec.Reference = req.Reference
	rec.History = FilterHistory(rec.History, req.Cutoff)
	rows = FilterOrders(rows, req.Cutoff)

	docs, report := o.retriever.Retrieve(ctx, sess, req.Reference, rows)
	rec.Documents = docs
	rec.ListedOrders = report.Listed
	rec.DocumentGaps = report.Gaps()
	rec.RecordStatus = cnr.RecordStatusComplete
	logger.Info("record extracted",
		zap.Int("history", len(rec.History)),
		zap.Int("listed", report.Listed),
		zap.Int("retrieved", report.Retrieved),
	)
	return cnr.StateSuccess, rec, nil
}
