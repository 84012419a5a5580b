// Package pagestate judges what the portal did with the last submission.
package pagestate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
)

// Page is the slice of a browser session the classifier needs.
type Page interface {
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) (bool, error)
	Texts(ctx context.Context, sel string) ([]string, error)
	Displayed(ctx context.Context, sel string) (bool, error)
}

// Markers names the page elements that identify each outcome.
type Markers struct {
	Success         string
	CaptchaBanner   string
	CaptchaPhrases  []string
	CaptchaModal    string
	NotFoundBanner  string
	NotFoundPhrases []string
}

// DefaultMarkers matches the eCourts v6 CNR search results page.
func DefaultMarkers() Markers {
	return Markers{
		Success:         "table.case_details_table",
		CaptchaBanner:   ".alert.alert-danger-cust",
		CaptchaPhrases:  []string{"Invalid Captcha", "Enter Captcha"},
		CaptchaModal:    "#validateError",
		NotFoundBanner:  "div#history_cnr span",
		NotFoundPhrases: []string{"This Case Code does not exist", "Record not found"},
	}
}

// Config tunes probe timing.
type Config struct {
	SuccessProbe time.Duration
	Overall      time.Duration
	Poll         time.Duration
	Markers      Markers
}

// Classifier maps the current page to a cnr.PageState.
type Classifier struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Classifier, filling zero fields with defaults.
func New(cfg Config, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SuccessProbe <= 0 {
		cfg.SuccessProbe = 3 * time.Second
	}
	if cfg.Overall <= 0 {
		cfg.Overall = 20 * time.Second
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 500 * time.Millisecond
	}
	if cfg.Markers.Success == "" {
		cfg.Markers = DefaultMarkers()
	}
	return &Classifier{cfg: cfg, logger: logger}
}

// Classify probes the success marker first, then the invalid-captcha and
// not-found banners, repeating until something resolves or timeout passes.
// A zero timeout uses the configured overall window. Probe failures yield
// StateUnknown with the error.
func (c *Classifier) Classify(ctx context.Context, page Page, timeout time.Duration) (cnr.PageState, error) {
	if timeout <= 0 {
		timeout = c.cfg.Overall
	}
	deadline := time.Now().Add(timeout)

	for round := 1; ; round++ {
		probe := c.cfg.SuccessProbe
		if remaining := time.Until(deadline); remaining < probe {
			probe = max(remaining, time.Millisecond)
		}
		ok, err := page.WaitVisible(ctx, c.cfg.Markers.Success, probe)
		if err != nil {
			return cnr.StateUnknown, fmt.Errorf("probe success marker: %w", err)
		}
		if ok {
			return c.resolved(cnr.StateSuccess, round), nil
		}

		state, err := c.probeBanners(ctx, page)
		if err != nil {
			return cnr.StateUnknown, err
		}
		if state != cnr.StateUnknown {
			return c.resolved(state, round), nil
		}

		if !time.Now().Before(deadline) {
			return c.resolved(cnr.StateTransientError, round), nil
		}
		if err := sleep(ctx, min(c.cfg.Poll, time.Until(deadline))); err != nil {
			return cnr.StateUnknown, err
		}
	}
}

func (c *Classifier) probeBanners(ctx context.Context, page Page) (cnr.PageState, error) {
	m := c.cfg.Markers

	texts, err := page.Texts(ctx, m.CaptchaBanner)
	if err != nil {
		return cnr.StateUnknown, fmt.Errorf("probe captcha banner: %w", err)
	}
	if containsAny(texts, m.CaptchaPhrases) {
		return cnr.StateInvalidCaptcha, nil
	}
	if m.CaptchaModal != "" {
		shown, err := page.Displayed(ctx, m.CaptchaModal)
		if err != nil {
			return cnr.StateUnknown, fmt.Errorf("probe captcha modal: %w", err)
		}
		if shown {
			return cnr.StateInvalidCaptcha, nil
		}
	}

	texts, err = page.Texts(ctx, m.NotFoundBanner)
	if err != nil {
		return cnr.StateUnknown, fmt.Errorf("probe not-found banner: %w", err)
	}
	if containsAny(texts, m.NotFoundPhrases) {
		return cnr.StateRecordNotFound, nil
	}
	return cnr.StateUnknown, nil
}

func (c *Classifier) resolved(state cnr.PageState, rounds int) cnr.PageState {
	c.logger.Debug("page classified", zap.Stringer("state", state), zap.Int("rounds", rounds))
	return state
}

func containsAny(texts, phrases []string) bool {
	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, phrase := range phrases {
			if strings.Contains(lower, strings.ToLower(phrase)) {
				return true
			}
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("classify canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
