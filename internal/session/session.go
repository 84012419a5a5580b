package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/extract"
)

// Portal form and modal selectors.
const (
	identifierInput = "#cino"
	captchaImage    = "#captcha_image"
	captchaInput    = "#fcaptcha_code"
	searchButton    = "#searchbtn"
	orderModalBody  = "#modal_order_body"
	orderModalLink  = "#modal_order_body object"
	openModalClose  = ".modal.fade.show .btn-close"
)

// ErrNoOrderControl means the requested order row has no action link.
var ErrNoOrderControl = errors.New("order row has no action control")

// Session is one browser bound to one profile directory. It is not safe for
// concurrent use; the orchestrator drives it sequentially.
type Session struct {
	cfg           Config
	profileDir    string
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	logger        *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// ProfileDir returns the directory backing this session's browser profile.
func (s *Session) ProfileDir() string {
	return s.profileDir
}

// UserAgent returns the browser-identifying header value for direct fetches.
func (s *Session) UserAgent() string {
	return s.cfg.UserAgent
}

// PortalURL returns the page the session navigates to.
func (s *Session) PortalURL() string {
	return s.cfg.PortalURL
}

// NavigateToPortal loads the CNR search form.
func (s *Session) NavigateToPortal(ctx context.Context) error {
	runCtx, cancel := s.scoped(ctx, s.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx,
		chromedp.Navigate(s.cfg.PortalURL),
		chromedp.WaitVisible(identifierInput, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate to portal: %w", err)
	}
	return nil
}

// CaptureCaptchaImage screenshots the CAPTCHA element as PNG bytes.
func (s *Session) CaptureCaptchaImage(ctx context.Context) ([]byte, error) {
	runCtx, cancel := s.scoped(ctx, s.cfg.ActionTimeout)
	defer cancel()
	var buf []byte
	if err := chromedp.Run(runCtx,
		chromedp.WaitVisible(captchaImage, chromedp.ByQuery),
		chromedp.Screenshot(captchaImage, &buf, chromedp.NodeVisible, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("capture captcha: %w", err)
	}
	return buf, nil
}

// SubmitIdentifierAndCaptcha fills the form and clicks search via script,
// since the button is often covered by overlays.
func (s *Session) SubmitIdentifierAndCaptcha(ctx context.Context, id, captchaText string) error {
	runCtx, cancel := s.scoped(ctx, s.cfg.ActionTimeout)
	defer cancel()
	var clicked bool
	if err := chromedp.Run(runCtx,
		chromedp.SetValue(identifierInput, id, chromedp.ByQuery),
		chromedp.SetValue(captchaInput, captchaText, chromedp.ByQuery),
		chromedp.Evaluate(clickScript(searchButton), &clicked),
	); err != nil {
		return fmt.Errorf("submit search form: %w", err)
	}
	if !clicked {
		return fmt.Errorf("submit search form: %s not found", searchButton)
	}
	return nil
}

// WaitVisible reports whether sel becomes visible within timeout. A timeout
// is a negative answer, not an error.
func (s *Session) WaitVisible(ctx context.Context, sel string, timeout time.Duration) (bool, error) {
	runCtx, cancel := s.scoped(ctx, timeout)
	defer cancel()
	err := chromedp.Run(runCtx, chromedp.WaitVisible(sel, chromedp.ByQuery))
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, fmt.Errorf("wait visible %s: %w", sel, ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, fmt.Errorf("wait visible %s: %w", sel, err)
	}
}

// Texts returns the trimmed inner text of every element matching sel.
func (s *Session) Texts(ctx context.Context, sel string) ([]string, error) {
	runCtx, cancel := s.scoped(ctx, s.cfg.ActionTimeout)
	defer cancel()
	var texts []string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(textsScript(sel), &texts)); err != nil {
		return nil, fmt.Errorf("read texts %s: %w", sel, err)
	}
	return texts, nil
}

// Displayed reports whether the first element matching sel has a computed
// display of block.
func (s *Session) Displayed(ctx context.Context, sel string) (bool, error) {
	runCtx, cancel := s.scoped(ctx, s.cfg.ActionTimeout)
	defer cancel()
	var shown bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(displayedScript(sel), &shown)); err != nil {
		return false, fmt.Errorf("read display %s: %w", sel, err)
	}
	return shown, nil
}

// ResultsHTML returns the rendered document for table extraction.
func (s *Session) ResultsHTML(ctx context.Context) (string, error) {
	runCtx, cancel := s.scoped(ctx, s.cfg.ActionTimeout)
	defer cancel()
	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read results html: %w", err)
	}
	return html, nil
}

// OpenOrder locates the action link of a 1-based data row afresh, clicks it,
// waits for the order modal, and returns the document link found in it. An
// empty link with a nil error means the modal rendered without one yet.
func (s *Session) OpenOrder(ctx context.Context, table extract.OrderTable, row int, timeout time.Duration) (string, error) {
	runCtx, cancel := s.scoped(ctx, timeout)
	defer cancel()

	var clicked bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(orderClickScript(table, row), &clicked)); err != nil {
		return "", fmt.Errorf("click order %d: %w", row, err)
	}
	if !clicked {
		return "", fmt.Errorf("order %d: %w", row, ErrNoOrderControl)
	}
	if err := chromedp.Run(runCtx, chromedp.WaitVisible(orderModalBody, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("wait order modal %d: %w", row, err)
	}

	var link string
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for attempt := 0; attempt < 12; attempt++ {
		if err := chromedp.Run(runCtx, chromedp.Evaluate(attrScript(orderModalLink, "data"), &link)); err != nil {
			return "", fmt.Errorf("read order link %d: %w", row, err)
		}
		if link != "" {
			return link, nil
		}
		select {
		case <-runCtx.Done():
			return "", nil
		case <-ticker.C:
		}
	}
	return "", nil
}

// CloseModal dismisses an open modal if there is one.
func (s *Session) CloseModal(ctx context.Context) error {
	runCtx, cancel := s.scoped(ctx, s.cfg.ActionTimeout)
	defer cancel()
	var clicked bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(clickScript(openModalClose), &clicked)); err != nil {
		return fmt.Errorf("close modal: %w", err)
	}
	return nil
}

// Cookies returns the browser's current cookie set.
func (s *Session) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	runCtx, cancel := s.scoped(ctx, s.cfg.ActionTimeout)
	defer cancel()
	var cookies []*network.Cookie
	if err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	})); err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
	}
	return out, nil
}

// Close stops the browser and removes the profile directory. It is safe to
// call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.browserCancel != nil {
			s.browserCancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
		if s.profileDir != "" {
			if err := os.RemoveAll(s.profileDir); err != nil {
				s.closeErr = fmt.Errorf("remove profile dir: %w", err)
			}
		}
		s.logger.Debug("session closed")
	})
	return s.closeErr
}

// scoped derives a context from the browser that also ends when the caller's
// ctx does.
func (s *Session) scoped(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	stop := forwardCancel(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func clickScript(sel string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) { return false; } el.click(); return true; })()`, jsString(sel))
}

func textsScript(sel string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(el => (el.innerText || '').trim())`, jsString(sel))
}

func displayedScript(sel string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); return !!el && window.getComputedStyle(el).display === 'block'; })()`, jsString(sel))
}

func attrScript(sel, attr string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); return el ? (el.getAttribute(%s) || '') : ''; })()`, jsString(sel), jsString(attr))
}

// orderClickScript numbers data rows the same way the extractor does: the
// first row is the header, and only rows holding a td count.
func orderClickScript(table extract.OrderTable, row int) string {
	return fmt.Sprintf(`(() => {
  const tables = document.querySelectorAll(%s);
  const t = %t ? tables[tables.length - 1] : tables[0];
  if (!t) { return false; }
  const rows = Array.from(t.querySelectorAll('tr')).slice(1).filter(r => r.querySelector('td'));
  const r = rows[%d];
  const cell = r ? r.querySelectorAll('td')[2] : null;
  const a = cell ? cell.querySelector('a') : null;
  if (!a) { return false; }
  a.click();
  return true;
})()`, jsString(table.Selector), table.Last, row-1)
}
