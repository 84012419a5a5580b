// Package documents retrieves the order documents listed on a case page. Each
// row gets its own retry budget; a row that cannot be retrieved becomes a
// recorded gap rather than a failure of the whole acquisition.
package documents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/extract"
	collyfetcher "github.com/JakeFAU/ecourts-cnr-fetcher/internal/fetcher/colly"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/metrics"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/retry"
)

// DefaultBaseURL is what relative document links resolve against.
const DefaultBaseURL = "https://services.ecourts.gov.in/ecourtindia_v6/"

// Attempt failures that are retried within a row's budget.
var (
	ErrNoLink        = errors.New("order modal has no document link")
	ErrEmptyDocument = errors.New("document body is empty")
)

// Page is the slice of a browser session the retriever drives.
type Page interface {
	OpenOrder(ctx context.Context, table extract.OrderTable, row int, timeout time.Duration) (string, error)
	CloseModal(ctx context.Context) error
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	UserAgent() string
}

// Downloader fetches a resolved document link outside the browser.
type Downloader interface {
	Fetch(ctx context.Context, request collyfetcher.Request) (collyfetcher.Document, error)
}

// Validator inspects a downloaded file and returns its page count.
type Validator interface {
	Inspect(path string) (int, error)
}

// Config tunes per-row retries and local staging.
type Config struct {
	BaseURL      string
	WorkDir      string
	MaxAttempts  int
	Delay        time.Duration
	ModalTimeout time.Duration
}

// Report is the diagnostic cross-check of listed rows against retrieved
// documents.
type Report struct {
	Listed    int
	Retrieved int
	Missing   []cnr.OrderRow
}

// Gaps returns the number of listed rows without a document.
func (r Report) Gaps() int { return r.Listed - r.Retrieved }

// Retriever downloads, validates and persists order documents.
type Retriever struct {
	cfg        Config
	downloader Downloader
	validator  Validator
	blobs      cnr.BlobStore
	hasher     cnr.Hasher
	logger     *zap.Logger
}

// NewRetriever wires a Retriever. validator may be nil to skip PDF checks.
func NewRetriever(
	cfg Config,
	downloader Downloader,
	validator Validator,
	blobs cnr.BlobStore,
	hasher cnr.Hasher,
	logger *zap.Logger,
) (*Retriever, error) {
	if downloader == nil || blobs == nil || hasher == nil {
		return nil, errors.New("documents: downloader, blob store and hasher are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "cnr-documents")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.ModalTimeout <= 0 {
		cfg.ModalTimeout = 10 * time.Second
	}
	return &Retriever{
		cfg:        cfg,
		downloader: downloader,
		validator:  validator,
		blobs:      blobs,
		hasher:     hasher,
		logger:     logger,
	}, nil
}

// Retrieve walks rows in order and returns the documents that were persisted.
// Rows are independent: a failed row is logged and skipped. The only early
// exit is ctx ending, in which case the remaining rows count as gaps.
func (r *Retriever) Retrieve(
	ctx context.Context,
	page Page,
	ref cnr.CaseReference,
	rows []cnr.OrderRow,
) ([]cnr.DocumentReference, Report) {
	report := Report{Listed: len(rows)}
	docs := make([]cnr.DocumentReference, 0, len(rows))

	for _, row := range rows {
		if ctx.Err() != nil {
			report.Missing = append(report.Missing, row)
			continue
		}
		doc, err := r.FetchOne(ctx, page, ref, row)
		if err != nil {
			metrics.ObserveDocument("failed")
			r.logger.Warn("document unavailable",
				zap.String("cnr", ref.String()),
				zap.String("kind", row.Kind.String()),
				zap.Int("row", row.Index),
				zap.Error(err),
			)
			report.Missing = append(report.Missing, row)
			continue
		}
		metrics.ObserveDocument("ok")
		docs = append(docs, doc)
	}
	report.Retrieved = len(docs)

	if gaps := report.Gaps(); gaps > 0 {
		metrics.AddDocumentGaps(gaps)
		r.logger.Warn("document gaps recorded",
			zap.String("cnr", ref.String()),
			zap.Int("listed", report.Listed),
			zap.Int("retrieved", report.Retrieved),
			zap.Int("gaps", gaps),
		)
	}
	return docs, report
}

// FetchOne retrieves a single row under a fresh retry budget.
func (r *Retriever) FetchOne(
	ctx context.Context,
	page Page,
	ref cnr.CaseReference,
	row cnr.OrderRow,
) (cnr.DocumentReference, error) {
	budget := retry.NewBudget(r.cfg.MaxAttempts, r.cfg.Delay)
	var doc cnr.DocumentReference
	err := retry.Do(ctx, budget, func(ctx context.Context, attempt int) error {
		d, err := r.attempt(ctx, page, ref, row)
		if err != nil {
			metrics.ObserveDocument("retry")
			r.logger.Debug("document attempt failed",
				zap.String("cnr", ref.String()),
				zap.Int("row", row.Index),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return cnr.DocumentReference{}, fmt.Errorf("fetch %s order %d: %w", row.Kind, row.Index, err)
	}
	return doc, nil
}

func (r *Retriever) attempt(
	ctx context.Context,
	page Page,
	ref cnr.CaseReference,
	row cnr.OrderRow,
) (cnr.DocumentReference, error) {
	defer func() {
		if err := page.CloseModal(ctx); err != nil {
			r.logger.Debug("close order modal", zap.Int("row", row.Index), zap.Error(err))
		}
	}()

	link, err := page.OpenOrder(ctx, extract.OrderTableFor(row.Kind), row.Index, r.cfg.ModalTimeout)
	if err != nil {
		return cnr.DocumentReference{}, fmt.Errorf("open order: %w", err)
	}
	if strings.TrimSpace(link) == "" {
		return cnr.DocumentReference{}, ErrNoLink
	}
	target, err := Resolve(r.cfg.BaseURL, link)
	if err != nil {
		return cnr.DocumentReference{}, err
	}
	cookies, err := page.Cookies(ctx)
	if err != nil {
		return cnr.DocumentReference{}, fmt.Errorf("read cookies: %w", err)
	}

	fetched, err := r.downloader.Fetch(ctx, collyfetcher.Request{
		URL:       target,
		Referer:   r.cfg.BaseURL,
		UserAgent: page.UserAgent(),
		Cookies:   cookies,
	})
	if err != nil {
		return cnr.DocumentReference{}, fmt.Errorf("download: %w", err)
	}
	if len(fetched.Body) == 0 {
		return cnr.DocumentReference{}, ErrEmptyDocument
	}

	sum, err := r.hasher.Hash(fetched.Body)
	if err != nil {
		return cnr.DocumentReference{}, fmt.Errorf("hash document: %w", err)
	}
	uri, pages, err := r.persist(ctx, ref.StorageKey(row.Kind, row.Index), fetched.Body)
	if err != nil {
		return cnr.DocumentReference{}, err
	}

	r.logger.Info("document stored",
		zap.String("cnr", ref.String()),
		zap.String("kind", row.Kind.String()),
		zap.Int("row", row.Index),
		zap.String("uri", uri),
	)
	return cnr.DocumentReference{
		Kind:       row.Kind,
		OrderIndex: row.Index,
		OrderDate:  row.Date,
		URL:        uri,
		Checksum:   sum,
		Pages:      pages,
	}, nil
}

// persist writes the transient local copy under a stage directory private to
// this attempt, validates it, uploads from it, and removes the stage. The
// storage key layout is kept inside the stage directory.
func (r *Retriever) persist(ctx context.Context, key string, body []byte) (string, int, error) {
	if err := os.MkdirAll(r.cfg.WorkDir, 0o750); err != nil {
		return "", 0, fmt.Errorf("create work dir: %w", err)
	}
	stage, err := os.MkdirTemp(r.cfg.WorkDir, "stage-*")
	if err != nil {
		return "", 0, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(stage); err != nil {
			r.logger.Warn("remove staged document", zap.String("path", stage), zap.Error(err))
		}
	}()

	local := filepath.Join(stage, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(local), 0o750); err != nil {
		return "", 0, fmt.Errorf("create staging dir: %w", err)
	}
	if err := os.WriteFile(local, body, 0o600); err != nil {
		return "", 0, fmt.Errorf("stage document: %w", err)
	}

	pages := 0
	if r.validator != nil {
		if pages, err = r.validator.Inspect(local); err != nil {
			return "", 0, fmt.Errorf("validate document: %w", err)
		}
	}

	f, err := os.Open(local) //nolint:gosec // path is built from a validated reference
	if err != nil {
		return "", 0, fmt.Errorf("open staged document: %w", err)
	}
	defer func() { _ = f.Close() }()

	uri, err := r.blobs.PutObject(ctx, key, "application/pdf", f)
	if err != nil {
		return "", 0, fmt.Errorf("store document: %w", err)
	}
	return uri, pages, nil
}

// Resolve turns a modal link into an absolute URL against base.
func Resolve(base, link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", ErrNoLink
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse document link: %w", err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}
