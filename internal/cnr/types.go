package cnr

import (
	"errors"
	"time"
)

// PageState is the classified outcome of the last action against the portal.
type PageState int

// Page outcomes, derived fresh after every state-changing action.
const (
	StateUnknown PageState = iota
	StateSuccess
	StateInvalidCaptcha
	StateRecordNotFound
	StateTransientError
)

func (s PageState) String() string {
	switch s {
	case StateSuccess:
		return "success"
	case StateInvalidCaptcha:
		return "invalid_captcha"
	case StateRecordNotFound:
		return "record_not_found"
	case StateTransientError:
		return "transient_error"
	default:
		return "unknown"
	}
}

// Retryable reports whether the orchestrator should reopen a session.
func (s PageState) Retryable() bool {
	return s == StateInvalidCaptcha || s == StateTransientError
}

// OrderKind distinguishes the two order-listing tables on a case page.
type OrderKind int

// Order tables rendered under the case history.
const (
	InterimOrder OrderKind = iota
	FinalOrder
)

func (k OrderKind) String() string {
	if k == FinalOrder {
		return "final"
	}
	return "interim"
}

func (k OrderKind) folder() string {
	if k == FinalOrder {
		return "final_orders"
	}
	return "intrim_orders"
}

// OrderRow is one listed order before its document has been fetched.
// Index is 1-based over the data rows, matching on-page order.
type OrderRow struct {
	Kind   OrderKind
	Index  int
	Number string
	Date   string
}

// DocumentReference records a document that was resolved and persisted.
// Rows whose download failed have no DocumentReference at all.
type DocumentReference struct {
	Kind       OrderKind `json:"-"`
	OrderIndex int       `json:"-"`
	OrderDate  string    `json:"order_date"`
	URL        string    `json:"s3_url"`
	Checksum   string    `json:"-"`
	Pages      int       `json:"-"`
}

// RecordStatusComplete marks a record returned from a successful run.
const RecordStatusComplete = "complete"

// CaseRecord is the aggregate returned for one CNR. JSON names follow the
// portal's own section headings.
type CaseRecord struct {
	Reference      CaseReference       `json:"cnr_number"`
	Details        map[string]string   `json:"Case Details"`
	Status         [][]string          `json:"Case Status"`
	Petitioners    [][]string          `json:"Petitioner and Advocate"`
	Respondents    [][]string          `json:"Respondent and Advocate"`
	Acts           [][]string          `json:"Acts"`
	FIR            map[string]string   `json:"FIR Details"`
	History        [][]string          `json:"Case History"`
	Transfers      [][]string          `json:"Case Transfer Details"`
	RecordStatus   string              `json:"status"`
	Documents      []DocumentReference `json:"s3_links"`
	ListedOrders   int                 `json:"-"`
	DocumentGaps   int                 `json:"-"`
	SessionsOpened int                 `json:"-"`
}

// Request is one acquisition, created at the API boundary.
type Request struct {
	Reference CaseReference
	Cutoff    Cutoff
}

// Outcome labels how an acquisition ended.
type Outcome string

// Acquisition outcomes visible to callers.
const (
	OutcomeComplete  Outcome = "complete"
	OutcomeNotFound  Outcome = "invalid_cnr"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeFailed    Outcome = "failed"
)

// OutcomeOf maps an acquisition error to its outcome label.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeComplete
	case errors.Is(err, ErrRecordNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrRetriesExhausted):
		return OutcomeExhausted
	default:
		return OutcomeFailed
	}
}

// Completion is the event published when a job finishes.
type Completion struct {
	JobID     string  `json:"job_id"`
	Reference string  `json:"cnr"`
	Outcome   Outcome `json:"outcome"`
	Documents int     `json:"documents"`
	Gaps      int     `json:"gaps"`
	Timestamp string  `json:"timestamp"`
}

// Result is what a worker posts back for a job.
type Result struct {
	JobID    string
	Record   CaseRecord
	Err      error
	Duration time.Duration
}

// QueueItem is a job waiting for a worker. Reply is buffered with capacity
// one and receives exactly one Result.
type QueueItem struct {
	JobID     string
	Request   Request
	Submitted time.Time
	Reply     chan Result
}
