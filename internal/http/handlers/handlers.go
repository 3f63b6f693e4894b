// Package handlers exposes the parking ledger and the plate recognition
// pipeline over HTTP.
//
// Handlers are transport-thin: they read the camera frame or JSON body,
// call the ledger or the recognition service, publish the decision to the
// live feed, and translate the outcome into a status code and envelope.
package handlers

import (
	"context"
	"errors"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/parking-alpr/internal/domain"
	"github.com/tbourn/parking-alpr/internal/feed"
	"github.com/tbourn/parking-alpr/internal/http/middleware"
	"github.com/tbourn/parking-alpr/internal/repo"
	"github.com/tbourn/parking-alpr/internal/services"
	"github.com/tbourn/parking-alpr/internal/utils"
)

//
// Service contracts (context-aware)
//

// Ledger is the session ledger consumed by HTTP handlers. *services.Ledger
// implements it.
type Ledger interface {
	RecordEntry(ctx context.Context, plate string, when time.Time) (int64, error)
	RecordExit(ctx context.Context, plate string, when time.Time) (services.ExitOutcome, error)
	ManualExit(ctx context.Context, plate string, when time.Time) (int64, error)
	ListOpen(ctx context.Context) ([]domain.ParkingEvent, error)
	ListRecent(ctx context.Context, limit int) ([]domain.ParkingEvent, error)
	Summary(ctx context.Context) (repo.LedgerStats, error)
	ExportCSV(ctx context.Context, w io.Writer) error
}

// Recognizer reads plates from camera frames. *services.Recognition
// implements it.
type Recognizer interface {
	ReadPlate(ctx context.Context, img image.Image) services.ReadResult
	RecordEntryFromImage(ctx context.Context, img image.Image) services.EntryResult
	RecordExitFromImage(ctx context.Context, img image.Image) services.ExitResult
}

//
// Handler wiring
//

// Handlers groups the gate, ledger and search endpoints.
type Handlers struct {
	ledger        Ledger
	recog         Recognizer
	feed          feed.Publisher
	now           func() time.Time
	maxImageBytes int64
}

// Option customizes Handlers.
type Option func(*Handlers)

// WithClock overrides the clock used for JSON requests without a time.
func WithClock(now func() time.Time) Option { return func(h *Handlers) { h.now = now } }

// WithMaxImageBytes caps uploaded frames. Values <= 0 keep the 10 MiB default.
func WithMaxImageBytes(n int64) Option {
	return func(h *Handlers) {
		if n > 0 {
			h.maxImageBytes = n
		}
	}
}

// New constructs Handlers bound to the given services. A nil publisher
// discards decisions.
func New(ledger Ledger, recog Recognizer, pub feed.Publisher, opts ...Option) *Handlers {
	if pub == nil {
		pub = feed.Discard
	}
	h := &Handlers{
		ledger:        ledger,
		recog:         recog,
		feed:          pub,
		now:           time.Now,
		maxImageBytes: 10 << 20,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handlers) origin(c *gin.Context) feed.Origin {
	return feed.Origin{Gate: middleware.GateID(c), Source: "http"}
}

func (h *Handlers) clock() time.Time { return h.now().UTC() }

//
// Outcome translation
//

// ConflictDetails identifies the open session that blocked an entry.
type ConflictDetails struct {
	EventID   int64     `json:"event_id" example:"17"`
	Plate     string    `json:"plate" example:"WA12345"`
	EntryTime time.Time `json:"entry_time" example:"2024-05-01T08:00:00Z"`
}

// BlockedDetails identifies the BLOCKED audit row written for a refused exit.
type BlockedDetails struct {
	BlockedEventID int64  `json:"blocked_event_id" example:"18"`
	Plate          string `json:"plate" example:"WA12345"`
}

// EntryResponse is returned by successful entries.
type EntryResponse struct {
	EventID int64                `json:"event_id" example:"17"`
	Plate   string               `json:"plate" example:"WA12345"`
	Status  domain.Status        `json:"status" example:"IN"`
	Read    *services.ReadResult `json:"read,omitempty"`
}

// ExitResponse is returned by successful exits.
type ExitResponse struct {
	Receipt services.Receipt     `json:"receipt"`
	Read    *services.ReadResult `json:"read,omitempty"`
}

func (h *Handlers) respondEntry(c *gin.Context, res services.EntryResult, read *services.ReadResult) {
	if res.Outcome != services.OutcomeError {
		h.feed.Publish(feed.EntryDecision(h.origin(c), res, h.clock()))
	}
	switch res.Outcome {
	case services.OutcomeOK:
		ok(c, http.StatusCreated, EntryResponse{EventID: res.EventID, Plate: res.Plate, Status: domain.StatusIn, Read: read})
	case services.OutcomeDeclined:
		resp := ErrorResponse{Code: ErrCodeAlreadyParked, Message: "plate " + res.Plate + " already has an open session"}
		if res.Conflict != nil {
			resp.Details = ConflictDetails{EventID: res.Conflict.EventID, Plate: res.Conflict.Plate, EntryTime: res.Conflict.EntryTime}
		}
		failWith(c, http.StatusConflict, resp)
	case services.OutcomeReadFailed:
		h.readFailed(c, res.Err, res.Read)
	default:
		storeFail(c, res.Err)
	}
}

func (h *Handlers) respondExit(c *gin.Context, res services.ExitResult, read *services.ReadResult) {
	if res.Outcome != services.OutcomeError {
		h.feed.Publish(feed.ExitDecision(h.origin(c), res, h.clock()))
	}
	switch res.Outcome {
	case services.OutcomeOK:
		resp := ExitResponse{Read: read}
		if res.Receipt != nil {
			resp.Receipt = *res.Receipt
		}
		ok(c, http.StatusOK, resp)
	case services.OutcomeDeclined:
		failWith(c, http.StatusForbidden, ErrorResponse{
			Code:    ErrCodeExitBlocked,
			Message: "no open session for plate " + res.Plate,
			Details: BlockedDetails{BlockedEventID: res.BlockedEventID, Plate: res.Plate},
		})
	case services.OutcomeReadFailed:
		h.readFailed(c, res.Err, res.Read)
	default:
		storeFail(c, res.Err)
	}
}

func (h *Handlers) readFailed(c *gin.Context, err error, read services.ReadResult) {
	if errors.Is(err, services.ErrInvalidPlate) {
		fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidPlate, "plate must be 5 to 9 letters or digits")
		return
	}
	reason := string(read.Error)
	if reason == "" {
		reason = ErrCodeInvalidPlate
	}
	failWith(c, http.StatusUnprocessableEntity, ErrorResponse{
		Code:    ErrCodeReadFailed,
		Message: "no usable plate in image",
		Reason:  reason,
		Details: read,
	})
}

// storeFail maps ledger errors that are not decisions.
func storeFail(c *gin.Context, err error) {
	switch {
	case services.IsTransient(err):
		c.Header("Retry-After", "1")
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "ledger temporarily unavailable, retry")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.Header("Retry-After", "1")
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "request canceled before the ledger answered")
	default:
		msg := "internal error"
		if err != nil {
			msg = err.Error()
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, msg)
	}
}

// clampLimit parses the limit query param and bounds it to 1..hi.
func clampLimit(c *gin.Context, def, hi int) int {
	return utils.BoundedInt(c.Query("limit"), def, 1, hi)
}
