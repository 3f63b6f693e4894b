// Ledger HTTP handlers.
//
// This file exposes REST endpoints for operator consoles and gate
// controllers that already know the plate:
//   - POST /events/entry         (open session)
//   - POST /events/exit          (close session)
//   - POST /events/manual-exit   (operator release, authenticated)
//   - GET  /events               (recent rows, weak ETag)
//   - GET  /events/open          (open sessions, weak ETag)
//   - GET  /events/search        (fuzzy plate lookup among open sessions)
//   - GET  /events/summary       (counts and revenue)
//   - GET  /events/export        (CSV, authenticated)
package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/parking-alpr/internal/domain"
	"github.com/tbourn/parking-alpr/internal/feed"
	"github.com/tbourn/parking-alpr/internal/http/middleware"
	"github.com/tbourn/parking-alpr/internal/plate"
	"github.com/tbourn/parking-alpr/internal/search"
	"github.com/tbourn/parking-alpr/internal/services"
	"github.com/tbourn/parking-alpr/internal/utils"
)

//
// DTOs
//

// PlateRequest is the JSON payload of the plate-based ledger operations.
type PlateRequest struct {
	// Plate as read or typed; it is normalized before validation.
	Plate string `json:"plate" binding:"required" example:"WA 12345"`
	// Time of the observation; defaults to the server clock.
	Time *time.Time `json:"time,omitempty" example:"2024-05-01T08:00:00Z"`
}

// ManualExitResponse is returned by a recorded operator release.
type ManualExitResponse struct {
	EventID  int64         `json:"event_id" example:"21"`
	Plate    string        `json:"plate" example:"WA12345"`
	Status   domain.Status `json:"status" example:"MANUAL_EXIT"`
	Operator string        `json:"operator,omitempty" example:"alice"`
}

// ListEventsResponse wraps a list of ledger rows.
type ListEventsResponse struct {
	Events []domain.ParkingEvent `json:"events"`
	Count  int                   `json:"count"`
}

// SearchResponse lists open sessions whose plate resembles the query.
type SearchResponse struct {
	Query   string          `json:"query" example:"WA1Z345"`
	Results []search.Result `json:"results"`
}

//
// Helpers
//

func (h *Handlers) bindPlate(c *gin.Context) (PlateRequest, time.Time, bool) {
	var req PlateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Plate) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `JSON body with "plate" required`)
		return req, time.Time{}, false
	}
	req.Plate = plate.Normalize(req.Plate)
	when := h.clock()
	if req.Time != nil && !req.Time.IsZero() {
		when = req.Time.UTC()
	}
	return req, when, true
}

// etag sets a weak ETag derived from the ledger summary and reports whether
// the client copy is current. Any append or close changes one of the
// components. Summary failures skip conditional handling.
func (h *Handlers) etag(c *gin.Context, scope string) bool {
	st, err := h.ledger.Summary(c.Request.Context())
	if err != nil {
		return false
	}
	tag := fmt.Sprintf(`W/"%s:%d:%d:%d:%d"`, scope, st.Total, st.Open, st.LastEventID, st.RevenuePLN)
	c.Header("ETag", tag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == tag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

//
// Handlers
//

// RecordEntry godoc
// @ID          recordEntry
// @Summary     Open a session for a known plate
// @Tags        Events
// @Accept      json
// @Produce     json
//
// @Param       X-Gate-ID        header  string  false "Gate controller id"
// @Param       Idempotency-Key  header  string  false "Replays the first response for retries"
// @Param       body             body    handlers.PlateRequest  true  "Plate and optional time"
//
// @Success     201  {object}  handlers.EntryResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Already parked"
// @Failure     422  {object}  handlers.ErrorResponse  "Invalid plate"
// @Failure     503  {object}  handlers.ErrorResponse  "Ledger unavailable"
// @Router      /events/entry [post]
func (h *Handlers) RecordEntry(c *gin.Context) {
	req, when, valid := h.bindPlate(c)
	if !valid {
		return
	}
	id, err := h.ledger.RecordEntry(c.Request.Context(), req.Plate, when)
	res := services.EntryResultFor(req.Plate, id, err)
	h.respondEntry(c, res, nil)
}

// RecordExit godoc
// @ID          recordExit
// @Summary     Close the session of a known plate
// @Tags        Events
// @Accept      json
// @Produce     json
//
// @Param       X-Gate-ID        header  string  false "Gate controller id"
// @Param       Idempotency-Key  header  string  false "Replays the first response for retries"
// @Param       body             body    handlers.PlateRequest  true  "Plate and optional time"
//
// @Success     200  {object}  handlers.ExitResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Exit blocked"
// @Failure     422  {object}  handlers.ErrorResponse  "Invalid plate"
// @Failure     503  {object}  handlers.ErrorResponse  "Ledger unavailable"
// @Router      /events/exit [post]
func (h *Handlers) RecordExit(c *gin.Context) {
	req, when, valid := h.bindPlate(c)
	if !valid {
		return
	}
	out, err := h.ledger.RecordExit(c.Request.Context(), req.Plate, when)
	res := services.ExitResultFor(req.Plate, out, err)
	h.respondExit(c, res, nil)
}

// ManualExit godoc
// @ID          manualExit
// @Summary     Record an operator release
// @Description Appends a standalone MANUAL_EXIT row. Open sessions of the plate are left untouched.
// @Tags        Events
// @Accept      json
// @Produce     json
// @Security    OperatorToken
//
// @Param       body  body  handlers.PlateRequest  true  "Plate and optional time"
//
// @Success     201  {object}  handlers.ManualExitResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Operator token required"
// @Failure     422  {object}  handlers.ErrorResponse  "Invalid plate"
// @Failure     503  {object}  handlers.ErrorResponse  "Ledger unavailable"
// @Router      /events/manual-exit [post]
func (h *Handlers) ManualExit(c *gin.Context) {
	req, when, valid := h.bindPlate(c)
	if !valid {
		return
	}
	id, err := h.ledger.ManualExit(c.Request.Context(), req.Plate, when)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPlate) {
			h.readFailed(c, err, services.ReadResult{})
			return
		}
		storeFail(c, err)
		return
	}
	p := req.Plate
	operator := middleware.Operator(c)
	middleware.LoggerFrom(c).Info().
		Int64("event_id", id).
		Str("operator", operator).
		Msg("manual exit recorded")
	h.feed.Publish(feed.ManualExitDecision(h.origin(c), p, id, h.clock()))
	ok(c, http.StatusCreated, ManualExitResponse{EventID: id, Plate: p, Status: domain.StatusManualExit, Operator: operator})
}

// ListEvents godoc
// @ID          listEvents
// @Summary     List recent ledger rows
// @Description Newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Events
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       limit          query   int     false "Rows to return"  minimum(1) maximum(1000) default(50)
//
// @Success     200  {object}  handlers.ListEventsResponse
// @Header      200  {string}  ETag  "Weak ETag for current ledger state"
// @Success     304  {string}  string "Not Modified"
// @Failure     503  {object}  handlers.ErrorResponse "Ledger unavailable"
// @Router      /events [get]
func (h *Handlers) ListEvents(c *gin.Context) {
	limit := clampLimit(c, 50, 1000)
	if h.etag(c, fmt.Sprintf("recent-%d", limit)) {
		return
	}
	evs, err := h.ledger.ListRecent(c.Request.Context(), limit)
	if err != nil {
		listFail(c, err)
		return
	}
	ok(c, http.StatusOK, ListEventsResponse{Events: evs, Count: len(evs)})
}

// ListOpen godoc
// @ID          listOpen
// @Summary     List open sessions
// @Tags        Events
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object}  handlers.ListEventsResponse
// @Success     304  {string}  string "Not Modified"
// @Failure     503  {object}  handlers.ErrorResponse "Ledger unavailable"
// @Router      /events/open [get]
func (h *Handlers) ListOpen(c *gin.Context) {
	if h.etag(c, "open") {
		return
	}
	evs, err := h.ledger.ListOpen(c.Request.Context())
	if err != nil {
		listFail(c, err)
		return
	}
	ok(c, http.StatusOK, ListEventsResponse{Events: evs, Count: len(evs)})
}

// SearchOpen godoc
// @ID          searchOpen
// @Summary     Find open sessions by approximate plate
// @Description Ranks open sessions by n-gram similarity with confusable characters folded (O/0, I/1, ...).
// @Tags        Events
// @Produce     json
//
// @Param       plate  query  string  true   "Plate as read, possibly misread"  example(WA1Z345)
// @Param       k      query  int     false  "Maximum results"  minimum(1) maximum(50) default(5)
//
// @Success     200  {object}  handlers.SearchResponse
// @Failure     400  {object}  handlers.ErrorResponse "Missing plate"
// @Failure     503  {object}  handlers.ErrorResponse "Ledger unavailable"
// @Router      /events/search [get]
func (h *Handlers) SearchOpen(c *gin.Context) {
	q := strings.TrimSpace(c.Query("plate"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `query parameter "plate" required`)
		return
	}
	k := utils.BoundedInt(c.Query("k"), 5, 1, 50)
	evs, err := h.ledger.ListOpen(c.Request.Context())
	if err != nil {
		listFail(c, err)
		return
	}
	entries := make([]search.Entry, 0, len(evs))
	for _, ev := range evs {
		entries = append(entries, search.Entry{EventID: ev.ID, Plate: ev.Plate})
	}
	res := search.NewPlateIndex(entries).TopK(q, k)
	if res == nil {
		res = []search.Result{}
	}
	ok(c, http.StatusOK, SearchResponse{Query: q, Results: res})
}

// Summary godoc
// @ID          ledgerSummary
// @Summary     Ledger counts and revenue
// @Tags        Events
// @Produce     json
//
// @Success     200  {object}  repo.LedgerStats
// @Failure     503  {object}  handlers.ErrorResponse "Ledger unavailable"
// @Router      /events/summary [get]
func (h *Handlers) Summary(c *gin.Context) {
	st, err := h.ledger.Summary(c.Request.Context())
	if err != nil {
		listFail(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// ExportCSV godoc
// @ID          exportEvents
// @Summary     Export the whole ledger as CSV
// @Description Columns: id, plate, entry_time, exit_time, fee_pln, status. Times are RFC 3339 UTC.
// @Tags        Events
// @Produce     text/csv
// @Security    OperatorToken
//
// @Success     200  {string}  string "CSV document"
// @Failure     401  {object}  handlers.ErrorResponse "Operator token required"
// @Failure     503  {object}  handlers.ErrorResponse "Ledger unavailable"
// @Router      /events/export [get]
func (h *Handlers) ExportCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.ledger.ExportCSV(c.Request.Context(), &buf); err != nil {
		listFail(c, err)
		return
	}
	name := "parking_events_" + h.clock().Format("20060102T150405Z") + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// listFail maps read-side errors: transient ones are retryable, the rest
// are list_failed.
func listFail(c *gin.Context, err error) {
	if services.IsTransient(err) {
		storeFail(c, err)
		return
	}
	fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
}
