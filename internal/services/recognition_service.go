// Package services – Recognition
//
// This file implements Recognition, the orchestrator that turns a camera
// frame into a ledger decision: detect the plate region, crop and enhance
// it, read text candidates, rank them and correct confusable characters.
// Recognition completes before any ledger transaction starts; the ledger
// never waits on an inference call.
//
// Recognition misses are ordinary results (OK=false with a reason code) and
// never reach the ledger.

package services

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/tbourn/parking-alpr/internal/plate"
	"github.com/tbourn/parking-alpr/internal/vision"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Recognition defaults.
const (
	DefaultPadding         = 30
	DefaultMinDetConf      = 0.35
	DefaultFallbackMinLen  = 6
	DefaultFallbackMinConf = 0.40
)

const (
	fallbackReasonShort   = "short"
	fallbackReasonLowConf = "low_confidence"
)

// ReadError is a recognition failure reason code.
type ReadError string

const (
	ReadBadImage       ReadError = "bad_image"
	ReadNoDetection    ReadError = "no_detection"
	ReadEmptyCrop      ReadError = "empty_crop"
	ReadNoReadableText ReadError = "no_readable_text"
	ReadRecognizerFail ReadError = "recognizer_failed"
	ReadDetectorFail   ReadError = "detector_failed"
)

// ReadResult is the outcome of ReadPlate.
//
// OK reports that text was read. Plate is set only when the reading is a
// valid plate after correction; OK with a nil Plate means the text failed
// format validation and Raw holds what was read.
type ReadResult struct {
	OK      bool      `json:"ok"`
	Plate   *string   `json:"plate"`
	Raw     string    `json:"raw"`
	OCRConf float64   `json:"ocr_conf"`
	DetConf float64   `json:"det_conf"`
	Error   ReadError `json:"error,omitempty"`
}

// Usable reports whether the result carries a plate the ledger accepts.
func (r ReadResult) Usable() bool { return r.OK && r.Plate != nil }

// Outcome classifies image-driven ledger results for callers.
type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeReadFailed Outcome = "read_failed"
	OutcomeDeclined   Outcome = "declined"
	OutcomeError      Outcome = "error"
)

// EntryResult is the result of RecordEntryFromImage.
type EntryResult struct {
	Outcome   Outcome             `json:"outcome"`
	EventID   int64               `json:"event_id,omitempty"`
	Plate     string              `json:"plate,omitempty"`
	Read      ReadResult          `json:"read"`
	Conflict  *AlreadyParkedError `json:"-"`
	Retryable bool                `json:"retryable"`
	Err       error               `json:"-"`
}

// ExitResult is the result of RecordExitFromImage.
type ExitResult struct {
	Outcome        Outcome    `json:"outcome"`
	Receipt        *Receipt   `json:"receipt,omitempty"`
	BlockedEventID int64      `json:"blocked_event_id,omitempty"`
	Plate          string     `json:"plate,omitempty"`
	Read           ReadResult `json:"read"`
	Retryable      bool       `json:"retryable"`
	Err            error      `json:"-"`
}

// SessionRecorder is the part of Ledger the orchestrator drives.
type SessionRecorder interface {
	RecordEntry(ctx context.Context, plate string, when time.Time) (int64, error)
	RecordExit(ctx context.Context, plate string, when time.Time) (ExitOutcome, error)
}

// FallbackPolicy controls the second recognition pass on the raw crop.
// When the enhanced crop yields a top reading shorter than MinLength
// characters or below MinConfidence, the raw crop is read too and the
// attempt whose top reading is more confident is ranked.
type FallbackPolicy struct {
	Enabled       bool
	MinLength     int
	MinConfidence float64
}

// DefaultFallback mirrors the defaults of OCR_FALLBACK*.
var DefaultFallback = FallbackPolicy{
	Enabled:       true,
	MinLength:     DefaultFallbackMinLen,
	MinConfidence: DefaultFallbackMinConf,
}

// Recognition orchestrates plate reads and image-driven ledger writes.
type Recognition struct {
	Detector     vision.Detector
	Recognizer   vision.Recognizer
	Preprocessor vision.Preprocessor
	Ranker       *plate.Ranker
	Ledger       SessionRecorder

	Now        func() time.Time
	Padding    int
	MinDetConf float64
	Fallback   FallbackPolicy
}

// NewRecognition wires a Recognition with default tuning.
func NewRecognition(det vision.Detector, rec vision.Recognizer, ledger SessionRecorder) *Recognition {
	return &Recognition{
		Detector:     det,
		Recognizer:   rec,
		Preprocessor: vision.Standard{},
		Ranker:       plate.DefaultRanker,
		Ledger:       ledger,
		Now:          time.Now,
		Padding:      DefaultPadding,
		MinDetConf:   DefaultMinDetConf,
		Fallback:     DefaultFallback,
	}
}

// ReadPlate runs detection, preprocessing, recognition, ranking and
// correction on img. It never touches the ledger.
func (s *Recognition) ReadPlate(ctx context.Context, img image.Image) ReadResult {
	tr := otel.Tracer("services/Recognition")
	ctx, span := tr.Start(ctx, "ReadPlate")
	defer span.End()

	res := s.readPlate(ctx, img)
	label := string(res.Error)
	switch {
	case res.Usable():
		label = "ok"
	case res.OK:
		label = "invalid_format"
	}
	plateReads.WithLabelValues(label).Inc()
	span.SetAttributes(
		attribute.String("read.result", label),
		attribute.String("read.raw", res.Raw),
		attribute.Float64("read.ocr_conf", res.OCRConf),
		attribute.Float64("read.det_conf", res.DetConf),
	)
	return res
}

// ReadPlateBytes decodes data and calls ReadPlate. Undecodable data yields
// bad_image.
func (s *Recognition) ReadPlateBytes(ctx context.Context, data []byte) ReadResult {
	img, _, err := vision.Decode(data)
	if err != nil {
		plateReads.WithLabelValues(string(ReadBadImage)).Inc()
		return ReadResult{Error: ReadBadImage}
	}
	return s.ReadPlate(ctx, img)
}

func (s *Recognition) readPlate(ctx context.Context, img image.Image) ReadResult {
	if img == nil || img.Bounds().Empty() {
		return ReadResult{Error: ReadBadImage}
	}
	if s.Detector == nil || s.Recognizer == nil {
		return ReadResult{Error: ReadDetectorFail}
	}

	box, err := s.Detector.DetectBest(ctx, img)
	if err != nil {
		return ReadResult{Error: ReadDetectorFail}
	}
	if box == nil || box.Confidence < s.MinDetConf {
		res := ReadResult{Error: ReadNoDetection}
		if box != nil {
			res.DetConf = box.Confidence
		}
		return res
	}
	res := ReadResult{DetConf: box.Confidence}

	pre := s.Preprocessor
	if pre == nil {
		pre = vision.Standard{}
	}
	crop := pre.Crop(img, *box, s.Padding)
	if crop == nil || crop.Bounds().Empty() {
		res.Error = ReadEmptyCrop
		return res
	}

	ranker := s.Ranker
	if ranker == nil {
		ranker = plate.DefaultRanker
	}
	best, ok, err := s.recognize(ctx, ranker, pre, crop)
	if err != nil {
		res.Error = ReadRecognizerFail
		return res
	}
	if !ok {
		res.Error = ReadNoReadableText
		return res
	}

	res.OK = true
	res.Raw = best.Text
	res.OCRConf = best.Confidence
	if p, ok := plate.NormalizeAndFix(best.Text); ok {
		res.Plate = &p
	}
	return res
}

// recognize reads the enhanced crop and ranks its candidates. When the
// fallback policy finds the ranked winner too short or too weak, the raw
// crop is read and ranked as well, and the more confident winner is kept.
// Exactly one attempt's winner is returned.
func (s *Recognition) recognize(ctx context.Context, ranker *plate.Ranker, pre vision.Preprocessor, crop image.Image) (plate.Candidate, bool, error) {
	enhanced := pre.Enhance(crop)
	if enhanced == nil {
		enhanced = crop
	}
	primary, err := s.Recognizer.ReadCandidates(ctx, enhanced)
	if err != nil {
		return plate.Candidate{}, false, err
	}
	best, has := ranker.PickBest(primary)
	if !s.Fallback.Enabled {
		return best, has, nil
	}

	reason := ""
	switch {
	case !has || len(best.Text) < s.Fallback.MinLength:
		reason = fallbackReasonShort
	case best.Confidence < s.Fallback.MinConfidence:
		reason = fallbackReasonLowConf
	}
	if reason == "" {
		return best, has, nil
	}

	ocrFallbacks.Inc()
	trace.SpanFromContext(ctx).AddEvent("ocr_fallback", trace.WithAttributes(attribute.String("reason", reason)))
	secondary, err := s.Recognizer.ReadCandidates(ctx, crop)
	if err != nil {
		// The primary attempt already succeeded; keep it.
		return best, has, nil
	}
	alt, altHas := ranker.PickBest(secondary)
	if altHas && (!has || alt.Confidence > best.Confidence) {
		return alt, true, nil
	}
	return best, has, nil
}

// RecordEntryFromImage reads the plate in img and opens a session for it.
// An already parked plate is a declined result carrying the conflicting row.
func (s *Recognition) RecordEntryFromImage(ctx context.Context, img image.Image) EntryResult {
	tr := otel.Tracer("services/Recognition")
	ctx, span := tr.Start(ctx, "RecordEntryFromImage")
	defer span.End()

	read := s.ReadPlate(ctx, img)
	if !read.Usable() {
		span.SetAttributes(attribute.String("outcome", string(OutcomeReadFailed)))
		return EntryResult{Outcome: OutcomeReadFailed, Read: read}
	}
	p := *read.Plate
	id, err := s.Ledger.RecordEntry(ctx, p, s.now())
	res := EntryResultFor(p, id, err)
	res.Read = read
	if res.Outcome == OutcomeError {
		recordErr(span, err)
	}
	span.SetAttributes(attribute.String("plate", p), attribute.String("outcome", string(res.Outcome)))
	return res
}

// RecordExitFromImage reads the plate in img and closes its session. An
// exit without an open session is a declined result; the ledger has already
// appended the BLOCKED audit row.
func (s *Recognition) RecordExitFromImage(ctx context.Context, img image.Image) ExitResult {
	tr := otel.Tracer("services/Recognition")
	ctx, span := tr.Start(ctx, "RecordExitFromImage")
	defer span.End()

	read := s.ReadPlate(ctx, img)
	if !read.Usable() {
		span.SetAttributes(attribute.String("outcome", string(OutcomeReadFailed)))
		return ExitResult{Outcome: OutcomeReadFailed, Read: read}
	}
	p := *read.Plate
	out, err := s.Ledger.RecordExit(ctx, p, s.now())
	res := ExitResultFor(p, out, err)
	res.Read = read
	if res.Outcome == OutcomeError {
		recordErr(span, err)
	}
	span.SetAttributes(attribute.String("plate", p), attribute.String("outcome", string(res.Outcome)))
	return res
}

// EntryResultFor classifies the ledger's answer to an entry for plate p.
// Callers that already know the plate (operator consoles, queued gate
// events) use it to report the same outcomes as the image path.
func EntryResultFor(p string, id int64, err error) EntryResult {
	res := EntryResult{Plate: p}
	var conflict *AlreadyParkedError
	switch {
	case err == nil:
		res.Outcome, res.EventID = OutcomeOK, id
	case errors.As(err, &conflict):
		res.Outcome, res.Conflict, res.Err = OutcomeDeclined, conflict, err
	case errors.Is(err, ErrInvalidPlate):
		res.Outcome, res.Err = OutcomeReadFailed, err
	default:
		res.Outcome, res.Err, res.Retryable = OutcomeError, err, IsTransient(err)
	}
	return res
}

// ExitResultFor classifies the ledger's answer to an exit for plate p.
func ExitResultFor(p string, out ExitOutcome, err error) ExitResult {
	res := ExitResult{Plate: p}
	switch {
	case errors.Is(err, ErrInvalidPlate):
		res.Outcome, res.Err = OutcomeReadFailed, err
	case err != nil:
		res.Outcome, res.Err, res.Retryable = OutcomeError, err, IsTransient(err)
	case out.Blocked:
		res.Outcome, res.BlockedEventID = OutcomeDeclined, out.BlockedEventID
	default:
		res.Outcome, res.Receipt = OutcomeOK, out.Receipt
	}
	return res
}

func (s *Recognition) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
