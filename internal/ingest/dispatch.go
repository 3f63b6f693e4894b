// Package ingest consumes gate events from a queue and applies them to the
// ledger.
//
// Gate controllers that cannot call the HTTP API synchronously publish one
// message per vehicle to SQS. A message names the gate, the direction, and
// either an already-read plate or a base64 camera frame:
//
//	{"gate":"north-1","direction":"entry","plate":"WA12345","time":"2024-05-01T08:00:00Z"}
//	{"gate":"north-1","direction":"exit","image_base64":"iVBORw0KGgo..."}
package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/tbourn/parking-alpr/internal/feed"
	"github.com/tbourn/parking-alpr/internal/plate"
	"github.com/tbourn/parking-alpr/internal/services"
	"github.com/tbourn/parking-alpr/internal/vision"
)

// ErrPermanent marks messages that can never succeed. They are deleted
// instead of being redelivered.
var ErrPermanent = errors.New("permanent gate event failure")

// Directions.
const (
	DirectionEntry = "entry"
	DirectionExit  = "exit"
)

// GateEvent is one queued gate observation.
type GateEvent struct {
	Gate        string     `json:"gate"`
	Direction   string     `json:"direction"`
	Plate       string     `json:"plate,omitempty"`
	ImageBase64 string     `json:"image_base64,omitempty"`
	Time        *time.Time `json:"time,omitempty"`
}

// ParseGateEvent decodes and validates a message body.
func ParseGateEvent(body string) (GateEvent, error) {
	var ev GateEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return ev, fmt.Errorf("%w: decode: %v", ErrPermanent, err)
	}
	ev.Direction = strings.ToLower(strings.TrimSpace(ev.Direction))
	switch ev.Direction {
	case DirectionEntry, DirectionExit:
	default:
		return ev, fmt.Errorf("%w: direction %q", ErrPermanent, ev.Direction)
	}
	if (ev.Plate == "") == (ev.ImageBase64 == "") {
		return ev, fmt.Errorf("%w: exactly one of plate or image_base64 is required", ErrPermanent)
	}
	ev.Plate = plate.Normalize(ev.Plate)
	return ev, nil
}

// Ledger is the part of services.Ledger used for plate observations.
type Ledger interface {
	RecordEntry(ctx context.Context, plate string, when time.Time) (int64, error)
	RecordExit(ctx context.Context, plate string, when time.Time) (services.ExitOutcome, error)
}

// Recognizer is the part of services.Recognition used for image observations.
type Recognizer interface {
	RecordEntryFromImage(ctx context.Context, img image.Image) services.EntryResult
	RecordExitFromImage(ctx context.Context, img image.Image) services.ExitResult
}

// Dispatcher applies gate events to the ledger and publishes the decisions.
type Dispatcher struct {
	Ledger        Ledger
	Recognition   Recognizer
	Feed          feed.Publisher
	MaxImageBytes int
	Now           func() time.Time
}

// Handle parses body and applies it. Declined decisions (already parked,
// blocked exit) and unusable reads are final and return nil. Malformed
// messages return ErrPermanent; ledger failures return other errors.
func (d *Dispatcher) Handle(ctx context.Context, body string) error {
	ev, err := ParseGateEvent(body)
	if err != nil {
		return err
	}
	now := d.now()
	when := now
	if ev.Time != nil && !ev.Time.IsZero() {
		when = *ev.Time
	}
	origin := feed.Origin{Gate: ev.Gate, Source: "sqs"}

	var img image.Image
	if ev.ImageBase64 != "" {
		if img, err = d.decode(ev.ImageBase64); err != nil {
			return err
		}
	}

	var (
		dec   feed.Decision
		cause error
	)
	switch {
	case ev.Direction == DirectionEntry && img != nil:
		res := d.Recognition.RecordEntryFromImage(ctx, img)
		dec, cause = feed.EntryDecision(origin, res, now), res.Err
	case ev.Direction == DirectionEntry:
		id, err := d.Ledger.RecordEntry(ctx, ev.Plate, when)
		res := services.EntryResultFor(ev.Plate, id, err)
		dec, cause = feed.EntryDecision(origin, res, now), res.Err
	case img != nil:
		res := d.Recognition.RecordExitFromImage(ctx, img)
		dec, cause = feed.ExitDecision(origin, res, now), res.Err
	default:
		out, err := d.Ledger.RecordExit(ctx, ev.Plate, when)
		res := services.ExitResultFor(ev.Plate, out, err)
		dec, cause = feed.ExitDecision(origin, res, now), res.Err
	}

	// Store failures leave the message on the queue; the redrive policy
	// bounds how often an unexpected one is retried.
	if dec.Outcome == string(services.OutcomeError) {
		return fmt.Errorf("gate %s %s: %w", ev.Gate, ev.Direction, cause)
	}
	d.publish(dec)
	return nil
}

func (d *Dispatcher) decode(b64 string) (image.Image, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: image_base64: %v", ErrPermanent, err)
	}
	if d.MaxImageBytes > 0 && len(data) > d.MaxImageBytes {
		return nil, fmt.Errorf("%w: image is %d bytes, limit %d", ErrPermanent, len(data), d.MaxImageBytes)
	}
	img, _, err := vision.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	return img, nil
}

func (d *Dispatcher) publish(dec feed.Decision) {
	if d.Feed != nil {
		d.Feed.Publish(dec)
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}
