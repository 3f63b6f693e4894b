package feed

import (
	"time"

	"github.com/tbourn/parking-alpr/internal/services"
)

// Origin identifies where a decision was requested.
type Origin struct {
	Gate   string
	Source string // "http", "sqs"
}

// EntryDecision converts an entry result. Failed reads carry the read
// error as Reason; declined entries carry the conflicting event id.
func EntryDecision(o Origin, res services.EntryResult, at time.Time) Decision {
	d := Decision{
		Kind:    KindEntry,
		Outcome: string(res.Outcome),
		Plate:   res.Plate,
		Gate:    o.Gate,
		Source:  o.Source,
		EventID: res.EventID,
		At:      at,
	}
	switch res.Outcome {
	case services.OutcomeDeclined:
		d.Reason = "already_parked"
		if res.Conflict != nil {
			d.EventID = res.Conflict.EventID
		}
	case services.OutcomeReadFailed:
		d.Reason = readReason(res.Read)
	case services.OutcomeError:
		d.Reason = errorReason(res.Retryable)
	}
	return d
}

// ExitDecision converts an exit result. Paid exits carry the fee.
func ExitDecision(o Origin, res services.ExitResult, at time.Time) Decision {
	d := Decision{
		Kind:    KindExit,
		Outcome: string(res.Outcome),
		Plate:   res.Plate,
		Gate:    o.Gate,
		Source:  o.Source,
		At:      at,
	}
	switch res.Outcome {
	case services.OutcomeOK:
		if res.Receipt != nil {
			fee := res.Receipt.FeePLN
			d.EventID, d.FeePLN = res.Receipt.EventID, &fee
		}
	case services.OutcomeDeclined:
		d.Reason, d.EventID = "exit_blocked", res.BlockedEventID
	case services.OutcomeReadFailed:
		d.Reason = readReason(res.Read)
	case services.OutcomeError:
		d.Reason = errorReason(res.Retryable)
	}
	return d
}

// ManualExitDecision reports an operator override.
func ManualExitDecision(o Origin, plate string, eventID int64, at time.Time) Decision {
	return Decision{
		Kind:    KindManualExit,
		Outcome: string(services.OutcomeOK),
		Plate:   plate,
		Gate:    o.Gate,
		Source:  o.Source,
		EventID: eventID,
		At:      at,
	}
}

func readReason(r services.ReadResult) string {
	if r.Error != "" {
		return string(r.Error)
	}
	return "invalid_plate"
}

func errorReason(retryable bool) string {
	if retryable {
		return "store_unavailable"
	}
	return "internal_error"
}
