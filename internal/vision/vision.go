// Package vision defines the collaborators the recognition pipeline consumes:
// a plate Detector, a text Recognizer and an image Preprocessor, together
// with the default implementations. Detection and recognition engines are
// pluggable; the default build talks to inference sidecars over HTTP, and
// optional engines live in subpackages.
package vision

import (
	"context"
	"errors"
	"image"

	"github.com/tbourn/parking-alpr/internal/plate"
)

// ErrEngineUnavailable is returned by engines that are not configured.
var ErrEngineUnavailable = errors.New("vision engine unavailable")

// Box is an axis-aligned pixel box of a plate-like region.
type Box struct {
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Confidence float64 `json:"confidence"`
}

// Rect returns the box as an image.Rectangle.
func (b Box) Rect() image.Rectangle { return image.Rect(b.X1, b.Y1, b.X2, b.Y2) }

// Detector finds the single highest-confidence plate region in an image.
// A nil box with a nil error means nothing was found.
type Detector interface {
	DetectBest(ctx context.Context, img image.Image) (*Box, error)
}

// Recognizer reads zero or more text candidates from a cropped plate image.
// Confidences are in [0,1].
type Recognizer interface {
	ReadCandidates(ctx context.Context, img image.Image) ([]plate.Candidate, error)
}

// Preprocessor prepares a detected region for recognition.
type Preprocessor interface {
	// Crop returns the region of img inside box grown by pad pixels on every
	// side, clamped to the image bounds, or nil if it is empty.
	Crop(img image.Image, box Box, pad int) image.Image
	// Enhance returns an image better suited to text recognition.
	Enhance(img image.Image) image.Image
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, img image.Image) (*Box, error)

// DetectBest calls f.
func (f DetectorFunc) DetectBest(ctx context.Context, img image.Image) (*Box, error) {
	return f(ctx, img)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, img image.Image) ([]plate.Candidate, error)

// ReadCandidates calls f.
func (f RecognizerFunc) ReadCandidates(ctx context.Context, img image.Image) ([]plate.Candidate, error) {
	return f(ctx, img)
}

// WholeImage is a Detector that reports the full frame as the plate region.
// It suits cameras that already deliver a tight plate crop.
type WholeImage struct{}

// DetectBest returns the bounds of img with confidence 1.
func (WholeImage) DetectBest(_ context.Context, img image.Image) (*Box, error) {
	if img == nil {
		return nil, nil
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, nil
	}
	return &Box{X1: b.Min.X, Y1: b.Min.Y, X2: b.Max.X, Y2: b.Max.Y, Confidence: 1}, nil
}
