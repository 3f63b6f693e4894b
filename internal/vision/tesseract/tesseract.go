//go:build tesseract

package tesseract

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/tbourn/parking-alpr/internal/plate"
	"github.com/tbourn/parking-alpr/internal/vision"
)

func init() {
	vision.RegisterRecognizer(Name, func(cfg vision.EngineConfig) (vision.Recognizer, error) {
		return New(cfg.Languages...), nil
	})
}

// Whitelist restricts recognition to plate characters.
const Whitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Recognizer implements vision.Recognizer using one gosseract client per
// call.
type Recognizer struct {
	Languages     []string
	clientFactory func() *gosseract.Client
}

// New constructs a Recognizer for the given languages (default "eng").
func New(languages ...string) *Recognizer {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Recognizer{Languages: languages, clientFactory: gosseract.NewClient}
}

// ReadCandidates returns every recognized word and, when there is more than
// one, the joined line as candidates. Confidences are rescaled to [0,1].
func (r *Recognizer) ReadCandidates(ctx context.Context, img image.Image) ([]plate.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := vision.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	c := r.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(r.Languages...); err != nil {
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetWhitelist(Whitelist); err != nil {
		return nil, fmt.Errorf("set whitelist: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return nil, fmt.Errorf("set page seg mode: %w", err)
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	out := make([]plate.Candidate, 0, len(boxes)+1)
	var (
		words []string
		sum   float64
	)
	for _, b := range boxes {
		w := strings.TrimSpace(b.Word)
		if w == "" {
			continue
		}
		conf := b.Confidence / 100.0
		out = append(out, plate.Candidate{Text: w, Confidence: conf})
		words = append(words, w)
		sum += conf
	}
	if len(words) > 1 {
		out = append(out, plate.Candidate{
			Text:       strings.Join(words, ""),
			Confidence: sum / float64(len(words)),
		})
	}
	return out, nil
}
