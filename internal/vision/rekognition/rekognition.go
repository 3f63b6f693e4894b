// Package rekognition provides a vision.Recognizer backed by Amazon
// Rekognition DetectText. Importing the package registers the engine as
// "rekognition".
package rekognition

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/tbourn/parking-alpr/internal/plate"
	"github.com/tbourn/parking-alpr/internal/vision"
)

// Name is the OCR_ENGINE value that selects this engine.
const Name = "rekognition"

func init() {
	vision.RegisterRecognizer(Name, func(cfg vision.EngineConfig) (vision.Recognizer, error) {
		ctx := context.Background()
		opts := []func(*awsconfig.LoadOptions) error{}
		if cfg.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return New(rekognition.NewFromConfig(awsCfg)), nil
	})
}

// API is the subset of the Rekognition client used here.
type API interface {
	DetectText(ctx context.Context, in *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// Recognizer implements vision.Recognizer.
type Recognizer struct {
	api API
	// MinConfidence drops detections below this value, in [0,1].
	MinConfidence float64
}

// New wraps a Rekognition client.
func New(api API) *Recognizer { return &Recognizer{api: api} }

// ReadCandidates sends the crop to DetectText and returns LINE and WORD
// detections as candidates. Rekognition confidences (0..100) are rescaled.
func (r *Recognizer) ReadCandidates(ctx context.Context, img image.Image) ([]plate.Candidate, error) {
	if r.api == nil {
		return nil, vision.ErrEngineUnavailable
	}
	data, err := vision.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	res, err := r.api.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: data},
	})
	if err != nil {
		return nil, fmt.Errorf("rekognition detect text: %w", err)
	}

	out := make([]plate.Candidate, 0, len(res.TextDetections))
	for _, td := range res.TextDetections {
		if td.Type != types.TextTypesLine && td.Type != types.TextTypesWord {
			continue
		}
		text := strings.TrimSpace(aws.ToString(td.DetectedText))
		if text == "" {
			continue
		}
		conf := float64(aws.ToFloat32(td.Confidence)) / 100.0
		if conf < r.MinConfidence {
			continue
		}
		out = append(out, plate.Candidate{Text: text, Confidence: conf})
	}
	return out, nil
}
