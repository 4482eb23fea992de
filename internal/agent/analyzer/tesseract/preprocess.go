package tesseract

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Step transforms a page image before recognition.
type Step interface {
	Process(img image.Image) (image.Image, error)
}

type StepFunc func(img image.Image) (image.Image, error)

func (f StepFunc) Process(img image.Image) (image.Image, error) {
	return f(img)
}

func Grayscale() Step {
	return StepFunc(func(img image.Image) (image.Image, error) {
		return imaging.Grayscale(img), nil
	})
}

func Contrast(percentage float64) Step {
	return StepFunc(func(img image.Image) (image.Image, error) {
		return imaging.AdjustContrast(img, percentage), nil
	})
}

func Sharpen(sigma float64) Step {
	return StepFunc(func(img image.Image) (image.Image, error) {
		return imaging.Sharpen(img, sigma), nil
	})
}

// FitWidth downsizes pages wider than maxWidth. Tesseract gains little above ~300 dpi.
func FitWidth(maxWidth int) Step {
	return StepFunc(func(img image.Image) (image.Image, error) {
		if img.Bounds().Dx() <= maxWidth {
			return img, nil
		}
		return imaging.Resize(img, maxWidth, 0, imaging.Lanczos), nil
	})
}

func DefaultSteps() []Step {
	return []Step{FitWidth(2550), Grayscale(), Contrast(20), Sharpen(0.5)}
}

// Preprocess decodes data, runs steps in order and re-encodes the result as PNG.
func Preprocess(data []byte, steps []Step) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	for _, step := range steps {
		if img, err = step.Process(img); err != nil {
			return nil, fmt.Errorf("preprocessing failed: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
