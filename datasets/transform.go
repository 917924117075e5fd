package datasets

import (
	"image"
	"image/color"
	"math/rand"

	"github.com/disintegration/imaging"
)

// Step is one image operation in a transform pipeline.
type Step func(image.Image) image.Image

// ImageNetMean and ImageNetStd are the usual per-channel normalization
// constants for backbones pretrained on ImageNet.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Pipeline applies a sequence of image steps and converts the result to a
// normalized float32 HWC buffer. With no randomized steps the pipeline is
// deterministic: the same input yields bit-identical output.
type Pipeline struct {
	steps []Step
	mean  [3]float32
	std   [3]float32
}

// NewPipeline creates a pipeline with the given steps and ImageNet
// normalization constants.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps, mean: ImageNetMean, std: ImageNetStd}
}

// WithNormalization overrides the per-channel mean and standard deviation
// applied after the image steps. Returns the pipeline for chaining.
func (p *Pipeline) WithNormalization(mean, std [3]float32) *Pipeline {
	p.mean = mean
	p.std = std
	return p
}

// Run applies the steps and returns normalized pixels plus the final
// dimensions.
func (p *Pipeline) Run(img image.Image) (pixels []float32, width, height int) {
	for _, step := range p.steps {
		img = step(img)
	}
	bounds := img.Bounds()
	width = bounds.Dx()
	height = bounds.Dy()
	pixels = make([]float32, height*width*3)
	pos := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			for c, channel := range [3]uint32{r, g, b} {
				v := float32(channel>>8) / 0xFF
				pixels[pos] = (v - p.mean[c]) / p.std[c]
				pos++
			}
		}
	}
	return pixels, width, height
}

// Resize scales the image to width x height, distorting the aspect ratio if
// needed.
func Resize(width, height int) Step {
	return func(img image.Image) image.Image {
		return imaging.Resize(img, width, height, imaging.Lanczos)
	}
}

// ResizeWithPadding scales the image to fit within width x height preserving
// the aspect ratio, centering it over black padding.
func ResizeWithPadding(width, height int) Step {
	return func(img image.Image) image.Image {
		imgSize := img.Bounds().Size()
		wRatio := float64(width) / float64(imgSize.X)
		hRatio := float64(height) / float64(imgSize.Y)

		adjustedWidth, adjustedHeight := width, height
		if wRatio < hRatio {
			adjustedHeight = int(wRatio * float64(imgSize.Y))
		} else if hRatio < wRatio {
			adjustedWidth = int(hRatio * float64(imgSize.X))
		}
		img = imaging.Resize(img, adjustedWidth, adjustedHeight, imaging.Lanczos)
		if adjustedWidth != width || adjustedHeight != height {
			bgImg := image.NewRGBA(image.Rect(0, 0, width, height))
			img = imaging.PasteCenter(bgImg, img)
		}
		return img
	}
}

// CenterCrop cuts out the centered width x height region.
func CenterCrop(width, height int) Step {
	return func(img image.Image) image.Image {
		return imaging.CropCenter(img, width, height)
	}
}

// RandomHorizontalFlip mirrors the image horizontally with probability 1/2.
// The caller owns the rng; pass a seeded one for reproducible augmentation.
func RandomHorizontalFlip(rng *rand.Rand) Step {
	return func(img image.Image) image.Image {
		if rng.Intn(2) == 1 {
			return imaging.FlipH(img)
		}
		return img
	}
}

// RandomRotation rotates the image by a normally distributed angle with the
// given standard deviation in degrees, filling the corners with black.
func RandomRotation(angleStdDev float64, rng *rand.Rand) Step {
	return func(img image.Image) image.Image {
		if angleStdDev <= 0 {
			return img
		}
		angle := rng.NormFloat64() * angleStdDev
		return imaging.Rotate(img, angle, color.RGBA{R: 0, G: 0, B: 0, A: 255})
	}
}
