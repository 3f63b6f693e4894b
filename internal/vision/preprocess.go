package vision

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// Standard preprocessing parameters.
const (
	LeftTrim      = 0.07 // share of width cut on the left (EU band)
	EdgeTrim      = 0.12 // share of height cut at top and at bottom (frames)
	UpscaleFactor = 2
	SharpenSigma  = 1.2
	SharpenAmount = 1.6 // weight of the image; the blur gets 1-SharpenAmount
)

// Standard is the default Preprocessor.
type Standard struct{}

// Crop implements Preprocessor.
func (Standard) Crop(img image.Image, box Box, pad int) image.Image {
	if img == nil {
		return nil
	}
	if pad < 0 {
		pad = 0
	}
	// Not image.Rect: an inverted box must stay inverted and come out empty.
	r := image.Rectangle{
		Min: image.Pt(box.X1-pad, box.Y1-pad),
		Max: image.Pt(box.X2+pad, box.Y2+pad),
	}.Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	return copyRect(img, r)
}

// Enhance implements Preprocessor: trim the EU band on the left and frame
// edges at top and bottom, upscale with Catmull-Rom and apply an unsharp mask.
func (Standard) Enhance(img image.Image) image.Image {
	if img == nil || img.Bounds().Empty() {
		return nil
	}
	r := img.Bounds()

	w := r.Dx()
	if cut := int(float64(w) * LeftTrim); float64(w-cut) > float64(w)*0.8 {
		r.Min.X += cut
	}
	h := r.Dy()
	if cut := int(float64(h) * EdgeTrim); h-2*cut > 10 {
		r.Min.Y += cut
		r.Max.Y -= cut
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx()*UpscaleFactor, r.Dy()*UpscaleFactor))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, r, draw.Src, nil)
	return unsharp(dst, SharpenSigma, SharpenAmount)
}

func copyRect(img image.Image, r image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// unsharp returns amount*src + (1-amount)*gaussian(src, sigma), clamped.
func unsharp(src *image.RGBA, sigma, amount float64) *image.RGBA {
	blur := gaussian(src, sigma)
	out := image.NewRGBA(src.Bounds())
	for i := 0; i < len(src.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := amount*float64(src.Pix[i+c]) + (1-amount)*float64(blur.Pix[i+c])
			out.Pix[i+c] = clamp8(v)
		}
		out.Pix[i+3] = src.Pix[i+3]
	}
	return out
}

// gaussian applies a separable Gaussian blur with edge clamping.
func gaussian(src *image.RGBA, sigma float64) *image.RGBA {
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	b := src.Bounds()
	tmp := image.NewRGBA(b)
	out := image.NewRGBA(b)
	pass := func(dst, in *image.RGBA, dx, dy int) {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				var acc [4]float64
				for k, wk := range kernel {
					sx := clampInt(x+(k-radius)*dx, b.Min.X, b.Max.X-1)
					sy := clampInt(y+(k-radius)*dy, b.Min.Y, b.Max.Y-1)
					c := in.RGBAAt(sx, sy)
					acc[0] += wk * float64(c.R)
					acc[1] += wk * float64(c.G)
					acc[2] += wk * float64(c.B)
					acc[3] += wk * float64(c.A)
				}
				dst.SetRGBA(x, y, color.RGBA{clamp8(acc[0]), clamp8(acc[1]), clamp8(acc[2]), clamp8(acc[3])})
			}
		}
	}
	pass(tmp, src, 1, 0)
	pass(out, tmp, 0, 1)
	return out
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
