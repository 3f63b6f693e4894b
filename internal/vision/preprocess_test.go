package vision

import (
	"context"
	"image"
	"image/color"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestCrop_PaddingClampedToBounds(t *testing.T) {
	img := solid(100, 50, color.RGBA{10, 20, 30, 255})
	got := Standard{}.Crop(img, Box{X1: 10, Y1: 10, X2: 40, Y2: 30}, 30)
	if got == nil {
		t.Fatal("expected crop")
	}
	// x: max(0,10-30)=0 .. min(100,40+30)=70; y: 0 .. min(50,60)=50
	if b := got.Bounds(); b.Dx() != 70 || b.Dy() != 50 {
		t.Fatalf("crop size = %dx%d, want 70x50", b.Dx(), b.Dy())
	}
}

func TestCrop_Degenerate(t *testing.T) {
	img := solid(100, 50, color.RGBA{})
	cases := []struct {
		name string
		box  Box
		pad  int
	}{
		{"outside", Box{X1: 200, Y1: 200, X2: 300, Y2: 300}, 0},
		{"zero width", Box{X1: 10, Y1: 10, X2: 10, Y2: 20}, 0},
		{"inverted", Box{X1: 40, Y1: 10, X2: 10, Y2: 20}, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := (Standard{}).Crop(img, tc.box, tc.pad); got != nil {
				t.Fatalf("expected nil crop, got %v", got.Bounds())
			}
		})
	}
	if (Standard{}).Crop(nil, Box{X2: 1, Y2: 1}, 0) != nil {
		t.Fatal("nil image must give nil crop")
	}
}

func TestCrop_ZeroWidthBoxWithPadding(t *testing.T) {
	img := solid(100, 50, color.RGBA{})
	got := Standard{}.Crop(img, Box{X1: 10, Y1: 10, X2: 10, Y2: 20}, 2)
	if got == nil || got.Bounds().Dx() != 4 || got.Bounds().Dy() != 14 {
		t.Fatalf("crop = %v", got)
	}
}

func TestEnhance_TrimsAndUpscales(t *testing.T) {
	img := solid(200, 50, color.RGBA{128, 128, 128, 255})
	got := Standard{}.Enhance(img)
	if got == nil {
		t.Fatal("expected image")
	}
	// width: 200 - 14 = 186; height: 50 - 2*6 = 38; then x2.
	if b := got.Bounds(); b.Dx() != 372 || b.Dy() != 76 {
		t.Fatalf("enhanced size = %dx%d, want 372x76", b.Dx(), b.Dy())
	}
	// A flat image stays flat under the unsharp mask.
	c := got.(*image.RGBA).RGBAAt(100, 30)
	if c.R < 126 || c.R > 130 {
		t.Fatalf("flat pixel drifted to %v", c)
	}
}

func TestEnhance_SmallCropKeepsHeight(t *testing.T) {
	img := solid(40, 12, color.RGBA{0, 0, 0, 255})
	got := Standard{}.Enhance(img)
	// 12 - 2*1 = 10 is not > 10, so no vertical trim; 40 - 2 = 38 wide.
	if b := got.Bounds(); b.Dx() != 76 || b.Dy() != 24 {
		t.Fatalf("enhanced size = %dx%d, want 76x24", b.Dx(), b.Dy())
	}
}

func TestEnhance_SharpensEdges(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			v := uint8(60)
			if x >= 20 {
				v = 200
			}
			img.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}
	out := unsharp(img, SharpenSigma, SharpenAmount)
	// Overshoot on both sides of the step.
	if dark := out.RGBAAt(19, 10).R; dark >= 60 {
		t.Fatalf("dark side = %d, want < 60", dark)
	}
	if light := out.RGBAAt(20, 10).R; light <= 200 {
		t.Fatalf("light side = %d, want > 200", light)
	}
}

func TestWholeImage(t *testing.T) {
	ctx := context.Background()
	b, err := WholeImage{}.DetectBest(ctx, solid(8, 4, color.RGBA{}))
	if err != nil || b == nil || b.X2 != 8 || b.Y2 != 4 || b.Confidence != 1 {
		t.Fatalf("box = %+v, %v", b, err)
	}
	if b, _ := (WholeImage{}).DetectBest(ctx, nil); b != nil {
		t.Fatalf("nil image gave %+v", b)
	}
}
