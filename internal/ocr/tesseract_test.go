package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/visionguard/internal/config"
)

// fakeEngine returns canned tokens and records the image it was given.
type fakeEngine struct {
	tokens []Token
	err    error
	got    image.Image
}

func (f *fakeEngine) Tokens(_ context.Context, img image.Image) ([]Token, error) {
	f.got = img
	return f.tokens, f.err
}

// drawText draws text on an image using basicfont
func drawText(img *image.RGBA, x, y int, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// createPlateImage renders text black on white, enlarged by scale.
func createPlateImage(text string, scale int) *image.RGBA {
	w, h := len(text)*7+20, 25
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(small, small.Bounds(), image.White, image.Point{}, draw.Src)
	drawText(small, 10, 17, text, color.Black)

	img := image.NewRGBA(image.Rect(0, 0, w*scale, h*scale))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := small.At(x, y)
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.Set(x*scale+dx, y*scale+dy, c)
				}
			}
		}
	}
	return img
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		tokens   []Token
		wantText string
		wantConf float64
	}{
		{
			name:     "three tokens",
			tokens:   []Token{{"AB", 90}, {"12", 80}, {"CD", 70}},
			wantText: "AB12CD",
			wantConf: 80,
		},
		{
			name:     "missing confidence excluded",
			tokens:   []Token{{"AB", 90}, {"12", -1}},
			wantText: "AB12",
			wantConf: 90,
		},
		{
			name:     "zero confidence included",
			tokens:   []Token{{"AB", 90}, {"12", 0}},
			wantText: "AB12",
			wantConf: 45,
		},
		{
			name:     "all missing",
			tokens:   []Token{{"X", -1}},
			wantText: "X",
			wantConf: 0,
		},
		{
			name:     "case folded and filtered",
			tokens:   []Token{{"ab-1", 60}, {"2.c", 40}},
			wantText: "AB12C",
			wantConf: 50,
		},
		{
			name:     "no tokens",
			wantText: "",
			wantConf: 0,
		},
		{
			name:     "whitespace trimmed",
			tokens:   []Token{{" AB ", 50}, {"\n", -1}},
			wantText: "AB",
			wantConf: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(tt.tokens)
			if got.Text != tt.wantText {
				t.Errorf("text = %q, want %q", got.Text, tt.wantText)
			}
			if got.Confidence != tt.wantConf {
				t.Errorf("confidence = %f, want %f", got.Confidence, tt.wantConf)
			}
		})
	}
}

func TestRecognizer_Recognize(t *testing.T) {
	engine := &fakeEngine{tokens: []Token{{"AB", 90}, {"12", 80}, {"CD", 70}}}
	r := NewRecognizer(engine, config.DefaultProcessing(), zerolog.Nop())

	region := createPlateImage("AB12CD", 2)
	res, err := r.Recognize(context.Background(), region)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if res.Text != "AB12CD" || res.Confidence != 80 {
		t.Errorf("result = %+v", res)
	}
	if !res.Bounds.Empty() {
		t.Errorf("bounds = %v, want empty for a crop", res.Bounds)
	}

	got, ok := engine.got.(*image.Gray)
	if !ok {
		t.Fatalf("engine received %T, want *image.Gray", engine.got)
	}
	if got.Bounds().Dx() != 2*region.Bounds().Dx() || got.Bounds().Dy() != 2*region.Bounds().Dy() {
		t.Errorf("engine image %v is not a 2x upscale of %v", got.Bounds(), region.Bounds())
	}
	for _, v := range got.Pix {
		if v != 0 && v != 255 {
			t.Fatalf("engine image is not binary: found %d", v)
		}
	}
}

func TestRecognizer_EmptyRegion(t *testing.T) {
	engine := &fakeEngine{tokens: []Token{{"X", 99}}}
	r := NewRecognizer(engine, config.DefaultProcessing(), zerolog.Nop())

	res, err := r.Recognize(context.Background(), image.NewRGBA(image.Rectangle{}))
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if res.Text != "" || engine.got != nil {
		t.Errorf("empty region should not reach the engine, got %+v", res)
	}
}

func TestRecognizer_EngineError(t *testing.T) {
	boom := errors.New("boom")
	r := NewRecognizer(&fakeEngine{err: boom}, config.DefaultProcessing(), zerolog.Nop())

	_, err := r.Recognize(context.Background(), createPlateImage("A", 1))
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped engine error, got %v", err)
	}
}

func TestNewRecognizer_CoercesBlock(t *testing.T) {
	cfg := config.DefaultProcessing()
	cfg.AdaptiveBlock = 2
	r := NewRecognizer(&fakeEngine{}, cfg, zerolog.Nop())
	if r.cfg.AdaptiveBlock != 3 {
		t.Errorf("block = %d, want 3", r.cfg.AdaptiveBlock)
	}
}

func newTesseractOrSkip(t *testing.T) *Tesseract {
	t.Helper()
	engine, err := NewTesseract(TesseractOptions{})
	if err != nil {
		t.Skip("Tesseract not available")
	}
	t.Cleanup(func() { engine.Close() })

	// Language data is only loaded on first use.
	if _, err := engine.Tokens(context.Background(), image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		t.Skipf("Tesseract not usable: %v", err)
	}
	return engine
}

func TestTesseract_ReadsPlate(t *testing.T) {
	engine := newTesseractOrSkip(t)
	r := NewRecognizer(engine, config.DefaultProcessing(), zerolog.Nop())

	res, err := r.Recognize(context.Background(), createPlateImage("ABC123", 4))
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if !strings.Contains(res.Text, "ABC") && !strings.Contains(res.Text, "123") {
		t.Errorf("expected plate text, got %q", res.Text)
	}
	if res.Confidence < 0 || res.Confidence > 100 {
		t.Errorf("confidence %f out of range", res.Confidence)
	}
	for _, ch := range res.Text {
		if !strings.ContainsRune(PlateChars, ch) {
			t.Errorf("character %q outside whitelist in %q", ch, res.Text)
		}
	}
}

func TestTesseract_BlankImage(t *testing.T) {
	engine := newTesseractOrSkip(t)

	img := image.NewGray(image.Rect(0, 0, 200, 50))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	tokens, err := engine.Tokens(context.Background(), img)
	if err != nil {
		t.Fatalf("Tokens failed: %v", err)
	}
	if res := Aggregate(tokens); res.Text != "" {
		t.Logf("blank image produced %q", res.Text)
	}
}

func TestTesseract_CanceledContext(t *testing.T) {
	engine := newTesseractOrSkip(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := engine.Tokens(ctx, createPlateImage("ABC123", 4))
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error or a completed call, got %v", err)
	}
}

func TestGetInfo(t *testing.T) {
	info := GetInfo(TesseractOptions{})
	if info.Backend != "gosseract" {
		t.Errorf("backend = %q", info.Backend)
	}
	if !info.Available && info.Error == "" {
		t.Error("unavailable engine should report an error")
	}
}
