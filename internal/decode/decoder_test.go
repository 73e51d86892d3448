package decode_test

import (
	"errors"
	"image"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"barscan/internal/decode"
)

func TestZXingDecodesQRCode(t *testing.T) {
	matrix, err := qrcode.NewQRCodeWriter().Encode("barscan-42", gozxing.BarcodeFormat_QR_CODE, 240, 240, nil)
	if err != nil {
		t.Fatalf("encode qr: %v", err)
	}

	sym, err := decode.NewZXing().Decode(matrix)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if sym.Text != "barscan-42" {
		t.Fatalf("text = %q", sym.Text)
	}
	if sym.Format != "QR_CODE" {
		t.Fatalf("format = %q", sym.Format)
	}
}

func TestZXingBlankFrameIsNotFound(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 160, 120))
	for i := range blank.Pix {
		blank.Pix[i] = 0xFF
	}
	_, err := decode.NewZXing().Decode(blank)
	if !errors.Is(err, decode.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestZXingDecoderIsReusable(t *testing.T) {
	z := decode.NewZXing()
	matrix, err := qrcode.NewQRCodeWriter().Encode("again", gozxing.BarcodeFormat_QR_CODE, 200, 200, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		sym, err := z.Decode(matrix)
		if err != nil || sym.Text != "again" {
			t.Fatalf("iteration %d: sym=%+v err=%v", i, sym, err)
		}
	}
}
