package decode

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNotFound is the routine "no symbol in this frame" outcome.
var ErrNotFound = errors.New("no symbol found")

// Symbol is a decoded payload and its format tag.
type Symbol struct {
	Text   string
	Format string
}

// Decoder attempts to decode one frame. Implementations return ErrNotFound
// (possibly wrapped) when the frame holds no readable symbol.
type Decoder interface {
	Decode(img image.Image) (Symbol, error)
}

// ZXing decodes QR, Data Matrix, EAN/UPC, Code 128, and Code 39 symbols.
type ZXing struct {
	mu      sync.Mutex
	readers []gozxing.Reader
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewZXing returns a decoder trying each supported reader in turn.
func NewZXing() *ZXing {
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	return &ZXing{
		readers: []gozxing.Reader{
			qrcode.NewQRCodeReader(),
			datamatrix.NewDataMatrixReader(),
			oned.NewMultiFormatUPCEANReader(hints),
			oned.NewCode128Reader(),
			oned.NewCode39Reader(),
		},
		hints: hints,
	}
}

// Decode returns the first symbol any reader finds. Checksum and format
// failures come from partially visible codes and are reported as not found.
func (z *ZXing) Decode(img image.Image) (sym Symbol, err error) {
	defer func() {
		if r := recover(); r != nil {
			sym, err = Symbol{}, fmt.Errorf("decoder panic: %v", r)
		}
	}()

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Symbol{}, fmt.Errorf("prepare bitmap: %w", err)
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	var fault error
	for _, reader := range z.readers {
		result, err := reader.Decode(bmp, z.hints)
		reader.Reset()
		if err == nil {
			return Symbol{Text: result.GetText(), Format: result.GetBarcodeFormat().String()}, nil
		}
		if !isRoutine(err) && fault == nil {
			fault = err
		}
	}
	if fault != nil {
		return Symbol{}, fault
	}
	return Symbol{}, ErrNotFound
}

func isRoutine(err error) bool {
	var (
		notFound gozxing.NotFoundException
		checksum gozxing.ChecksumException
		format   gozxing.FormatException
	)
	return errors.As(err, &notFound) || errors.As(err, &checksum) || errors.As(err, &format)
}
