package v4l2

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"
)

func TestReadFramesSplitsConcatenatedJPEGs(t *testing.T) {
	frameA := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	frameB := []byte{0xFF, 0xD8, 0x03, 0xFF, 0x00, 0x04, 0xFF, 0xD9}
	var stream []byte
	stream = append(stream, 0x00, 0x13) // garbage before the first frame
	stream = append(stream, frameA...)
	stream = append(stream, frameB...)
	stream = append(stream, 0xFF, 0xD8, 0x05) // truncated trailing frame

	tests := []struct {
		name   string
		reader io.Reader
	}{
		{name: "single read", reader: bytes.NewReader(stream)},
		{name: "one byte reads", reader: iotest.OneByteReader(bytes.NewReader(stream))},
		{name: "half reads", reader: iotest.HalfReader(bytes.NewReader(stream))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var frames [][]byte
			if err := readFrames(tt.reader, func(frame []byte) {
				frames = append(frames, frame)
			}); err != nil {
				t.Fatalf("readFrames: %v", err)
			}
			if len(frames) != 2 {
				t.Fatalf("expected 2 frames, got %d", len(frames))
			}
			if !bytes.Equal(frames[0], frameA) {
				t.Fatalf("frame A mismatch: % x", frames[0])
			}
			if !bytes.Equal(frames[1], frameB) {
				t.Fatalf("frame B mismatch: % x", frames[1])
			}
		})
	}
}

func TestReadFramesPropagatesReadErrors(t *testing.T) {
	err := readFrames(iotest.ErrReader(io.ErrUnexpectedEOF), func([]byte) {})
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("expected read error, got %v", err)
	}
}
