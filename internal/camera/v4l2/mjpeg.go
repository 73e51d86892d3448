package v4l2

import (
	"bytes"
	"errors"
	"io"
)

const (
	readChunkSize = 32 * 1024
	maxFrameBytes = 16 << 20
)

var (
	soiMarker = []byte{0xFF, 0xD8}
	eoiMarker = []byte{0xFF, 0xD9}
)

// readFrames splits a concatenated MJPEG byte stream into JPEG images and
// hands each complete one to emit. It returns nil on EOF.
func readFrames(r io.Reader, emit func(frame []byte)) error {
	chunk := make([]byte, readChunkSize)
	var buf []byte
	// scanFrom is where the EOI search resumes inside the current frame.
	scanFrom := len(soiMarker)

	for {
		n, readErr := r.Read(chunk)
		buf = append(buf, chunk[:n]...)

		for len(buf) > 0 {
			start := bytes.Index(buf, soiMarker)
			if start < 0 {
				// Keep a trailing 0xFF in case the marker is split across reads.
				if buf[len(buf)-1] == soiMarker[0] {
					buf = append(buf[:0], soiMarker[0])
				} else {
					buf = buf[:0]
				}
				scanFrom = len(soiMarker)
				break
			}
			if start > 0 {
				buf = append(buf[:0], buf[start:]...)
				scanFrom = len(soiMarker)
			}

			end := bytes.Index(buf[scanFrom:], eoiMarker)
			if end < 0 {
				if len(buf) > maxFrameBytes {
					buf = buf[:0]
					scanFrom = len(soiMarker)
					break
				}
				scanFrom = max(len(soiMarker), len(buf)-1)
				break
			}
			end += scanFrom + len(eoiMarker)

			frame := make([]byte, end)
			copy(frame, buf[:end])
			emit(frame)

			buf = append(buf[:0], buf[end:]...)
			scanFrom = len(soiMarker)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}
