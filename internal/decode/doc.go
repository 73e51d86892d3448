// Package decode runs the continuous symbol decoding loop over a camera
// surface.
//
// Loop.Begin starts one subscription: a decode goroutine reads each new frame
// from the surface and hands it to the Decoder, and a dispatcher goroutine
// delivers the resulting events to the handler through a bounded queue so a
// slow handler never stalls decoding. Not-found results are routine and are
// neither logged nor counted as faults. ZXing adapts the gozxing readers to
// the Decoder interface.
package decode
