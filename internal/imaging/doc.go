// Package imaging provides the pixel-level operations behind plate detection.
//
// It covers image decoding, single-channel intensity conversion, odd-sized
// Gaussian smoothing, Canny edge detection, 3x3 dilation, Gaussian adaptive
// thresholding, 2x upscaling and the padded region crop used before OCR.
// All operations work with standard Go image types and use a coordinate system
// where (0,0) is at the top-left corner, X increases rightward, and Y increases
// downward.
//
// # Coordinate System
//
// Regions are image.Rectangle values: Min is inclusive, Max is exclusive.
// Functions returning a new image translate it so that its bounds start at
// (0,0) unless stated otherwise.
//
// # Thread Safety
//
// Every operation is a pure function of its inputs and allocates its output, so
// they may be called concurrently on shared source images. ImageCache is safe
// for concurrent use.
//
// # Error Handling
//
// Decoding failures are reported as ErrInvalidImage so callers can tell an
// unreadable input apart from downstream failures with errors.Is.
package imaging
