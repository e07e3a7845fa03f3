// Package ocr turns a cropped plate region into text and a confidence score.
//
// A Recognizer prepares the crop for a line-oriented OCR engine and
// aggregates the engine's word tokens. The engine is pluggable; Tesseract
// (via gosseract/v2) is the production implementation.
//
// # Preprocessing
//
//  1. Convert to single-channel intensity
//  2. Upscale 2x with a cubic filter
//  3. Gaussian adaptive threshold (block size and C from config)
//
// # Engine Settings
//
// Tesseract runs in single-line mode (PSM 7) with a whitelist of A-Z and 0-9,
// and its dictionaries disabled so plate strings are not "corrected" into
// words.
//
// # Prerequisites
//
// Tesseract and its language data must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// A non-default data directory is set with the app.tesseract_cmd key.
//
// # Confidence
//
// Confidence is the arithmetic mean of the per-token confidences on a 0-100
// scale. Tokens that carry no confidence (negative values) are excluded; a
// token with confidence 0 is included. With no usable token the confidence is
// 0.
package ocr
