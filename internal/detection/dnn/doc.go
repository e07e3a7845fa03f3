// Package dnn runs a frozen YOLO-style detector through OpenCV's dnn module.
//
// The package links against OpenCV via gocv and is imported only by the
// command when the dnn strategy is configured, so the rest of the pipeline
// builds and tests without OpenCV installed.
package dnn
