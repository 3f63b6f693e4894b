// Package tesseract provides a Tesseract-backed vision.Recognizer via
// gosseract. The engine needs the tesseract and leptonica development
// libraries and is only compiled with -tags tesseract; without the tag the
// package is empty and importing it registers nothing.
package tesseract

// Name is the OCR_ENGINE value that selects this engine.
const Name = "tesseract"
