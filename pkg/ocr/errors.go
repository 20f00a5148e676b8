package ocr

import "errors"

var (
	// ErrRecognition is returned when the OCR engine fails on an image.
	ErrRecognition = errors.New("text recognition failed")
	// ErrNotImage is returned when the payload cannot be decoded as an image.
	ErrNotImage = errors.New("payload is not a decodable image")
	// ErrImageTooLarge is returned when the declared dimensions exceed the pixel cap.
	ErrImageTooLarge = errors.New("image dimensions too large")
)
