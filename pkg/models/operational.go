package models

import "time"

// NoDetectionsClass is the sentinel class name recorded when the
// solar-panel model ran and found nothing. Its presence distinguishes
// "processed, empty" from "never processed".
const NoDetectionsClass = "No predictions"

// Image is one operational row per distinct source image filename.
type Image struct {
	ImageID      int64
	Width        int
	Height       int
	Filename     string
	ImageData    []byte
	DateUploaded time.Time
}

// Coordinate is a synthetic geolocation owned by an image. At most the
// first coordinate per image is consumed downstream.
type Coordinate struct {
	CoordinatesID int64
	ImageID       int64
	Latitude      float64
	Longitude     float64
}

// RoofTypePrediction is one classified roof-type class for an image.
type RoofTypePrediction struct {
	PredictionID   int64
	ImageID        int64
	ClassName      string
	TimeTaken      float64
	Confidence     float64
	PredictionType string
	DateProcessed  time.Time
}

// SolarPanelDetection is one detected solar panel bounding box, or the
// sentinel "No predictions" row.
type SolarPanelDetection struct {
	DetectionID   int64
	ImageID       int64
	ClassName     string
	Confidence    float64
	X             float64
	Y             float64
	Width         float64
	Height        float64
	ImageData     []byte
	DateProcessed time.Time
}

// IsSentinel reports whether the detection is the "model ran, found
// nothing" placeholder.
func (d *SolarPanelDetection) IsSentinel() bool {
	return d.ClassName == NoDetectionsClass
}
