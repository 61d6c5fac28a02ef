package models

import (
	"path"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Prediction type discriminators as emitted by the vision models.
const (
	PredictionTypeRoofType   = "roof-type-classifier-bafod"
	PredictionTypeSolarPanel = "solar-panels-81zxz"
)

// ResultDocument is one vision-model result as stored in the document
// store. Two documents describe the same physical image: one roof-type
// classification and one solar-panel detection, paired by canonical
// filename. Optional nested fields default to zero values; the pipeline
// never depends on more of the document shape than what is tagged here.
type ResultDocument struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty"`
	Filename       string               `bson:"filename"`
	PredictionType string               `bson:"prediction_type"`
	Processed      bool                 `bson:"processed,omitempty"`
	Image          DocumentImage        `bson:"image,omitempty"`
	Predictions    []DocumentPrediction `bson:"predictions,omitempty"`
}

// DocumentImage carries the source image dimensions.
type DocumentImage struct {
	Width  int `bson:"width,omitempty"`
	Height int `bson:"height,omitempty"`
}

// DocumentPrediction is one entry of a document's predictions array. The
// two model families fill different subsets: solar-panel detections carry
// class/confidence/bounding box, roof-type classifications carry the
// elapsed time and a per-class confidence map.
type DocumentPrediction struct {
	Class          string                     `bson:"class,omitempty"`
	Confidence     float64                    `bson:"confidence,omitempty"`
	X              float64                    `bson:"x,omitempty"`
	Y              float64                    `bson:"y,omitempty"`
	Width          float64                    `bson:"width,omitempty"`
	Height         float64                    `bson:"height,omitempty"`
	ImagePath      string                     `bson:"image_path,omitempty"`
	Time           float64                    `bson:"time,omitempty"`
	PredictionType string                     `bson:"prediction_type,omitempty"`
	Predictions    map[string]ClassConfidence `bson:"predictions,omitempty"`
}

// ClassConfidence is one class entry of a roof-type confidence map.
type ClassConfidence struct {
	Confidence float64 `bson:"confidence"`
}

// IsRoofType reports whether the document came from the roof-type model.
func (d *ResultDocument) IsRoofType() bool {
	return d.PredictionType == PredictionTypeRoofType
}

// IsSolarPanel reports whether the document came from the solar-panel model.
func (d *ResultDocument) IsSolarPanel() bool {
	return d.PredictionType == PredictionTypeSolarPanel
}

// CanonicalFilename strips the document's own prediction-type tag and the
// separating underscore from its stored filename, yielding the name both
// pair members share: "solar-panels-81zxz_img1.jpg" -> "img1.jpg".
func (d *ResultDocument) CanonicalFilename() string {
	name := strings.ReplaceAll(d.Filename, d.PredictionType, "")
	return strings.TrimLeft(name, "_")
}

// AnnotatedImageName returns the basename of a detection's annotated
// image path, or "unknown_image" when the model did not produce one.
func (p *DocumentPrediction) AnnotatedImageName() string {
	if p.ImagePath == "" {
		return "unknown_image"
	}
	return path.Base(p.ImagePath)
}
