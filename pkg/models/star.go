package models

import "time"

// DimImage denormalizes an image and its first coordinate into one
// dimension row keyed by a warehouse surrogate.
type DimImage struct {
	DimImageID int64
	ImageID    int64
	Width      int
	Height     int
	Filename   string
	Latitude   float64
	Longitude  float64
}

// DimRoofType is the roof-type prediction dimension.
type DimRoofType struct {
	DimRoofTypeID  int64
	PredictionID   int64
	ClassName      string
	TimeTaken      float64
	Confidence     float64
	PredictionType string
	DateProcessed  time.Time
}

// DimSolarPanel is the solar-panel detection dimension.
type DimSolarPanel struct {
	DimSolarPanelID int64
	DetectionID     int64
	ClassName       string
	Confidence      float64
	X               float64
	Y               float64
	Width           float64
	Height          float64
	ImageData       []byte
	DateProcessed   time.Time
}

// DimDate is one calendar day, keyed by its YYYYMMDD integer.
type DimDate struct {
	DateID  int
	Date    time.Time
	Year    int
	Month   int
	Day     int
	Week    int
	Quarter int
}

// FactImage is one image-processing event. Dimension foreign keys for
// prediction and detection are nullable: an image may have neither yet.
type FactImage struct {
	FactID            int64
	DimImageID        int64
	DimRoofTypeID     *int64
	DimSolarPanelID   *int64
	DateID            int
	ImageDateUploaded time.Time
}

// FactSource is the currently-valid history state feeding one fact row:
// an image left-joined with its open prediction and detection versions,
// either of which may be absent.
type FactSource struct {
	ImageID      int64
	DateUploaded time.Time
	PredictionID *int64
	DetectionID  *int64
}

// NewDimDate derives the full date-dimension row for a calendar day.
func NewDimDate(day time.Time) DimDate {
	year, month, dom := day.Date()
	_, week := day.ISOWeek()
	return DimDate{
		DateID:  year*10000 + int(month)*100 + dom,
		Date:    day,
		Year:    year,
		Month:   int(month),
		Day:     dom,
		Week:    week,
		Quarter: (int(month)-1)/3 + 1,
	}
}

// DateRange enumerates every calendar day from startYear-01-01 through
// endYear-12-31 as date-dimension rows.
func DateRange(startYear, endYear int) []DimDate {
	var dims []DimDate
	day := time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(endYear, time.December, 31, 0, 0, 0, 0, time.UTC)
	for !day.After(end) {
		dims = append(dims, NewDimDate(day))
		day = day.AddDate(0, 0, 1)
	}
	return dims
}
