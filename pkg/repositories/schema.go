package repositories

// The four pipeline schemas, in flow order. Each stage writes exactly one
// schema and reads at most the one before it.
const (
	OperationalSchema = "satellite_image_processing"
	StageSchema       = "stage"
	HistorySchema     = "history"
	StarSchema        = "star"
)

// PipelineTables lists the copied tables parent-first so foreign keys
// always resolve downstream.
var PipelineTables = []string{
	"images",
	"coordinates",
	"predictions_roof_type",
	"detection_solar_panel",
}
