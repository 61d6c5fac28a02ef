package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/skyatlas/solarwarehouse/pkg/apperrors"
	"github.com/skyatlas/solarwarehouse/pkg/config"
	"github.com/skyatlas/solarwarehouse/pkg/models"
)

var testRegion = config.RegionConfig{
	LatMin: 45.87, LatMax: 48.58,
	LonMin: 16.16, LonMax: 22.89,
}

// mockDocumentRepo implements documents.Repository over an in-memory set.
type mockDocumentRepo struct {
	docs        []models.ResultDocument
	markPersist bool // when false, MarkProcessed is accepted but lost
	marked      []primitive.ObjectID
}

func (m *mockDocumentRepo) ListAll(_ context.Context) ([]models.ResultDocument, error) {
	out := make([]models.ResultDocument, len(m.docs))
	copy(out, m.docs)
	return out, nil
}

func (m *mockDocumentRepo) MarkProcessed(_ context.Context, id primitive.ObjectID) error {
	m.marked = append(m.marked, id)
	if m.markPersist {
		for i := range m.docs {
			if m.docs[i].ID == id {
				m.docs[i].Processed = true
			}
		}
	}
	return nil
}

func (m *mockDocumentRepo) RemoveProcessedFlags(_ context.Context) (int64, error) {
	var n int64
	for i := range m.docs {
		if m.docs[i].Processed {
			m.docs[i].Processed = false
			n++
		}
	}
	return n, nil
}

// mockOperationalRepo implements repositories.OperationalRepository over
// in-memory tables.
type mockOperationalRepo struct {
	nextID           int64
	imagesByFilename map[string]int64
	insertImageCalls int
	coordinates      map[int64][]models.Coordinate
	predictions      map[int64][]models.RoofTypePrediction
	detections       map[int64][]models.SolarPanelDetection
	resetCalls       int
}

func newMockOperationalRepo() *mockOperationalRepo {
	return &mockOperationalRepo{
		imagesByFilename: make(map[string]int64),
		coordinates:      make(map[int64][]models.Coordinate),
		predictions:      make(map[int64][]models.RoofTypePrediction),
		detections:       make(map[int64][]models.SolarPanelDetection),
	}
}

func (m *mockOperationalRepo) GetImageIDByFilename(_ context.Context, filename string) (int64, error) {
	if id, ok := m.imagesByFilename[filename]; ok {
		return id, nil
	}
	return 0, apperrors.ErrNotFound
}

func (m *mockOperationalRepo) InsertImage(_ context.Context, width, height int, filename string, _ []byte) (int64, error) {
	m.insertImageCalls++
	m.nextID++
	m.imagesByFilename[filename] = m.nextID
	return m.nextID, nil
}

func (m *mockOperationalRepo) HasCoordinate(_ context.Context, imageID int64) (bool, error) {
	return len(m.coordinates[imageID]) > 0, nil
}

func (m *mockOperationalRepo) InsertCoordinate(_ context.Context, imageID int64, latitude, longitude float64) (int64, error) {
	m.coordinates[imageID] = append(m.coordinates[imageID], models.Coordinate{
		ImageID: imageID, Latitude: latitude, Longitude: longitude,
	})
	return int64(len(m.coordinates[imageID])), nil
}

func (m *mockOperationalRepo) HasPredictions(_ context.Context, imageID int64) (bool, error) {
	return len(m.predictions[imageID]) > 0, nil
}

func (m *mockOperationalRepo) HasDetections(_ context.Context, imageID int64) (bool, error) {
	return len(m.detections[imageID]) > 0, nil
}

func (m *mockOperationalRepo) InsertRoofTypePrediction(_ context.Context, p *models.RoofTypePrediction) (int64, error) {
	m.predictions[p.ImageID] = append(m.predictions[p.ImageID], *p)
	return int64(len(m.predictions[p.ImageID])), nil
}

func (m *mockOperationalRepo) InsertSolarPanelDetection(_ context.Context, d *models.SolarPanelDetection) (int64, error) {
	m.detections[d.ImageID] = append(m.detections[d.ImageID], *d)
	return int64(len(m.detections[d.ImageID])), nil
}

func (m *mockOperationalRepo) InsertNoDetections(_ context.Context, imageID int64) error {
	m.detections[imageID] = append(m.detections[imageID], models.SolarPanelDetection{
		ImageID: imageID, ClassName: models.NoDetectionsClass,
	})
	return nil
}

func (m *mockOperationalRepo) Reset(_ context.Context) error {
	m.resetCalls++
	return nil
}

func pairedDocs() (models.ResultDocument, models.ResultDocument) {
	roof := models.ResultDocument{
		ID:             primitive.NewObjectID(),
		Filename:       "roof-type-classifier-bafod_img1.jpg",
		PredictionType: models.PredictionTypeRoofType,
		Image:          models.DocumentImage{Width: 512, Height: 512},
		Predictions: []models.DocumentPrediction{{
			Time:           0.21,
			PredictionType: models.PredictionTypeRoofType,
			Predictions: map[string]models.ClassConfidence{
				"flat":  {Confidence: 0.83},
				"gable": {Confidence: 0.17},
			},
		}},
	}
	solar := models.ResultDocument{
		ID:             primitive.NewObjectID(),
		Filename:       "solar-panels-81zxz_img1.jpg",
		PredictionType: models.PredictionTypeSolarPanel,
		Image:          models.DocumentImage{Width: 640, Height: 640},
		Predictions: []models.DocumentPrediction{{
			Class:      "solar-panel",
			Confidence: 0.91,
			X:          120, Y: 80, Width: 42, Height: 36,
			ImagePath: "/tmp/annotated/img1.png",
		}},
	}
	return roof, solar
}

func TestExtract_PairProjectedIntoOneImage(t *testing.T) {
	roof, solar := pairedDocs()
	docs := &mockDocumentRepo{docs: []models.ResultDocument{roof, solar}, markPersist: true}
	op := newMockOperationalRepo()

	svc := NewExtractService(docs, op, testRegion, false, zap.NewNop())
	require.NoError(t, svc.Run(context.Background()))

	// One image under the canonical filename, dimensions from the
	// detection document.
	require.Len(t, op.imagesByFilename, 1)
	imageID, ok := op.imagesByFilename["img1.jpg"]
	require.True(t, ok)
	assert.Equal(t, 1, op.insertImageCalls)

	// Both roof classes landed as prediction rows.
	require.Len(t, op.predictions[imageID], 2)
	classes := map[string]float64{}
	for _, p := range op.predictions[imageID] {
		classes[p.ClassName] = p.Confidence
		assert.Equal(t, models.PredictionTypeRoofType, p.PredictionType)
		assert.Equal(t, 0.21, p.TimeTaken)
	}
	assert.Equal(t, 0.83, classes["flat"])
	assert.Equal(t, 0.17, classes["gable"])

	// The detection landed with its bounding box.
	require.Len(t, op.detections[imageID], 1)
	d := op.detections[imageID][0]
	assert.Equal(t, "solar-panel", d.ClassName)
	assert.Equal(t, 0.91, d.Confidence)
	assert.Equal(t, 42.0, d.Width)

	// Both documents were marked processed.
	assert.Len(t, docs.marked, 2)
}

func TestExtract_RepeatedRunsStayIdempotent(t *testing.T) {
	roof, solar := pairedDocs()
	// markPersist false: the processed flag is lost after every run, as
	// if marking kept failing. Existence checks alone must prevent
	// duplicate rows.
	docs := &mockDocumentRepo{docs: []models.ResultDocument{roof, solar}, markPersist: false}
	op := newMockOperationalRepo()

	svc := NewExtractService(docs, op, testRegion, false, zap.NewNop())
	require.NoError(t, svc.Run(context.Background()))
	require.NoError(t, svc.Run(context.Background()))

	assert.Equal(t, 1, op.insertImageCalls)
	imageID := op.imagesByFilename["img1.jpg"]
	assert.Len(t, op.predictions[imageID], 2)
	assert.Len(t, op.detections[imageID], 1)
	assert.Len(t, op.coordinates[imageID], 1)
}

func TestExtract_ProcessedDocumentsSkipped(t *testing.T) {
	roof, solar := pairedDocs()
	roof.Processed = true
	solar.Processed = true
	docs := &mockDocumentRepo{docs: []models.ResultDocument{roof, solar}, markPersist: true}
	op := newMockOperationalRepo()

	svc := NewExtractService(docs, op, testRegion, false, zap.NewNop())
	require.NoError(t, svc.Run(context.Background()))

	// The image row is still ensured, but nothing is re-recorded or
	// re-marked.
	assert.Empty(t, docs.marked)
	imageID := op.imagesByFilename["img1.jpg"]
	assert.Empty(t, op.predictions[imageID])
	assert.Empty(t, op.detections[imageID])
}

func TestExtract_EmptyDetectionsRecordSentinel(t *testing.T) {
	solar := models.ResultDocument{
		ID:             primitive.NewObjectID(),
		Filename:       "solar-panels-81zxz_img7.jpg",
		PredictionType: models.PredictionTypeSolarPanel,
		Image:          models.DocumentImage{Width: 640, Height: 640},
	}
	docs := &mockDocumentRepo{docs: []models.ResultDocument{solar}, markPersist: true}
	op := newMockOperationalRepo()

	svc := NewExtractService(docs, op, testRegion, false, zap.NewNop())
	require.NoError(t, svc.Run(context.Background()))

	imageID := op.imagesByFilename["img7.jpg"]
	require.Len(t, op.detections[imageID], 1)
	assert.True(t, op.detections[imageID][0].IsSentinel())
	assert.Len(t, docs.marked, 1)
}

func TestExtract_UnclassifiedDocumentSkipped(t *testing.T) {
	doc := models.ResultDocument{
		ID:             primitive.NewObjectID(),
		Filename:       "mystery-model_img1.jpg",
		PredictionType: "mystery-model",
	}
	docs := &mockDocumentRepo{docs: []models.ResultDocument{doc}, markPersist: true}
	op := newMockOperationalRepo()

	svc := NewExtractService(docs, op, testRegion, false, zap.NewNop())
	require.NoError(t, svc.Run(context.Background()))

	assert.Empty(t, op.imagesByFilename)
	assert.Empty(t, docs.marked)
}

func TestExtract_CoordinateWithinRegion(t *testing.T) {
	roof, solar := pairedDocs()
	docs := &mockDocumentRepo{docs: []models.ResultDocument{roof, solar}, markPersist: true}
	op := newMockOperationalRepo()

	svc := NewExtractService(docs, op, testRegion, false, zap.NewNop())
	require.NoError(t, svc.Run(context.Background()))

	imageID := op.imagesByFilename["img1.jpg"]
	require.Len(t, op.coordinates[imageID], 1)
	c := op.coordinates[imageID][0]
	assert.GreaterOrEqual(t, c.Latitude, testRegion.LatMin)
	assert.Less(t, c.Latitude, testRegion.LatMax)
	assert.GreaterOrEqual(t, c.Longitude, testRegion.LonMin)
	assert.Less(t, c.Longitude, testRegion.LonMax)
}

func TestExtract_DebugResetClearsStateFirst(t *testing.T) {
	roof, solar := pairedDocs()
	roof.Processed = true
	docs := &mockDocumentRepo{docs: []models.ResultDocument{roof, solar}, markPersist: true}
	op := newMockOperationalRepo()

	svc := NewExtractService(docs, op, testRegion, true, zap.NewNop())
	require.NoError(t, svc.Run(context.Background()))

	assert.Equal(t, 1, op.resetCalls)
	// The previously processed roof document was reprocessed.
	assert.Len(t, docs.marked, 2)
}
