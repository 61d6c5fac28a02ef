// Package documents provides access to the vision-model result store and
// the pairing logic that reunites the two documents describing one image.
package documents

import "github.com/skyatlas/solarwarehouse/pkg/models"

// FindPair scans docs for the counterpart of doc: a different document
// whose canonical filename matches. Returns nil when the pair has not
// arrived yet. The scan is linear over the store; acceptable for batch
// runs, not meant for interactive lookups.
func FindPair(docs []models.ResultDocument, doc *models.ResultDocument) *models.ResultDocument {
	canonical := doc.CanonicalFilename()
	for i := range docs {
		candidate := &docs[i]
		if candidate.ID == doc.ID {
			continue
		}
		if candidate.CanonicalFilename() == canonical {
			return candidate
		}
	}
	return nil
}

// Classify sorts a document and its (possibly absent) pair into the
// solar-panel detection and roof-type classification roles. Either
// result may be nil; a document with an unknown prediction type fills
// neither role.
func Classify(doc, pair *models.ResultDocument) (solar, roof *models.ResultDocument) {
	for _, d := range []*models.ResultDocument{doc, pair} {
		if d == nil {
			continue
		}
		switch {
		case d.IsSolarPanel():
			solar = d
		case d.IsRoofType():
			roof = d
		}
	}
	return solar, roof
}
