package apperrors

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrDateNotDimensioned    = errors.New("upload date has no dim_date entry")
	ErrUnclassifiedDocument  = errors.New("document matches no known prediction type")
	ErrMissingDocumentFields = errors.New("document is missing required fields")
)
