package document

import "github.com/zoobzio/capitan"

// Signals for document loading.
var (
	LoadCompleted = capitan.NewSignal("document.load.completed", "Document loaded and parsed")
	LoadFailed    = capitan.NewSignal("document.load.failed", "Document load failed")
)

// Field keys for event extraction.
var (
	FieldLocation = capitan.NewStringKey("location")
	FieldType     = capitan.NewStringKey("document_type")
	FieldSize     = capitan.NewIntKey("size")
	FieldDuration = capitan.NewDurationKey("duration")
	FieldError    = capitan.NewErrorKey("error")
)
