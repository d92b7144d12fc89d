package embedstore

import "github.com/zoobzio/capitan"

// Signals for store lifecycle events.
var (
	AddStarted       = capitan.NewSignal("embedstore.add.started", "Embedding insert initiated")
	AddCompleted     = capitan.NewSignal("embedstore.add.completed", "Embedding insert succeeded")
	AddFailed        = capitan.NewSignal("embedstore.add.failed", "Embedding insert failed")
	UpdateStarted    = capitan.NewSignal("embedstore.update.started", "Embedding update initiated")
	UpdateCompleted  = capitan.NewSignal("embedstore.update.completed", "Embedding update succeeded")
	UpdateFailed     = capitan.NewSignal("embedstore.update.failed", "Embedding update failed")
	DeleteStarted    = capitan.NewSignal("embedstore.delete.started", "Embedding deletion initiated")
	DeleteCompleted  = capitan.NewSignal("embedstore.delete.completed", "Embedding deletion succeeded")
	DeleteFailed     = capitan.NewSignal("embedstore.delete.failed", "Embedding deletion failed")
	FindStarted      = capitan.NewSignal("embedstore.find.started", "Similarity search initiated")
	FindCompleted    = capitan.NewSignal("embedstore.find.completed", "Similarity search succeeded")
	FindFailed       = capitan.NewSignal("embedstore.find.failed", "Similarity search failed")
	PersistCompleted = capitan.NewSignal("embedstore.persist.completed", "Pending writes became visible")
)

// Field keys for event extraction.
var (
	FieldID       = capitan.NewStringKey("id")
	FieldCount    = capitan.NewIntKey("count")
	FieldLimit    = capitan.NewIntKey("limit")
	FieldResults  = capitan.NewIntKey("results")
	FieldDuration = capitan.NewDurationKey("duration")
	FieldError    = capitan.NewErrorKey("error")
	FieldMinScore = capitan.NewKey[float64]("min_score", "embedstore.MinScore")
)
