// Package storage holds file-backed sinks for log records and typed events.
package storage

import "github.com/0xivanov/dex-core/internal/model"

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}
