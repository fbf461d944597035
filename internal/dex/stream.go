package dex

import (
	"encoding/json"
	"errors"

	"github.com/0xivanov/dex-core/internal/model"
)

// DecodeStats counts outcomes of a decode run.
type DecodeStats struct {
	Total   int
	Decoded int
	Skipped int
	Failed  int
}

// DecodeLine decodes one raw JSONL log line. Both results are nil when the
// log is not an event the decoder handles.
func DecodeLine(decoder Decoder, ctx DecodeContext, line []byte, stats *DecodeStats) (*model.TypedEvent, *model.DecodeError) {
	stats.Total++

	var record model.LogRecord
	if err := json.Unmarshal(line, &record); err != nil {
		stats.Failed++
		return nil, &model.DecodeError{Error: err.Error()}
	}
	if record.Topic0() == "" {
		stats.Failed++
		decodeErr := model.NewDecodeError(record, errors.New("missing topic0"))
		return nil, &decodeErr
	}
	if !decoder.CanDecode(record.Topic0()) {
		stats.Skipped++
		return nil, nil
	}

	event, err := decoder.Decode(record, ctx)
	if err != nil {
		stats.Failed++
		decodeErr := model.NewDecodeError(record, err)
		return nil, &decodeErr
	}
	stats.Decoded++
	return event, nil
}
