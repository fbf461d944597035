package indexer

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xivanov/dex-core/internal/storage"
)

// Checkpoint tracks the last processed block and the pools discovered up to
// it, so a resumed run keeps following them.
type Checkpoint struct {
	LastProcessedBlock uint64           `json:"last_processed_block"`
	Pools              []common.Address `json:"pools,omitempty"`
	UpdatedAt          string           `json:"updated_at"`
}

// CheckpointStore keeps the checkpoint in a JSON file. A disabled store
// loads nothing and saves nothing.
type CheckpointStore struct {
	path    string
	enabled bool
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled && path != ""}
}

func (c *CheckpointStore) Load() (Checkpoint, bool, error) {
	var cp Checkpoint
	if !c.enabled {
		return cp, false, nil
	}
	ok, err := storage.ReadJSONFile(c.path, &cp)
	return cp, ok, err
}

func (c *CheckpointStore) Save(lastProcessed uint64, pools []common.Address) error {
	if !c.enabled {
		return nil
	}
	return storage.WriteJSONFile(c.path, Checkpoint{
		LastProcessedBlock: lastProcessed,
		Pools:              pools,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	})
}
