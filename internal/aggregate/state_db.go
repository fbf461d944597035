package aggregate

import "context"

// StateTable is the persistence a DBStateStore needs; postgres.Store
// provides it.
type StateTable interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, value uint64) error
}

// DBStateStore keeps the cursor as a named row of the indexer_state table.
type DBStateStore struct {
	Table StateTable
	Name  string
}

func (s *DBStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Table == nil {
		return 0, false, nil
	}
	return s.Table.LoadState(ctx, s.Name)
}

func (s *DBStateStore) Save(ctx context.Context, ts uint64) error {
	if s == nil || s.Table == nil {
		return nil
	}
	return s.Table.SaveState(ctx, s.Name, ts)
}
