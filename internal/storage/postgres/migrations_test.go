package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsOrdered(t *testing.T) {
	require.NotEmpty(t, migrations)
	for i, migration := range migrations {
		assert.Equal(t, i+1, migration.Version)
		assert.NotEmpty(t, migration.Up)
		assert.NotEmpty(t, migration.Down)
	}
}

func TestPending(t *testing.T) {
	assert.Len(t, pending(0), len(migrations))
	assert.Empty(t, pending(len(migrations)))

	got := pending(1)
	require.Len(t, got, len(migrations)-1)
	assert.Equal(t, 2, got[0].Version)
}

func TestRollbacks(t *testing.T) {
	got := rollbacks(2, 1)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Version)

	got = rollbacks(2, 5)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[1].Version)

	assert.Empty(t, rollbacks(0, 3))
}
