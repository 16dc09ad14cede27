package sqlstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kvlookup/annotation"
)

func createDB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	db, err := sql.Open(DriverName(), filepath.Join(dir, "lookups.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE countries (name TEXT PRIMARY KEY, code TEXT, pop INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO countries VALUES ('paris', 'FR', 2100000), ('tokyo', 'JP', 14000000), ('atlantis', NULL, NULL)`)
	require.NoError(t, err)
	return dir
}

func TestStore_Get(t *testing.T) {
	dir := createDB(t)
	ctx := context.Background()

	s, err := Open(ctx, Config{
		URL:         "${dbdirectory}/$prop{file}",
		DBDirectory: dir,
		Properties:  map[string]string{"file": "lookups.db"},
		Table:       "countries",
		KeyColumn:   "name",
		ValueColumn: "code",
	})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 3, s.Len())

	v, ok, err := s.Get(ctx, "paris")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, annotation.String("FR"), v)

	v, ok, err = s.Get(ctx, "atlantis")
	require.NoError(t, err)
	assert.True(t, ok, "a NULL column is a present key")
	assert.True(t, v.IsNull())

	_, ok, err = s.Get(ctx, "berlin")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_IntegerColumn(t *testing.T) {
	dir := createDB(t)
	ctx := context.Background()

	s, err := Open(ctx, Config{
		URL:         filepath.Join(dir, "lookups.db"),
		Table:       "countries",
		KeyColumn:   "name",
		ValueColumn: "pop",
	})
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(ctx, "tokyo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, annotation.Int(14000000), v)
}

func TestStore_ConcurrentGet(t *testing.T) {
	dir := createDB(t)
	ctx := context.Background()

	s, err := Open(ctx, Config{URL: filepath.Join(dir, "lookups.db"), Table: "countries", KeyColumn: "name", ValueColumn: "code"})
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				v, ok, err := s.Get(ctx, "paris")
				assert.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, annotation.String("FR"), v)
			}
		}()
	}
	wg.Wait()
}

func TestStore_Close(t *testing.T) {
	dir := createDB(t)
	ctx := context.Background()

	s, err := Open(ctx, Config{URL: filepath.Join(dir, "lookups.db"), Table: "countries", KeyColumn: "name"})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), ErrClosed)
	_, _, err = s.Get(ctx, "paris")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpen_Errors(t *testing.T) {
	dir := createDB(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty url", Config{Table: "countries"}},
		{"bad table", Config{URL: filepath.Join(dir, "lookups.db"), Table: "countries; DROP TABLE x"}},
		{"bad column", Config{URL: filepath.Join(dir, "lookups.db"), Table: "countries", KeyColumn: "1name"}},
		{"unknown placeholder", Config{URL: "$prop{missing}", Table: "countries"}},
		{"missing table", Config{URL: filepath.Join(dir, "lookups.db"), Table: "cities"}},
		{"unknown driver", Config{Driver: "nope", URL: "x", Table: "countries"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(ctx, tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestDriverInfo(t *testing.T) {
	assert.Contains(t, []string{"sqlite", "sqlite3"}, DriverName())
	assert.Contains(t, []string{"purego", "cgo"}, DriverType())
}
