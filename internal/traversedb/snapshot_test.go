package traversedb

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/terrain.report/internal/gridmap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testSnapshotMap(t *testing.T) *gridmap.Map {
	t.Helper()
	m, err := gridmap.NewMap("map", 0.5, 4, 4, 1.0, -2.0)
	require.NoError(t, err)
	m.Add(gridmap.LayerElevation, 0.25)
	m.Add(gridmap.LayerTraversability, 1.0)
	m.SetAt(gridmap.LayerTraversability, gridmap.Index{Row: 2, Col: 3}, 0)
	m.SetAt(gridmap.LayerTraversability, gridmap.Index{Row: 0, Col: 0}, math.NaN())
	return m
}

func TestMigrateUpFreshDatabase(t *testing.T) {
	db := openTestDB(t)
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)
	orig := testSnapshotMap(t)

	rec, err := NewSnapshotRecord(orig, "post_compute", 0.875)
	require.NoError(t, err)
	require.NoError(t, db.InsertSnapshot(rec))

	got, err := db.GetSnapshot(rec.SnapshotID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "post_compute", got.Reason)
	assert.Equal(t, 0.875, got.Fraction)

	restored, err := got.Map()
	require.NoError(t, err)
	require.True(t, orig.SameGeometry(restored))
	assert.Equal(t, "map", restored.FrameID)

	for row := 0; row < orig.Rows; row++ {
		for col := 0; col < orig.Cols; col++ {
			idx := gridmap.Index{Row: row, Col: col}
			want := orig.At(gridmap.LayerTraversability, idx)
			have := restored.At(gridmap.LayerTraversability, idx)
			if math.IsNaN(want) {
				assert.True(t, math.IsNaN(have), "cell %v should stay no-data", idx)
			} else {
				assert.Equal(t, want, have, "cell %v", idx)
			}
		}
	}
}

func TestLatestSnapshotOrdering(t *testing.T) {
	db := openTestDB(t)
	m := testSnapshotMap(t)

	first, err := NewSnapshotRecord(m, "periodic", 0.5)
	require.NoError(t, err)
	second, err := NewSnapshotRecord(m, "periodic", 0.75)
	require.NoError(t, err)
	second.TakenUnixNanos = first.TakenUnixNanos + 1

	require.NoError(t, db.InsertSnapshot(first))
	require.NoError(t, db.InsertSnapshot(second))

	latest, err := db.LatestSnapshot()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.SnapshotID, latest.SnapshotID)
}

func TestLatestSnapshotEmpty(t *testing.T) {
	db := openTestDB(t)
	latest, err := db.LatestSnapshot()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestFractionHistoryAndPrune(t *testing.T) {
	db := openTestDB(t)
	m := testSnapshotMap(t)
	base := int64(1000)
	for i := 0; i < 5; i++ {
		rec, err := NewSnapshotRecord(m, "periodic", float64(i)/10)
		require.NoError(t, err)
		rec.TakenUnixNanos = base + int64(i)
		require.NoError(t, db.InsertSnapshot(rec))
	}

	points, err := db.FractionHistory(10)
	require.NoError(t, err)
	require.Len(t, points, 5)
	assert.Equal(t, 0.0, points[0].Fraction)
	assert.Equal(t, 0.4, points[4].Fraction)

	pruned, err := db.PruneSnapshots(2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pruned)

	points, err = db.FractionHistory(10)
	require.NoError(t, err)
	assert.Len(t, points, 2)
}
