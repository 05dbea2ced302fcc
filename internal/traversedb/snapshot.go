package traversedb

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/terrain.report/internal/gridmap"
)

// SnapshotRecord matches the traversability_snapshots table. GridBlob holds
// the gob-encoded, gzip-compressed layer data.
type SnapshotRecord struct {
	SnapshotID     string
	TakenUnixNanos int64
	FrameID        string
	Resolution     float64
	Rows           int
	Cols           int
	OriginX        float64
	OriginY        float64
	LayersJSON     string
	GridBlob       []byte
	Reason         string // 'periodic' or 'post_compute'
	Fraction       float64
}

// FractionPoint is one sample of the traversable-fraction history.
type FractionPoint struct {
	TakenUnixNanos int64
	Fraction       float64
}

// serializeLayers compresses all layer data with gob encoding and gzip.
func serializeLayers(m *gridmap.Map) ([]byte, error) {
	layers := make(map[string][]float64, len(m.Layers()))
	for _, name := range m.Layers() {
		layers[name] = m.Data(name)
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(layers); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deserializeLayers decompresses and decodes layer data from a blob.
func deserializeLayers(blob []byte) (map[string][]float64, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty grid blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("opening grid blob: %w", err)
	}
	defer gz.Close()
	var layers map[string][]float64
	if err := gob.NewDecoder(gz).Decode(&layers); err != nil {
		return nil, fmt.Errorf("decoding grid blob: %w", err)
	}
	return layers, nil
}

// NewSnapshotRecord builds a record from a map snapshot.
func NewSnapshotRecord(m *gridmap.Map, reason string, fraction float64) (*SnapshotRecord, error) {
	blob, err := serializeLayers(m)
	if err != nil {
		return nil, fmt.Errorf("serializing snapshot: %w", err)
	}
	layersJSON, err := json.Marshal(m.Layers())
	if err != nil {
		return nil, err
	}
	return &SnapshotRecord{
		SnapshotID:     uuid.NewString(),
		TakenUnixNanos: time.Now().UnixNano(),
		FrameID:        m.FrameID,
		Resolution:     m.Resolution,
		Rows:           m.Rows,
		Cols:           m.Cols,
		OriginX:        m.OriginX,
		OriginY:        m.OriginY,
		LayersJSON:     string(layersJSON),
		GridBlob:       blob,
		Reason:         reason,
		Fraction:       fraction,
	}, nil
}

// Map reconstructs the grid map stored in the record.
func (r *SnapshotRecord) Map() (*gridmap.Map, error) {
	m, err := gridmap.NewMap(r.FrameID, r.Resolution, r.Rows, r.Cols, r.OriginX, r.OriginY)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", r.SnapshotID, err)
	}
	layers, err := deserializeLayers(r.GridBlob)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", r.SnapshotID, err)
	}
	for name, data := range layers {
		if err := m.AddData(name, data); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", r.SnapshotID, err)
		}
	}
	return m, nil
}

// InsertSnapshot stores a snapshot record.
func (db *DB) InsertSnapshot(r *SnapshotRecord) error {
	_, err := db.Exec(`
		INSERT INTO traversability_snapshots (
			snapshot_id, taken_unix_nanos, frame_id, resolution,
			n_rows, n_cols, origin_x, origin_y,
			layers_json, grid_blob, reason, fraction
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SnapshotID, r.TakenUnixNanos, r.FrameID, r.Resolution,
		r.Rows, r.Cols, r.OriginX, r.OriginY,
		r.LayersJSON, r.GridBlob, r.Reason, r.Fraction,
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot %s: %w", r.SnapshotID, err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot, or nil if none exists.
func (db *DB) LatestSnapshot() (*SnapshotRecord, error) {
	row := db.QueryRow(`
		SELECT snapshot_id, taken_unix_nanos, frame_id, resolution,
		       n_rows, n_cols, origin_x, origin_y,
		       layers_json, grid_blob, reason, fraction
		FROM traversability_snapshots
		ORDER BY taken_unix_nanos DESC LIMIT 1`)
	return scanSnapshot(row)
}

// GetSnapshot returns the snapshot with the given ID, or nil if absent.
func (db *DB) GetSnapshot(id string) (*SnapshotRecord, error) {
	row := db.QueryRow(`
		SELECT snapshot_id, taken_unix_nanos, frame_id, resolution,
		       n_rows, n_cols, origin_x, origin_y,
		       layers_json, grid_blob, reason, fraction
		FROM traversability_snapshots
		WHERE snapshot_id = ?`, id)
	return scanSnapshot(row)
}

func scanSnapshot(row *sql.Row) (*SnapshotRecord, error) {
	var r SnapshotRecord
	err := row.Scan(
		&r.SnapshotID, &r.TakenUnixNanos, &r.FrameID, &r.Resolution,
		&r.Rows, &r.Cols, &r.OriginX, &r.OriginY,
		&r.LayersJSON, &r.GridBlob, &r.Reason, &r.Fraction,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning snapshot: %w", err)
	}
	return &r, nil
}

// FractionHistory returns up to limit fraction samples, oldest first.
func (db *DB) FractionHistory(limit int) ([]FractionPoint, error) {
	rows, err := db.Query(`
		SELECT taken_unix_nanos, fraction
		FROM traversability_snapshots
		ORDER BY taken_unix_nanos ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying fraction history: %w", err)
	}
	defer rows.Close()
	var points []FractionPoint
	for rows.Next() {
		var p FractionPoint
		if err := rows.Scan(&p.TakenUnixNanos, &p.Fraction); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// PruneSnapshots deletes all but the newest keep snapshots.
func (db *DB) PruneSnapshots(keep int) (int64, error) {
	res, err := db.Exec(`
		DELETE FROM traversability_snapshots
		WHERE snapshot_id NOT IN (
			SELECT snapshot_id FROM traversability_snapshots
			ORDER BY taken_unix_nanos DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return res.RowsAffected()
}
