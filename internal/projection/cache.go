package projection

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/bit-project/bit/pkg/model"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS docrefs (
	object_id      TEXT PRIMARY KEY,
	storage_id     TEXT NOT NULL,
	data           BLOB NOT NULL,
	last_action_id TEXT NOT NULL,
	position       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_docrefs_storage ON docrefs(storage_id);
`

// Row is one cached DocRef with its value encoded as JSON.
type Row struct {
	ObjectID     model.ObjectID
	StorageID    string
	Data         []byte
	LastActionID model.ActionID
	Position     int
}

// Cache persists DocRefs in SQLite so a reopened repository does not replay
// every document. It is never a source of truth: dropping the file only costs
// a rebuild.
type Cache struct {
	db *sql.DB
}

// OpenCache opens or creates the cache database at path. Use ":memory:" for a
// throwaway cache.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open projection cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate projection cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Put inserts or replaces row.
func (c *Cache) Put(row Row) error {
	_, err := c.db.Exec(`INSERT INTO docrefs (object_id, storage_id, data, last_action_id, position)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(object_id) DO UPDATE SET
			storage_id = excluded.storage_id,
			data = excluded.data,
			last_action_id = excluded.last_action_id,
			position = excluded.position`,
		string(row.ObjectID), row.StorageID, row.Data, string(row.LastActionID), row.Position)
	if err != nil {
		return fmt.Errorf("cache projection %s: %w", row.ObjectID, err)
	}
	return nil
}

// Get returns the cached row of id.
func (c *Cache) Get(id model.ObjectID) (Row, bool, error) {
	var row Row
	var objectID, lastID string
	err := c.db.QueryRow(`SELECT object_id, storage_id, data, last_action_id, position FROM docrefs WHERE object_id = ?`, string(id)).
		Scan(&objectID, &row.StorageID, &row.Data, &lastID, &row.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("read cached projection %s: %w", id, err)
	}
	row.ObjectID = model.ObjectID(objectID)
	row.LastActionID = model.ActionID(lastID)
	return row, true, nil
}

// Rows returns every cached row of storageID ordered by object id.
func (c *Cache) Rows(storageID string) ([]Row, error) {
	rows, err := c.db.Query(`SELECT object_id, data, last_action_id, position FROM docrefs WHERE storage_id = ? ORDER BY object_id`, storageID)
	if err != nil {
		return nil, fmt.Errorf("list cached projections: %w", err)
	}
	defer rows.Close()

	var res []Row
	for rows.Next() {
		var objectID, lastID string
		row := Row{StorageID: storageID}
		if err := rows.Scan(&objectID, &row.Data, &lastID, &row.Position); err != nil {
			return nil, fmt.Errorf("scan cached projection: %w", err)
		}
		row.ObjectID = model.ObjectID(objectID)
		row.LastActionID = model.ActionID(lastID)
		res = append(res, row)
	}
	return res, rows.Err()
}

// Delete drops the row of id.
func (c *Cache) Delete(id model.ObjectID) error {
	if _, err := c.db.Exec(`DELETE FROM docrefs WHERE object_id = ?`, string(id)); err != nil {
		return fmt.Errorf("delete cached projection %s: %w", id, err)
	}
	return nil
}

// DeleteStorage drops every row of storageID.
func (c *Cache) DeleteStorage(storageID string) error {
	if _, err := c.db.Exec(`DELETE FROM docrefs WHERE storage_id = ?`, storageID); err != nil {
		return fmt.Errorf("clear cached projections of %s: %w", storageID, err)
	}
	return nil
}
