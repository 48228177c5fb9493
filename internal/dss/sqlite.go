package dss

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"lrsd/internal/lrserr"
)

// SQLiteStore is the default Store, a pure-Go SQLite database holding the
// device and medium tables the scheduler arbitrates over.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a SQLite-backed store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open dss database %q: %w", path, err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS device (
			id TEXT NOT NULL PRIMARY KEY,
			family TEXT NOT NULL,
			serial TEXT NOT NULL,
			model TEXT NOT NULL,
			host TEXT NOT NULL,
			adm_status TEXT NOT NULL DEFAULT 'unlocked',
			lock_owner TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS medium (
			id TEXT NOT NULL PRIMARY KEY,
			family TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			fs_type TEXT NOT NULL DEFAULT '',
			fs_label TEXT NOT NULL DEFAULT '',
			fs_status TEXT NOT NULL DEFAULT 'blank',
			addr_type TEXT NOT NULL DEFAULT '',
			adm_status TEXT NOT NULL DEFAULT 'unlocked',
			phys_free INTEGER NOT NULL DEFAULT 0,
			phys_used INTEGER NOT NULL DEFAULT 0,
			logic_used INTEGER NOT NULL DEFAULT 0,
			num_objects INTEGER NOT NULL DEFAULT 0,
			lock_owner TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS object_medium (
			oid TEXT NOT NULL DEFAULT '',
			uuid TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 0,
			medium_family TEXT NOT NULL,
			medium_id TEXT NOT NULL,
			PRIMARY KEY (oid, uuid, version)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate dss schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetDevices(ctx context.Context, f DeviceFilter) ([]DeviceInfo, error) {
	query := `SELECT id, family, serial, model, host, adm_status, lock_owner FROM device WHERE 1=1`
	var args []any
	if f.Host != "" {
		query += " AND host = ?"
		args = append(args, f.Host)
	}
	if f.Family != "" {
		query += " AND family = ?"
		args = append(args, f.Family)
	}
	if f.AdminStatus != "" {
		query += " AND adm_status = ?"
		args = append(args, string(f.AdminStatus))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeviceInfo
	for rows.Next() {
		var d DeviceInfo
		var adm string
		if err := rows.Scan(&d.ID, &d.Family, &d.Serial, &d.Model, &d.Host, &adm, &d.LockOwner); err != nil {
			return nil, err
		}
		d.AdminStatus = AdminStatus(adm)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetDevice(ctx context.Context, id ByID) (*DeviceInfo, error) {
	var d DeviceInfo
	var adm string
	row := s.db.QueryRowContext(ctx,
		`SELECT id, family, serial, model, host, adm_status, lock_owner FROM device WHERE id = ?`, id.ID)
	if err := row.Scan(&d.ID, &d.Family, &d.Serial, &d.Model, &d.Host, &adm, &d.LockOwner); err != nil {
		if err == sql.ErrNoRows {
			return nil, lrserr.ErrNotFound
		}
		return nil, err
	}
	d.AdminStatus = AdminStatus(adm)
	return &d, nil
}

func (s *SQLiteStore) GetMedia(ctx context.Context, f MediaFilter) ([]MediaInfo, error) {
	query := `SELECT id, family, model, tags, fs_type, fs_label, fs_status, addr_type, adm_status,
		phys_free, phys_used, logic_used, num_objects, lock_owner FROM medium WHERE phys_free >= ?`
	args := []any{f.MinFree}
	if f.Family != "" {
		query += " AND family = ?"
		args = append(args, f.Family)
	}
	if f.AdminStatus != "" {
		query += " AND adm_status = ?"
		args = append(args, string(f.AdminStatus))
	}
	for _, st := range f.ExcludeFSState {
		query += " AND fs_status != ?"
		args = append(args, string(st))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MediaInfo
	for rows.Next() {
		m, err := scanMedium(rows)
		if err != nil {
			return nil, err
		}
		if !hasAllTags(m.Tags, f.Tags) {
			continue
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMedium(row scanner) (*MediaInfo, error) {
	var m MediaInfo
	var tags, fsStatus, adm string
	if err := row.Scan(&m.ID, &m.Family, &m.Model, &tags, &m.FSType, &m.FSLabel, &fsStatus, &m.AddrType,
		&adm, &m.Stats.PhysSpcFree, &m.Stats.PhysSpcUsed, &m.Stats.LogicSpcUsed, &m.Stats.NumObjects,
		&m.LockOwner); err != nil {
		return nil, err
	}
	m.FSStatus = FSStatus(fsStatus)
	m.AdminStatus = AdminStatus(adm)
	if tags != "" {
		m.Tags = strings.Split(tags, ",")
	}
	return &m, nil
}

func (s *SQLiteStore) GetMedium(ctx context.Context, id ByID) (*MediaInfo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, family, model, tags, fs_type, fs_label, fs_status, addr_type, adm_status,
			phys_free, phys_used, logic_used, num_objects, lock_owner FROM medium WHERE id = ?`, id.ID)
	m, err := scanMedium(row)
	if err == sql.ErrNoRows {
		return nil, lrserr.ErrNotFound
	}
	return m, err
}

// lockRow atomically claims table.lock_owner for owner, succeeding only if
// the row is currently unowned or already owned by owner (idempotent
// re-lock, matching the DSS convention that a lock call from the current
// holder is a no-op success).
func (s *SQLiteStore) lockRow(ctx context.Context, table, id, owner string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET lock_owner = ? WHERE id = ? AND (lock_owner = '' OR lock_owner = ?)`, table),
		owner, id, owner)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.rowExists(ctx, table, id); err != nil {
			return err
		}
		return lrserr.ErrAgain
	}
	return nil
}

func (s *SQLiteStore) unlockRow(ctx context.Context, table, id, owner string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET lock_owner = '' WHERE id = ? AND lock_owner = ?`, table), id, owner)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.rowExists(ctx, table, id); err != nil {
			return err
		}
		return lrserr.ErrInvalid
	}
	return nil
}

func (s *SQLiteStore) rowExists(ctx context.Context, table, id string) (bool, error) {
	var x int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, table), id).Scan(&x)
	if err == sql.ErrNoRows {
		return false, lrserr.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) LockDevice(ctx context.Context, id ByID, owner string) error {
	return s.lockRow(ctx, "device", id.ID, owner)
}

func (s *SQLiteStore) UnlockDevice(ctx context.Context, id ByID, owner string) error {
	return s.unlockRow(ctx, "device", id.ID, owner)
}

func (s *SQLiteStore) LockMedia(ctx context.Context, id ByID, owner string) error {
	return s.lockRow(ctx, "medium", id.ID, owner)
}

func (s *SQLiteStore) UnlockMedia(ctx context.Context, id ByID, owner string) error {
	return s.unlockRow(ctx, "medium", id.ID, owner)
}

func (s *SQLiteStore) UpdateMedia(ctx context.Context, m MediaInfo) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE medium SET model=?, tags=?, fs_type=?, fs_label=?, fs_status=?, addr_type=?, adm_status=?,
			phys_free=?, phys_used=?, logic_used=?, num_objects=? WHERE id = ?`,
		m.Model, strings.Join(m.Tags, ","), m.FSType, m.FSLabel, string(m.FSStatus), m.AddrType,
		string(m.AdminStatus), m.Stats.PhysSpcFree, m.Stats.PhysSpcUsed, m.Stats.LogicSpcUsed,
		m.Stats.NumObjects, m.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return lrserr.ErrNotFound
	}
	return nil
}

// FindObjectMedium resolves oid/uuid/version to the medium holding it.
// version == 0 means the latest version of the resolved uuid, not "every
// version": ambiguity is an oid matching more than one distinct uuid, never
// an oid/uuid pair with several versions on file.
func (s *SQLiteStore) FindObjectMedium(ctx context.Context, oid, uuid string, version int) (ByID, error) {
	query := `SELECT uuid, medium_family, medium_id FROM object_medium WHERE 1=1`
	var args []any
	if oid != "" {
		query += " AND oid = ?"
		args = append(args, oid)
	}
	if uuid != "" {
		query += " AND uuid = ?"
		args = append(args, uuid)
	}
	if version != 0 {
		query += " AND version = ?"
		args = append(args, version)
	}
	query += " ORDER BY uuid, version DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ByID{}, err
	}
	defer rows.Close()

	// Rows come back ordered by uuid then version descending, so the first
	// row seen for a given uuid already carries its highest matching
	// version.
	var latest ByID
	seenUUIDs := map[string]bool{}
	for rows.Next() {
		var rowUUID string
		var id ByID
		if err := rows.Scan(&rowUUID, &id.Family, &id.ID); err != nil {
			return ByID{}, err
		}
		if !seenUUIDs[rowUUID] {
			seenUUIDs[rowUUID] = true
			latest = id
		}
	}
	if err := rows.Err(); err != nil {
		return ByID{}, err
	}
	switch len(seenUUIDs) {
	case 0:
		return ByID{}, lrserr.ErrNotFound
	case 1:
		return latest, nil
	default:
		return ByID{}, lrserr.ErrAmbiguous
	}
}

// RegisterObject records which medium holds a given object version, called
// by the object-table layer once a PUT has completed.
func (s *SQLiteStore) RegisterObject(ctx context.Context, oid, uuid string, version int, medium ByID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO object_medium (oid, uuid, version, medium_family, medium_id) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(oid, uuid, version) DO UPDATE SET medium_family=excluded.medium_family, medium_id=excluded.medium_id`,
		oid, uuid, version, medium.Family, medium.ID)
	return err
}
