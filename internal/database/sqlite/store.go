// Package sqlite implements punishment storage on an embedded SQLite
// database. It suits single-node deployments that need durability without
// running a separate database server.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/database/types/enum"
	"github.com/wardenlabs/warden/pkg/utils"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const defaultPoolSize = 4

// Timestamps are stored as integer Unix milliseconds in UTC. NULL marks
// the absence of expires_at and deactivated_at.
const schema = `
CREATE TABLE IF NOT EXISTS punishments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subject_id TEXT NOT NULL,
	subject_name TEXT NOT NULL,
	subject_name_fold TEXT NOT NULL,
	type TEXT NOT NULL,
	reason TEXT NOT NULL,
	actor TEXT NOT NULL,
	issued_at INTEGER NOT NULL,
	expires_at INTEGER,
	active INTEGER NOT NULL,
	ip_address TEXT,
	deactivation_reason TEXT NOT NULL,
	deactivation_source TEXT,
	deactivated_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_punishments_subject
	ON punishments (subject_id, type, active);

CREATE INDEX IF NOT EXISTS idx_punishments_name_fold
	ON punishments (subject_name_fold);

CREATE INDEX IF NOT EXISTS idx_punishments_ip
	ON punishments (ip_address) WHERE ip_address IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_punishments_expiry
	ON punishments (expires_at) WHERE active = 1 AND expires_at IS NOT NULL;
`

const selectColumns = `id, subject_id, subject_name, subject_name_fold, type, reason, actor,
	issued_at, expires_at, active, ip_address, deactivation_reason, deactivation_source, deactivated_at`

// Store persists punishments in a SQLite database file.
type Store struct {
	pool   *sqlitex.Pool
	logger *zap.Logger
}

// New opens (creating if needed) the database at path and prepares the
// schema. poolSize caps concurrent connections; values below one fall back
// to the default.
func New(ctx context.Context, path string, poolSize int, logger *zap.Logger) (*Store, error) {
	if poolSize < 1 {
		poolSize = defaultPoolSize
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags:    sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenWAL,
		PoolSize: poolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &Store{
		pool:   pool,
		logger: logger.Named("db_sqlite"),
	}

	if err := store.bootstrap(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to prepare schema: %w", err)
	}

	store.logger.Debug("Opened SQLite store", zap.String("path", path), zap.Int("poolSize", poolSize))

	return store, nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.ExecuteScript(conn, schema, nil)
}

// conn checks out a pooled connection. The explicit guard keeps failed
// contexts from racing a free connection inside the pool's select.
func (s *Store) conn(ctx context.Context) (*sqlite.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.pool.Take(ctx)
}

// Save inserts the record and writes the assigned ID back into it.
func (s *Store) Save(ctx context.Context, record *types.Punishment) (int64, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return 0, types.NewPersistenceError("save", err)
	}
	defer s.pool.Put(conn)

	record.SubjectNameFold = utils.NormalizeName(record.SubjectName)

	err = sqlitex.Execute(conn, `
		INSERT INTO punishments (subject_id, subject_name, subject_name_fold, type, reason, actor,
			issued_at, expires_at, active, ip_address, deactivation_reason, deactivation_source, deactivated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.SubjectID.String(),
				record.SubjectName,
				record.SubjectNameFold,
				record.Type.String(),
				record.Reason,
				record.Actor,
				record.IssuedAt.UTC().UnixMilli(),
				timeArg(record.ExpiresAt),
				boolArg(record.Active),
				stringArg(record.IPAddress),
				record.DeactivationReason.String(),
				stringArg(record.DeactivationSource),
				timeArg(record.DeactivatedAt),
			},
		})
	if err != nil {
		return 0, types.NewPersistenceError("save", err)
	}

	record.ID = conn.LastInsertRowID()

	return record.ID, nil
}

// ListBySubjectID returns the subject's full history, newest first.
func (s *Store) ListBySubjectID(ctx context.Context, subjectID uuid.UUID) ([]*types.Punishment, error) {
	return s.list(ctx, "list_by_subject_id",
		`SELECT `+selectColumns+` FROM punishments WHERE subject_id = ? ORDER BY issued_at DESC, id DESC`,
		subjectID.String())
}

// ListBySubjectName returns the history for every subject whose folded
// name matches the folded query, newest first.
func (s *Store) ListBySubjectName(ctx context.Context, name string) ([]*types.Punishment, error) {
	return s.list(ctx, "list_by_subject_name",
		`SELECT `+selectColumns+` FROM punishments WHERE subject_name_fold = ? ORDER BY issued_at DESC, id DESC`,
		utils.NormalizeName(name))
}

// FindActive returns the newest active record of the exact type, expiring
// it first when its term has lapsed. Absence is (nil, nil).
func (s *Store) FindActive(ctx context.Context, subjectID uuid.UUID, punishmentType enum.PunishmentType) (*types.Punishment, error) {
	return s.findActive(ctx, "find_active",
		`SELECT `+selectColumns+` FROM punishments
		WHERE subject_id = ? AND type = ? AND active = 1
		ORDER BY issued_at DESC, id DESC LIMIT 1`,
		subjectID.String(), punishmentType.String())
}

// FindActiveIPBan returns the newest active IP ban covering the address.
func (s *Store) FindActiveIPBan(ctx context.Context, address string) (*types.Punishment, error) {
	return s.findActive(ctx, "find_active_ip_ban",
		`SELECT `+selectColumns+` FROM punishments
		WHERE type = ? AND ip_address = ? AND active = 1
		ORDER BY issued_at DESC, id DESC LIMIT 1`,
		enum.PunishmentTypeIPBan.String(), address)
}

// ListActiveIPBans returns every in-force IP ban for the address, newest
// first. Lapsed records encountered during the scan are expired.
func (s *Store) ListActiveIPBans(ctx context.Context, address string) ([]*types.Punishment, error) {
	const op = "list_active_ip_bans"

	conn, err := s.conn(ctx)
	if err != nil {
		return nil, types.NewPersistenceError(op, err)
	}
	defer s.pool.Put(conn)

	records, err := queryRecords(conn,
		`SELECT `+selectColumns+` FROM punishments
		WHERE type = ? AND ip_address = ? AND active = 1
		ORDER BY issued_at DESC, id DESC`,
		enum.PunishmentTypeIPBan.String(), address)
	if err != nil {
		return nil, types.NewPersistenceError(op, err)
	}

	inForce := make([]*types.Punishment, 0, len(records))

	for _, record := range records {
		if record.IsExpired() {
			if err := expireRecord(conn, record.ID); err != nil {
				return nil, types.NewPersistenceError(op, err)
			}

			continue
		}

		inForce = append(inForce, record)
	}

	return inForce, nil
}

// Deactivate marks the record inactive. Missing or already inactive
// records are left untouched.
func (s *Store) Deactivate(ctx context.Context, id int64, reason enum.DeactivationReason, source string) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return types.NewPersistenceError("deactivate", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		UPDATE punishments
		SET active = 0, deactivation_reason = ?, deactivation_source = ?, deactivated_at = ?
		WHERE id = ? AND active = 1`,
		&sqlitex.ExecOptions{
			Args: []any{reason.String(), stringArg(source), time.Now().UTC().UnixMilli(), id},
		})
	if err != nil {
		return types.NewPersistenceError("deactivate", err)
	}

	return nil
}

// ExpireDue deactivates every active record whose expiry is at or before
// now and reports how many were affected.
func (s *Store) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return 0, types.NewPersistenceError("expire_due", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		UPDATE punishments
		SET active = 0, deactivation_reason = ?, deactivation_source = NULL, deactivated_at = ?
		WHERE active = 1 AND expires_at IS NOT NULL AND expires_at <= ?`,
		&sqlitex.ExecOptions{
			Args: []any{
				enum.DeactivationReasonExpired.String(),
				time.Now().UTC().UnixMilli(),
				now.UTC().UnixMilli(),
			},
		})
	if err != nil {
		return 0, types.NewPersistenceError("expire_due", err)
	}

	return int64(conn.Changes()), nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.logger.Debug("Closing SQLite store")
	return s.pool.Close()
}

func (s *Store) list(ctx context.Context, op, query string, args ...any) ([]*types.Punishment, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, types.NewPersistenceError(op, err)
	}
	defer s.pool.Put(conn)

	records, err := queryRecords(conn, query, args...)
	if err != nil {
		return nil, types.NewPersistenceError(op, err)
	}

	return records, nil
}

func (s *Store) findActive(ctx context.Context, op, query string, args ...any) (*types.Punishment, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, types.NewPersistenceError(op, err)
	}
	defer s.pool.Put(conn)

	records, err := queryRecords(conn, query, args...)
	if err != nil {
		return nil, types.NewPersistenceError(op, err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	record := records[0]
	if record.IsExpired() {
		if err := expireRecord(conn, record.ID); err != nil {
			return nil, types.NewPersistenceError(op, err)
		}

		return nil, nil
	}

	return record, nil
}

func queryRecords(conn *sqlite.Conn, query string, args ...any) ([]*types.Punishment, error) {
	var (
		records []*types.Punishment
		scanErr error
	)

	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record, err := scanRecord(stmt)
			if err != nil {
				scanErr = err
				return err
			}

			records = append(records, record)

			return nil
		},
	})
	if err != nil {
		if scanErr != nil {
			return nil, scanErr
		}

		return nil, err
	}

	return records, nil
}

func expireRecord(conn *sqlite.Conn, id int64) error {
	return sqlitex.Execute(conn, `
		UPDATE punishments
		SET active = 0, deactivation_reason = ?, deactivation_source = NULL, deactivated_at = ?
		WHERE id = ? AND active = 1`,
		&sqlitex.ExecOptions{
			Args: []any{enum.DeactivationReasonExpired.String(), time.Now().UTC().UnixMilli(), id},
		})
}

func scanRecord(stmt *sqlite.Stmt) (*types.Punishment, error) {
	subjectID, err := uuid.Parse(stmt.ColumnText(1))
	if err != nil {
		return nil, fmt.Errorf("failed to parse subject ID: %w", err)
	}

	punishmentType, err := enum.ParsePunishmentType(stmt.ColumnText(4))
	if err != nil {
		return nil, err
	}

	deactivationReason, err := enum.ParseDeactivationReason(stmt.ColumnText(11))
	if err != nil {
		return nil, err
	}

	return &types.Punishment{
		ID:                 stmt.ColumnInt64(0),
		SubjectID:          subjectID,
		SubjectName:        stmt.ColumnText(2),
		SubjectNameFold:    stmt.ColumnText(3),
		Type:               punishmentType,
		Reason:             stmt.ColumnText(5),
		Actor:              stmt.ColumnText(6),
		IssuedAt:           time.UnixMilli(stmt.ColumnInt64(7)).UTC(),
		ExpiresAt:          timeColumn(stmt, 8),
		Active:             stmt.ColumnInt64(9) != 0,
		IPAddress:          stmt.ColumnText(10),
		DeactivationReason: deactivationReason,
		DeactivationSource: stmt.ColumnText(12),
		DeactivatedAt:      timeColumn(stmt, 13),
	}, nil
}

func timeColumn(stmt *sqlite.Stmt, col int) *time.Time {
	if stmt.ColumnType(col) == sqlite.TypeNull {
		return nil
	}

	at := time.UnixMilli(stmt.ColumnInt64(col)).UTC()

	return &at
}

func timeArg(at *time.Time) any {
	if at == nil {
		return nil
	}

	return at.UTC().UnixMilli()
}

func stringArg(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func boolArg(b bool) any {
	if b {
		return int64(1)
	}

	return int64(0)
}
