package relay

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/Roomdrop/internal/signaling"
	_ "github.com/mattn/go-sqlite3"
)

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS rooms (
  room_id     TEXT PRIMARY KEY,
  joined      INTEGER NOT NULL DEFAULT 0,
  next_order  INTEGER NOT NULL DEFAULT 0,
  created_at  INTEGER NOT NULL
);
`,
	`
CREATE TABLE IF NOT EXISTS control_messages (
  room_id     TEXT NOT NULL REFERENCES rooms(room_id) ON DELETE CASCADE,
  order_key   INTEGER NOT NULL,
  sender      TEXT NOT NULL CHECK(sender IN ('initiator','responder')),
  kind        TEXT NOT NULL,
  body        TEXT NOT NULL,
  created_at  INTEGER NOT NULL,
  PRIMARY KEY (room_id, order_key)
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_rooms_created_at
ON rooms (created_at);
`,
}

// SQLiteStore persists rooms and control messages so a relay restart does
// not lose a handshake in progress.
type SQLiteStore struct {
	db        *sql.DB
	closeOnce sync.Once
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.enableWALMode(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		closeErr = s.db.Close()
	})
	return closeErr
}

func (s *SQLiteStore) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("set schema version %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) enableWALMode() error {
	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL;").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		return fmt.Errorf("enable WAL mode: unexpected journal mode %q", journalMode)
	}
	return nil
}

func (s *SQLiteStore) CreateRoom(roomID string) error {
	res, err := s.db.Exec(
		`INSERT INTO rooms (room_id, created_at) VALUES (?, ?)
		ON CONFLICT(room_id) DO NOTHING`,
		roomID,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create room %s: %w", roomID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create room %s: %w", roomID, err)
	}
	if n == 0 {
		return fmt.Errorf("create room %s: %w", roomID, signaling.ErrRoomExists)
	}
	return nil
}

func (s *SQLiteStore) RoomExists(roomID string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM rooms WHERE room_id = ?)`,
		roomID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check room %s: %w", roomID, err)
	}
	return exists == 1, nil
}

func (s *SQLiteStore) JoinRoom(roomID string) error {
	res, err := s.db.Exec(`UPDATE rooms SET joined = 1 WHERE room_id = ? AND joined = 0`, roomID)
	if err != nil {
		return fmt.Errorf("join room %s: %w", roomID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("join room %s: %w", roomID, err)
	}
	if n == 1 {
		return nil
	}

	exists, err := s.RoomExists(roomID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("join room %s: %w", roomID, signaling.ErrRoomNotFound)
	}
	return fmt.Errorf("join room %s: %w", roomID, signaling.ErrRoomFull)
}

func (s *SQLiteStore) LeaveRoom(roomID string) error {
	if _, err := s.db.Exec(`UPDATE rooms SET joined = 0 WHERE room_id = ?`, roomID); err != nil {
		return fmt.Errorf("leave room %s: %w", roomID, err)
	}
	return nil
}

func (s *SQLiteStore) CloseRoom(roomID string) error {
	if _, err := s.db.Exec(`DELETE FROM rooms WHERE room_id = ?`, roomID); err != nil {
		return fmt.Errorf("close room %s: %w", roomID, err)
	}
	return nil
}

func (s *SQLiteStore) Append(roomID string, msg signaling.Message) (signaling.Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return signaling.Message{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var order int64
	err = tx.QueryRow(
		`UPDATE rooms SET next_order = next_order + 1 WHERE room_id = ? RETURNING next_order`,
		roomID,
	).Scan(&order)
	if errors.Is(err, sql.ErrNoRows) {
		return signaling.Message{}, fmt.Errorf("append to %s: %w", roomID, signaling.ErrRoomNotFound)
	}
	if err != nil {
		return signaling.Message{}, fmt.Errorf("append to %s: %w", roomID, err)
	}

	msg.Order = order
	body, err := json.Marshal(msg)
	if err != nil {
		return signaling.Message{}, fmt.Errorf("encode message: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO control_messages (room_id, order_key, sender, kind, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		roomID,
		order,
		string(msg.Sender),
		string(msg.Kind),
		string(body),
		time.Now().UnixMilli(),
	); err != nil {
		return signaling.Message{}, fmt.Errorf("insert message into %s: %w", roomID, err)
	}

	if err := tx.Commit(); err != nil {
		return signaling.Message{}, fmt.Errorf("commit append: %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) Pending(roomID string) ([]signaling.Message, error) {
	exists, err := s.RoomExists(roomID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("pending for %s: %w", roomID, signaling.ErrRoomNotFound)
	}

	rows, err := s.db.Query(
		`SELECT body FROM control_messages WHERE room_id = ? ORDER BY order_key ASC`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending for %s: %w", roomID, err)
	}
	defer rows.Close()

	var out []signaling.Message
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan pending message: %w", err)
		}
		var msg signaling.Message
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			return nil, fmt.Errorf("decode pending message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending messages: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Consume(roomID string, order int64) error {
	exists, err := s.RoomExists(roomID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("consume in %s: %w", roomID, signaling.ErrRoomNotFound)
	}

	if _, err := s.db.Exec(
		`DELETE FROM control_messages WHERE room_id = ? AND order_key = ?`,
		roomID,
		order,
	); err != nil {
		return fmt.Errorf("consume %d in %s: %w", order, roomID, err)
	}
	return nil
}
