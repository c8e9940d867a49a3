package roomstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
)

// PostgresRoomStore is the multi-process RoomStore backend: several
// discussiond processes can share one logical set of rooms, something a
// local turns.log directory cannot do. Grounded on debate/persistence.go's
// DebateRepo (plain pgx Exec/Query, no ORM) and store/db.go's
// pgxpool.Pool wiring.
type PostgresRoomStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRoomStore wraps an already-initialized pool (see
// pkg/core/store.InitDB for the DATABASE_URL -> pgxpool wiring, called from
// cmd/discussiond's buildStore) and ensures its schema exists.
func NewPostgresRoomStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresRoomStore, error) {
	s := &PostgresRoomStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresRoomStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rooms (
			room_id      TEXT PRIMARY KEY,
			room_name    TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL,
			participants JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS room_turns (
			id             BIGSERIAL PRIMARY KEY,
			room_id        TEXT NOT NULL REFERENCES rooms(room_id) ON DELETE CASCADE,
			turn_id        INT NOT NULL,
			speaker_id     TEXT NOT NULL,
			content        TEXT NOT NULL,
			timestamp_utc  TIMESTAMPTZ NOT NULL,
			svr_snapshot   JSONB,
			decision_reason TEXT
		);
		CREATE INDEX IF NOT EXISTS room_turns_room_id_idx ON room_turns (room_id, id);
	`)
	if err != nil {
		return fmt.Errorf("roomstore: ensure schema: %w", err)
	}
	return nil
}

// Save upserts roomID's manifest row.
func (s *PostgresRoomStore) Save(manifest Manifest) error {
	participantsJSON, err := json.Marshal(manifest.Participants)
	if err != nil {
		return fmt.Errorf("roomstore: marshal participants: %w", err)
	}

	ctx := context.Background()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO rooms (room_id, room_name, created_at, participants)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (room_id) DO UPDATE SET room_name = $2, participants = $4
	`, manifest.RoomID, manifest.RoomName, manifest.CreatedAt, participantsJSON)
	if err != nil {
		return fmt.Errorf("roomstore: save manifest: %w", err)
	}
	return nil
}

// SaveTurn appends one turn row for roomID.
func (s *PostgresRoomStore) SaveTurn(roomID string, turn discussion.Turn) error {
	snapshotJSON, err := json.Marshal(turn.SVRSnapshot)
	if err != nil {
		return fmt.Errorf("roomstore: marshal svr snapshot: %w", err)
	}

	ctx := context.Background()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO room_turns (room_id, turn_id, speaker_id, content, timestamp_utc, svr_snapshot, decision_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, roomID, turn.TurnID, turn.SpeakerID, turn.Content, turn.TimestampUTC, snapshotJSON, turn.CausingDecisionReason)
	if err != nil {
		return fmt.Errorf("roomstore: save turn: %w", err)
	}
	return nil
}

// Load fetches roomID's manifest row.
func (s *PostgresRoomStore) Load(roomID string) (Manifest, error) {
	ctx := context.Background()
	var m Manifest
	var participantsJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT room_id, room_name, created_at, participants FROM rooms WHERE room_id = $1
	`, roomID).Scan(&m.RoomID, &m.RoomName, &m.CreatedAt, &participantsJSON)
	if err != nil {
		return Manifest{}, ErrRoomNotFound
	}
	if err := json.Unmarshal(participantsJSON, &m.Participants); err != nil {
		return Manifest{}, fmt.Errorf("roomstore: unmarshal participants: %w", err)
	}
	return m, nil
}

// History returns roomID's turns in append order.
func (s *PostgresRoomStore) History(roomID string) ([]discussion.Turn, error) {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, `
		SELECT turn_id, speaker_id, content, timestamp_utc, svr_snapshot, decision_reason
		FROM room_turns WHERE room_id = $1 ORDER BY id ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("roomstore: query history: %w", err)
	}
	defer rows.Close()

	var turns []discussion.Turn
	for rows.Next() {
		var t discussion.Turn
		var snapshotJSON []byte
		t.RoomID = roomID
		if err := rows.Scan(&t.TurnID, &t.SpeakerID, &t.Content, &t.TimestampUTC, &snapshotJSON, &t.CausingDecisionReason); err != nil {
			return nil, fmt.Errorf("roomstore: scan turn row: %w", err)
		}
		if len(snapshotJSON) > 0 {
			if err := json.Unmarshal(snapshotJSON, &t.SVRSnapshot); err != nil {
				return nil, fmt.Errorf("roomstore: unmarshal svr snapshot: %w", err)
			}
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Delete removes roomID and its turns (ON DELETE CASCADE handles turns).
func (s *PostgresRoomStore) Delete(roomID string) error {
	ctx := context.Background()
	tag, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE room_id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("roomstore: delete room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// List enumerates every room's manifest.
func (s *PostgresRoomStore) List() ([]Manifest, error) {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, `SELECT room_id, room_name, created_at, participants FROM rooms ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("roomstore: list rooms: %w", err)
	}
	defer rows.Close()

	var manifests []Manifest
	for rows.Next() {
		var m Manifest
		var participantsJSON []byte
		if err := rows.Scan(&m.RoomID, &m.RoomName, &m.CreatedAt, &participantsJSON); err != nil {
			return nil, fmt.Errorf("roomstore: scan room row: %w", err)
		}
		if err := json.Unmarshal(participantsJSON, &m.Participants); err != nil {
			return nil, fmt.Errorf("roomstore: unmarshal participants: %w", err)
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}
