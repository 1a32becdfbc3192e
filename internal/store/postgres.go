package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studysync/room-service/internal/domain"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgxpool ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate приводит схему к нужному виду; безопасно вызывать при каждом старте.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rooms (
			id               uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			name             text NOT NULL,
			description      text NOT NULL DEFAULT '',
			owner_id         text NOT NULL,
			is_active        boolean NOT NULL DEFAULT true,
			max_participants integer NOT NULL,
			created_at       timestamptz NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS room_participants (
			room_id   uuid NOT NULL REFERENCES rooms(id),
			user_id   text NOT NULL,
			joined_at timestamptz NOT NULL DEFAULT now(),
			last_seen timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (room_id, user_id)
		);
		CREATE TABLE IF NOT EXISTS room_messages (
			id              uuid NOT NULL DEFAULT gen_random_uuid() UNIQUE,
			seq             bigserial PRIMARY KEY,
			room_id         uuid NOT NULL REFERENCES rooms(id),
			user_id         text NOT NULL,
			content         text NOT NULL,
			message_type    text NOT NULL,
			file_url        text,
			file_name       text,
			is_pinned       boolean NOT NULL DEFAULT false,
			mentioned_users text[] NOT NULL DEFAULT '{}',
			created_at      timestamptz NOT NULL
		);
		CREATE INDEX IF NOT EXISTS room_messages_room_order
			ON room_messages (room_id, created_at, seq);
		CREATE TABLE IF NOT EXISTS message_reactions (
			id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			message_id uuid NOT NULL REFERENCES room_messages(id),
			user_id    text NOT NULL,
			emoji      text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			UNIQUE (message_id, user_id, emoji)
		);
		CREATE TABLE IF NOT EXISTS profiles (
			id           text PRIMARY KEY,
			display_name text NOT NULL,
			avatar_url   text
		);
	`)
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- rooms ---

func (s *PostgresStore) CreateRoom(ctx context.Context, room *domain.Room) error {
	room.IsActive = true
	return s.pool.QueryRow(ctx, `
		INSERT INTO rooms (name, description, owner_id, max_participants)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, room.Name, room.Description, room.OwnerID, room.MaxParticipants).
		Scan(&room.ID, &room.CreatedAt)
}

func (s *PostgresStore) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	var rm domain.Room
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, owner_id, is_active, max_participants, created_at
		FROM rooms WHERE id=$1
	`, id).Scan(&rm.ID, &rm.Name, &rm.Description, &rm.OwnerID, &rm.IsActive,
		&rm.MaxParticipants, &rm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return &rm, nil
}

func (s *PostgresStore) ListRooms(ctx context.Context, limit int, cursorStr string) ([]domain.Room, string, error) {
	cur, err := DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 20
	}

	var createdAt any
	var id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, owner_id, is_active, max_participants, created_at
		FROM rooms
		WHERE ($1::timestamptz IS NULL OR created_at < $1
		       OR (created_at = $1 AND id < $2))
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		var r domain.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.OwnerID, &r.IsActive,
			&r.MaxParticipants, &r.CreatedAt); err != nil {
			return nil, "", err
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(rooms) == limit {
		last := rooms[len(rooms)-1]
		next, _ = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rooms, next, nil
}

func (s *PostgresStore) DeactivateRoom(ctx context.Context, id string) error {
	cmd, err := s.pool.Exec(ctx, `UPDATE rooms SET is_active=false WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

// --- participants ---

// UpsertParticipant защищён от гонок по max_participants: строка комнаты
// блокируется, параллельные вставки по той же комнате будут ждать.
func (s *PostgresStore) UpsertParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var maxParticipants int
	err = tx.QueryRow(ctx,
		`SELECT max_participants FROM rooms WHERE id=$1 FOR UPDATE`, roomID).
		Scan(&maxParticipants)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrRoomNotFound
		}
		return false, err
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM room_participants WHERE room_id=$1 AND user_id=$2)`,
		roomID, userID).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		if _, err := tx.Exec(ctx,
			`UPDATE room_participants SET last_seen=now() WHERE room_id=$1 AND user_id=$2`,
			roomID, userID); err != nil {
			return false, err
		}
		return false, tx.Commit(ctx)
	}

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM room_participants WHERE room_id=$1`, roomID).Scan(&count); err != nil {
		return false, err
	}
	if maxParticipants > 0 && count >= maxParticipants {
		return false, domain.ErrRoomFull
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO room_participants (room_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, roomID, userID); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (s *PostgresStore) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT room_id, user_id, joined_at, last_seen
		FROM room_participants WHERE room_id=$1 ORDER BY joined_at ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.RoomID, &p.UserID, &p.JoinedAt, &p.LastSeen); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (s *PostgresStore) TouchParticipant(ctx context.Context, roomID, userID string) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE room_participants SET last_seen=now() WHERE room_id=$1 AND user_id=$2`,
		roomID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotInRoom
	}
	return nil
}

// --- messages ---

// AppendMessage назначает created_at на сервере: GREATEST гарантирует
// неубывание внутри комнаты, bigserial seq — порядок вставки при равных метках.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO room_messages
			(room_id, user_id, content, message_type, file_url, file_name, mentioned_users, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, '{}'),
			GREATEST(now(), COALESCE(
				(SELECT max(created_at) FROM room_messages WHERE room_id=$1), now())))
		RETURNING id, seq, created_at
	`, msg.RoomID, msg.UserID, msg.Content, msg.Type, nullable(msg.FileURL),
		nullable(msg.FileName), msg.MentionedUsers).
		Scan(&msg.ID, &msg.Seq, &msg.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrRoomNotFound
		}
		return err
	}
	return nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `
		SELECT id, seq, room_id, user_id, content, message_type, file_url, file_name,
		       is_pinned, mentioned_users, created_at
		FROM room_messages WHERE id=$1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, roomID, cursorStr string, limit int) ([]domain.Message, string, error) {
	limit = clampLimit(limit)
	cur, err := DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}

	var createdAt any
	var seq any
	if cur != nil {
		n, err := strconv.ParseInt(cur.ID, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("%w: bad seq: %v", ErrInvalidCursor, err)
		}
		createdAt = cur.CreatedAt
		seq = n
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, seq, room_id, user_id, content, message_type, file_url, file_name,
		       is_pinned, mentioned_users, created_at
		FROM room_messages
		WHERE room_id = $1
		  AND ($2::timestamptz IS NULL
		       OR created_at > $2
		       OR (created_at = $2 AND seq > $3))
		ORDER BY created_at ASC, seq ASC
		LIMIT $4
	`, roomID, createdAt, seq, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(out) == limit {
		last := out[len(out)-1]
		next, _ = EncodeCursor(Cursor{
			CreatedAt: last.CreatedAt,
			ID:        strconv.FormatInt(last.Seq, 10),
		})
	}
	return out, next, nil
}

func (s *PostgresStore) SetPinned(ctx context.Context, messageID string, pinned bool) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE room_messages SET is_pinned=$2 WHERE id=$1`, messageID, pinned)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

// --- reactions ---

func (s *PostgresStore) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM room_messages WHERE id=$1)`, messageID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrMessageNotFound
	}

	cmd, err := tx.Exec(ctx, `
		DELETE FROM message_reactions
		WHERE message_id=$1 AND user_id=$2 AND emoji=$3
	`, messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() > 0 {
		return false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji)
		VALUES ($1, $2, $3)
	`, messageID, userID, emoji); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (s *PostgresStore) ListReactions(ctx context.Context, messageID string) ([]domain.Reaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, user_id, emoji, created_at
		FROM message_reactions WHERE message_id=$1 ORDER BY created_at ASC
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Reaction
	for rows.Next() {
		var r domain.Reaction
		if err := rows.Scan(&r.ID, &r.MessageID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// --- profiles ---

func (s *PostgresStore) UpsertProfile(ctx context.Context, p domain.Profile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, display_name, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name, avatar_url = EXCLUDED.avatar_url
	`, p.ID, p.DisplayName, nullable(p.AvatarURL))
	return err
}

func (s *PostgresStore) GetProfiles(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, display_name, COALESCE(avatar_url, '')
		FROM profiles WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.Profile, len(ids))
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.AvatarURL); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var m domain.Message
	var fileURL, fileName *string
	err := row.Scan(&m.ID, &m.Seq, &m.RoomID, &m.UserID, &m.Content, &m.Type,
		&fileURL, &fileName, &m.IsPinned, &m.MentionedUsers, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if fileURL != nil {
		m.FileURL = *fileURL
	}
	if fileName != nil {
		m.FileName = *fileName
	}
	return &m, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// 23503 = foreign_key_violation
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
