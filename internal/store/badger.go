package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/studysync/room-service/internal/domain"
)

// Схема ключей:
//
//	room:{roomID}                      -> Room (json)
//	part:{roomID}:{userID}             -> Participant (json)
//	msg:{roomID}:{ts:019d}:{seq:012d}  -> Message (json)
//	msgid:{messageID}                  -> первичный ключ сообщения
//	msgmeta:{roomID}                   -> messageMeta (json)
//	react:{messageID}:{userID}:{emoji} -> Reaction (json)
//	profile:{userID}                   -> Profile (json)
//
// Нули в timestamp дают лексикографический порядок = хронологическому;
// seq разруливает совпавшие наносекунды в порядке вставки.
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

// messageMeta — монотонные часы комнаты: AppendMessage никогда не выдаёт
// created_at меньше LastNano.
type messageMeta struct {
	LastNano int64 `json:"last_nano"`
	Seq      int64 `json:"seq"`
}

func NewBadgerStore(path string, log *slog.Logger) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerStore{db: db, log: log}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return nil
}

func roomKey(id string) []byte          { return []byte("room:" + id) }
func participantKey(r, u string) []byte { return []byte("part:" + r + ":" + u) }
func participantPrefix(r string) []byte { return []byte("part:" + r + ":") }

func messageKey(r string, nano, seq int64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%012d", r, nano, seq))
}

func messagePrefix(r string) []byte     { return []byte("msg:" + r + ":") }
func messageIDKey(id string) []byte     { return []byte("msgid:" + id) }
func messageMetaKey(r string) []byte    { return []byte("msgmeta:" + r) }
func reactionKey(m, u, e string) []byte { return []byte("react:" + m + ":" + u + ":" + e) }
func reactionPrefix(m string) []byte    { return []byte("react:" + m + ":") }
func profileKey(id string) []byte       { return []byte("profile:" + id) }

// --- rooms ---

func (s *BadgerStore) CreateRoom(_ context.Context, room *domain.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	room.IsActive = true

	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, roomKey(room.ID), room)
	})
}

func (s *BadgerStore) GetRoom(_ context.Context, id string) (*domain.Room, error) {
	var room domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, roomKey(id), &room)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

func (s *BadgerStore) ListRooms(_ context.Context, limit int, cursorStr string) ([]domain.Room, string, error) {
	cur, err := DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 20
	}

	var all []domain.Room
	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("room:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r domain.Room
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &r) }); err != nil {
				return err
			}
			all = append(all, r)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	// комнат немного: сортировка в памяти, как и листинг, дешевле отдельного индекса
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	var rooms []domain.Room
	for _, r := range all {
		if cur != nil {
			if r.CreatedAt.After(cur.CreatedAt) ||
				(r.CreatedAt.Equal(cur.CreatedAt) && r.ID >= cur.ID) {
				continue
			}
		}
		rooms = append(rooms, r)
		if len(rooms) == limit {
			break
		}
	}

	var next string
	if len(rooms) == limit {
		last := rooms[len(rooms)-1]
		if c, e := EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID}); e == nil {
			next = c
		}
	}
	return rooms, next, nil
}

func (s *BadgerStore) DeactivateRoom(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var room domain.Room
		if err := getJSON(txn, roomKey(id), &room); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrRoomNotFound
			}
			return err
		}
		if !room.IsActive {
			return nil
		}
		room.IsActive = false
		return setJSON(txn, roomKey(id), &room)
	})
}

// --- participants ---

func (s *BadgerStore) UpsertParticipant(_ context.Context, roomID, userID string) (bool, error) {
	joined := false
	err := s.db.Update(func(txn *badger.Txn) error {
		var room domain.Room
		if err := getJSON(txn, roomKey(roomID), &room); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrRoomNotFound
			}
			return err
		}

		key := participantKey(roomID, userID)
		var p domain.Participant
		err := getJSON(txn, key, &p)
		switch {
		case err == nil:
			// уже участник: только heartbeat
			p.LastSeen = time.Now().UTC()
			return setJSON(txn, key, &p)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		count, err := countPrefix(txn, participantPrefix(roomID))
		if err != nil {
			return err
		}
		if room.MaxParticipants > 0 && count >= room.MaxParticipants {
			return domain.ErrRoomFull
		}

		now := time.Now().UTC()
		joined = true
		return setJSON(txn, key, &domain.Participant{
			RoomID:   roomID,
			UserID:   userID,
			JoinedAt: now,
			LastSeen: now,
		})
	})
	return joined, err
}

func (s *BadgerStore) ListParticipants(_ context.Context, roomID string) ([]domain.Participant, error) {
	var list []domain.Participant
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := participantPrefix(roomID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p domain.Participant
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &p) }); err != nil {
				return err
			}
			list = append(list, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].JoinedAt.Before(list[j].JoinedAt) })
	return list, nil
}

func (s *BadgerStore) TouchParticipant(_ context.Context, roomID, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := participantKey(roomID, userID)
		var p domain.Participant
		if err := getJSON(txn, key, &p); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrNotInRoom
			}
			return err
		}
		p.LastSeen = time.Now().UTC()
		return setJSON(txn, key, &p)
	})
}

// --- messages ---

func (s *BadgerStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(msg.RoomID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrRoomNotFound
			}
			return err
		}

		var meta messageMeta
		if err := getJSON(txn, messageMetaKey(msg.RoomID), &meta); err != nil &&
			!errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		nano := time.Now().UTC().UnixNano()
		if nano < meta.LastNano {
			nano = meta.LastNano
		}
		meta.LastNano = nano
		meta.Seq++

		msg.ID = uuid.NewString()
		msg.Seq = meta.Seq
		msg.CreatedAt = time.Unix(0, nano).UTC()

		key := messageKey(msg.RoomID, nano, msg.Seq)
		if err := setJSON(txn, key, msg); err != nil {
			return err
		}
		if err := txn.Set(messageIDKey(msg.ID), key); err != nil {
			return err
		}
		return setJSON(txn, messageMetaKey(msg.RoomID), &meta)
	})
}

func (s *BadgerStore) GetMessage(_ context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		return getMessageByID(txn, id, &msg)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *BadgerStore) ListMessages(_ context.Context, roomID, cursorStr string, limit int) ([]domain.Message, string, error) {
	limit = clampLimit(limit)
	cur, err := DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}

	prefix := messagePrefix(roomID)
	seekKey := prefix
	if cur != nil {
		seq, err := strconv.ParseInt(cur.ID, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("%w: bad seq: %v", ErrInvalidCursor, err)
		}
		// позиция сразу за курсором
		seekKey = messageKey(roomID, cur.CreatedAt.UnixNano(), seq+1)
	}

	var out []domain.Message
	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(out) == limit {
				break
			}
			var m domain.Message
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &m) }); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	var next string
	if len(out) == limit {
		last := out[len(out)-1]
		if c, e := EncodeCursor(Cursor{
			CreatedAt: last.CreatedAt,
			ID:        strconv.FormatInt(last.Seq, 10),
		}); e == nil {
			next = c
		}
	}
	return out, next, nil
}

func (s *BadgerStore) SetPinned(_ context.Context, messageID string, pinned bool) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var msg domain.Message
		if err := getMessageByID(txn, messageID, &msg); err != nil {
			return err
		}
		if msg.IsPinned == pinned {
			return nil
		}
		msg.IsPinned = pinned
		return setJSON(txn, messageKey(msg.RoomID, msg.CreatedAt.UnixNano(), msg.Seq), &msg)
	})
}

// --- reactions ---

func (s *BadgerStore) ToggleReaction(_ context.Context, messageID, userID, emoji string) (bool, error) {
	if strings.TrimSpace(emoji) == "" {
		return false, fmt.Errorf("%w: empty emoji", domain.ErrInvalidMessage)
	}
	active := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(messageIDKey(messageID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrMessageNotFound
			}
			return err
		}

		key := reactionKey(messageID, userID, emoji)
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return txn.Delete(key)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		active = true
		return setJSON(txn, key, &domain.Reaction{
			ID:        uuid.NewString(),
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
			CreatedAt: time.Now().UTC(),
		})
	})
	return active, err
}

func (s *BadgerStore) ListReactions(_ context.Context, messageID string) ([]domain.Reaction, error) {
	var list []domain.Reaction
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := reactionPrefix(messageID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r domain.Reaction
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &r) }); err != nil {
				return err
			}
			list = append(list, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

// --- profiles ---

func (s *BadgerStore) UpsertProfile(_ context.Context, p domain.Profile) error {
	if p.ID == "" {
		return fmt.Errorf("%w: profile without id", domain.ErrInvalidMessage)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, profileKey(p.ID), &p)
	})
}

func (s *BadgerStore) GetProfiles(_ context.Context, ids []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			var p domain.Profile
			err := getJSON(txn, profileKey(id), &p)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out[p.ID] = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- helpers ---

func validateMessage(msg *domain.Message) error {
	if strings.TrimSpace(msg.Content) == "" {
		return fmt.Errorf("%w: empty content", domain.ErrInvalidMessage)
	}
	if !msg.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidMessage, msg.Type)
	}
	if msg.Type == domain.MessageFile && msg.FileURL == "" {
		return fmt.Errorf("%w: file message without file_url", domain.ErrInvalidMessage)
	}
	if msg.Type != domain.MessageFile && (msg.FileURL != "" || msg.FileName != "") {
		return fmt.Errorf("%w: file fields on %s message", domain.ErrInvalidMessage, msg.Type)
	}
	return nil
}

func getMessageByID(txn *badger.Txn, id string, msg *domain.Message) error {
	item, err := txn.Get(messageIDKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrMessageNotFound
		}
		return err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	if err := getJSON(txn, key, msg); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrMessageNotFound
		}
		return err
	}
	return nil
}

func countPrefix(txn *badger.Txn, prefix []byte) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n, nil
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(bytes.Clone(val), v)
	})
}
