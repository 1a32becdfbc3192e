package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studysync/room-service/internal/domain"
	"github.com/studysync/room-service/internal/hub"
)

func Test_Send_Broadcasts_In_Commit_Order(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	room := f.makeRoom(t, "u-owner", 5)

	a := newCapture("s-a", "u-1")
	b := newCapture("s-b", "u-2")
	f.join(t, room.ID, "u-1", "Alice", a)
	f.join(t, room.ID, "u-2", "Bob", b)

	m1, err := f.chat.Send(ctx, room.ID, "u-1", SendMessageInput{Content: "первое"})
	req.NoError(err)
	m2, err := f.chat.Send(ctx, room.ID, "u-2", SendMessageInput{Content: "второе"})
	req.NoError(err)
	req.Greater(m2.Seq, m1.Seq)

	// обе сессии видят сообщения в порядке коммитов
	for _, sess := range []*capture{a, b} {
		var got []string
		for _, e := range sess.events(t) {
			if e.Type != hub.EventMessageCreated {
				continue
			}
			raw, err := json.Marshal(e.Payload)
			req.NoError(err)
			var m domain.Message
			req.NoError(json.Unmarshal(raw, &m))
			got = append(got, m.ID)
		}
		req.Equal([]string{m1.ID, m2.ID}, got)
	}
}

func Test_Send_Empty_Content_Rejected_Without_Side_Effects(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	room := f.makeRoom(t, "u-owner", 5)

	watcher := newCapture("s-1", "u-1")
	f.join(t, room.ID, "u-1", "Alice", watcher)
	framesBefore := len(watcher.frames)

	_, err := f.chat.Send(ctx, room.ID, "u-1", SendMessageInput{Content: "   "})
	req.True(errors.Is(err, domain.ErrInvalidMessage))

	msgs, _, err := f.chat.History(ctx, room.ID, "", 10)
	req.NoError(err)
	req.Empty(msgs)
	req.Len(watcher.frames, framesBefore)
}

func Test_Send_Content_Length_Limit(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	room := f.makeRoom(t, "u-owner", 5)
	f.join(t, room.ID, "u-1", "Alice", nil)
	f.chat.SetMaxContentLen(10)

	_, err := f.chat.Send(ctx, room.ID, "u-1", SendMessageInput{Content: "это сильно длиннее лимита"})
	req.True(errors.Is(err, domain.ErrInvalidMessage))

	_, err = f.chat.Send(ctx, room.ID, "u-1", SendMessageInput{Content: "ok"})
	req.NoError(err)
}

func Test_Send_Content_Limit_Counts_Runes_Not_Bytes(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	room := f.makeRoom(t, "u-owner", 5)
	f.join(t, room.ID, "u-1", "Alice", nil)
	f.chat.SetMaxContentLen(10)

	// 9 символов кириллицы = 18 байт; лимит 10 считает символы
	msg, err := f.chat.Send(ctx, room.ID, "u-1", SendMessageInput{Content: "привет ми"})
	req.NoError(err)
	req.Equal("привет ми", msg.Content)

	_, err = f.chat.Send(ctx, room.ID, "u-1", SendMessageInput{Content: "одиннадцать"})
	req.True(errors.Is(err, domain.ErrInvalidMessage))
}

func Test_Send_File_Message_Requires_URL(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	room := f.makeRoom(t, "u-owner", 5)
	f.join(t, room.ID, "u-1", "Alice", nil)

	_, err := f.chat.Send(ctx, room.ID, "u-1", SendMessageInput{
		Content: "конспект", Type: domain.MessageFile,
	})
	req.True(errors.Is(err, domain.ErrInvalidMessage))

	msg, err := f.chat.Send(ctx, room.ID, "u-1", SendMessageInput{
		Content: "конспект", Type: domain.MessageFile,
		FileURL: "https://files/notes.pdf", FileName: "notes.pdf",
	})
	req.NoError(err)
	req.Equal(domain.MessageFile, msg.Type)
	req.Equal("notes.pdf", msg.FileName)
}

func Test_Send_Resolves_Mentions_To_Participants(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	room := f.makeRoom(t, "u-owner", 5)

	f.join(t, room.ID, "u-1", "Alice", nil)
	f.join(t, room.ID, "u-2", "Bob", nil)

	msg, err := f.chat.Send(ctx, room.ID, "u-1", SendMessageInput{Content: "привет @Bob, глянь @Nobody"})
	req.NoError(err)

	// Bob в комнате, Nobody нет: нераспознанное имя молча отброшено
	req.Equal([]string{"u-2"}, msg.MentionedUsers)

	got, err := f.store.GetMessage(ctx, msg.ID)
	req.NoError(err)
	req.Equal([]string{"u-2"}, got.MentionedUsers)
}

func Test_Pin_Owner_Only(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	room := f.makeRoom(t, "u-owner", 5)
	f.join(t, room.ID, "u-owner", "Owner", nil)
	f.join(t, room.ID, "u-1", "Alice", nil)

	msg, err := f.chat.Send(ctx, room.ID, "u-1", SendMessageInput{Content: "важное"})
	req.NoError(err)

	_, err = f.chat.Pin(ctx, msg.ID, "u-1")
	req.True(errors.Is(err, domain.ErrForbidden))

	got, err := f.store.GetMessage(ctx, msg.ID)
	req.NoError(err)
	req.False(got.IsPinned)
}

func Test_Pin_Toggles_And_Broadcasts(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	room := f.makeRoom(t, "u-owner", 5)

	watcher := newCapture("s-1", "u-1")
	f.join(t, room.ID, "u-owner", "Owner", nil)
	f.join(t, room.ID, "u-1", "Alice", watcher)

	msg, err := f.chat.Send(ctx, room.ID, "u-1", SendMessageInput{Content: "важное"})
	req.NoError(err)

	pinned, err := f.chat.Pin(ctx, msg.ID, "u-owner")
	req.NoError(err)
	req.True(pinned)

	pinned, err = f.chat.Pin(ctx, msg.ID, "u-owner")
	req.NoError(err)
	req.False(pinned)

	pinEvents := 0
	for _, e := range watcher.events(t) {
		if e.Type == hub.EventMessagePinned {
			pinEvents++
		}
	}
	req.Equal(2, pinEvents)
}

func Test_React_Toggle_Broadcasts_Final_State(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	room := f.makeRoom(t, "u-owner", 5)

	watcher := newCapture("s-1", "u-1")
	f.join(t, room.ID, "u-1", "Alice", watcher)
	f.join(t, room.ID, "u-2", "Bob", nil)

	msg, err := f.chat.Send(ctx, room.ID, "u-1", SendMessageInput{Content: "реагируй"})
	req.NoError(err)

	active, err := f.chat.React(ctx, msg.ID, "u-2", "🔥")
	req.NoError(err)
	req.True(active)

	active, err = f.chat.React(ctx, msg.ID, "u-2", "🔥")
	req.NoError(err)
	req.False(active)

	var states []bool
	for _, e := range watcher.events(t) {
		if e.Type != hub.EventReactionToggled {
			continue
		}
		raw, err := json.Marshal(e.Payload)
		req.NoError(err)
		var p hub.ReactionPayload
		req.NoError(json.Unmarshal(raw, &p))
		states = append(states, p.Active)
	}
	req.Equal([]bool{true, false}, states)
}

func Test_React_Validates_Emoji(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	room := f.makeRoom(t, "u-owner", 5)
	f.join(t, room.ID, "u-1", "Alice", nil)

	msg, err := f.chat.Send(ctx, room.ID, "u-1", SendMessageInput{Content: "x"})
	req.NoError(err)

	_, err = f.chat.React(ctx, msg.ID, "u-1", "  ")
	req.True(errors.Is(err, domain.ErrInvalidMessage))

	_, err = f.chat.React(ctx, msg.ID, "u-1", "очень длинная строка вместо эмодзи")
	req.True(errors.Is(err, domain.ErrInvalidMessage))
}

func Test_History_Unknown_Room(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	_, _, err := f.chat.History(context.Background(), "no-such-room", "", 10)
	req.True(errors.Is(err, domain.ErrRoomNotFound))
}
