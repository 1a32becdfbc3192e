package registry

import "sync"

// Session — живое подключение участника. Enqueue не блокирует: false означает
// переполненный исходящий буфер, дальше решает вызывающая сторона.
type Session interface {
	ID() string
	UserID() string
	Enqueue(frame []byte) bool
	Close() error
}

// Registry — чисто in-memory индекс подключённых сессий по комнатам.
// Не переживает рестарт процесса: клиенты переподключаются и re-attach.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Session // roomID -> sessionID -> session
}

func New() *Registry {
	return &Registry{rooms: make(map[string]map[string]Session)}
}

func (r *Registry) Attach(roomID string, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.rooms[roomID]
	if !ok {
		sessions = make(map[string]Session)
		r.rooms[roomID] = sessions
	}
	sessions[s.ID()] = s
}

func (r *Registry) Detach(roomID, sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	s, ok := sessions[sessionID]
	if !ok {
		return nil, false
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(r.rooms, roomID)
	}
	return s, true
}

// DetachUser снимает все сессии пользователя в комнате (user может держать
// несколько вкладок).
func (r *Registry) DetachUser(roomID, userID string) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	var out []Session
	for id, s := range sessions {
		if s.UserID() == userID {
			delete(sessions, id)
			out = append(out, s)
		}
	}
	if len(sessions) == 0 {
		delete(r.rooms, roomID)
	}
	return out
}

func (r *Registry) Sessions(roomID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.rooms[roomID]
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}
