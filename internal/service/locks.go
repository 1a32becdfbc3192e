package service

import "sync"

// RoomLocks — сериализационная точка комнаты: все записи по комнате и их
// broadcast выполняются под её мьютексом, поэтому порядок рассылки совпадает
// с порядком коммитов. Разные комнаты полностью параллельны; чтения истории
// локи не берут.
type RoomLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRoomLocks() *RoomLocks {
	return &RoomLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *RoomLocks) Get(roomID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[roomID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[roomID] = m
	}
	return m
}
