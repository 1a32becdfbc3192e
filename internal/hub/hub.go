package hub

import (
	"encoding/json"
	"log/slog"

	"github.com/studysync/room-service/internal/registry"
)

// Hub доставляет закоммиченные события всем сессиям комнаты. Порядок внутри
// комнаты совпадает с порядком коммитов, потому что все Broadcast для комнаты
// выполняются под её сериализационной точкой (см. service). Доставка по сессии
// best-effort: переполненный буфер — отключение сессии, а не блокировка
// комнаты; клиент догонит историю через курсор.
type Hub struct {
	reg *registry.Registry
	log *slog.Logger
}

func New(reg *registry.Registry, log *slog.Logger) *Hub {
	return &Hub{reg: reg, log: log}
}

func (h *Hub) Broadcast(roomID string, e Event) {
	frame, err := json.Marshal(e)
	if err != nil {
		h.log.Error("hub marshal event", "type", e.Type, "err", err)
		return
	}

	for _, s := range h.reg.Sessions(roomID) {
		if s.Enqueue(frame) {
			continue
		}
		// медленный потребитель: изолируем, остальная комната не страдает
		if dropped, ok := h.reg.Detach(roomID, s.ID()); ok {
			_ = dropped.Close()
		}
		h.log.Warn("session outbound buffer full, dropped",
			"room", roomID, "session", s.ID(), "user", s.UserID())
	}
}
