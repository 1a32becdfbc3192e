package ws

// Типы входящих кадров от клиента
const (
	FrameSend  = "send"  // отправить сообщение в комнату
	FrameReact = "react" // переключить реакцию на сообщении
	FramePin   = "pin"   // закрепить/открепить сообщение (только владелец)
	FrameLeave = "leave" // выйти из комнаты
)

// FrameError — кадр об ошибке конкретному клиенту, не бродкаст.
const FrameError = "error"

type Frame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type SendPayload struct {
	Content  string `json:"content"`
	Type     string `json:"message_type,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

type ReactPayload struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type PinPayload struct {
	MessageID string `json:"message_id"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
}
