package relay

import "encoding/json"

// Типы контрольных сообщений протокола. Набор закрытый: любое сообщение
// с другим типом считается нарушением протокола.
const (
	MsgHello      = "hello"      // отправитель/получатель -> сервер
	MsgRegistered = "registered" // сервер -> отправитель (выдан id)
	MsgMetadata   = "metadata"   // сервер -> получатель (после claim)
	MsgStart      = "start"      // сервер -> отправитель (можно слать чанки)
	MsgEof        = "eof"        // отправитель -> сервер (конец потока)
	MsgComplete   = "complete"   // сервер -> получатель (итоговый счётчик)
	MsgError      = "error"      // сервер -> любой пир (терминальная ошибка)
)

// ErrorKind семантический код ошибки, который уходит пиру в кадре error
type ErrorKind string

const (
	KindNotFound          ErrorKind = "NotFound"
	KindAlreadyClaimed    ErrorKind = "AlreadyClaimed"
	KindProtocolViolation ErrorKind = "ProtocolViolation"
	KindPeerDisconnected  ErrorKind = "PeerDisconnected"
	KindTimeout           ErrorKind = "Timeout"
	KindInternal          ErrorKind = "Internal"
)

// kindText подбирает человекочитаемый текст для кадра error
func kindText(kind ErrorKind) string {
	switch kind {
	case KindNotFound:
		return "transfer not found"
	case KindAlreadyClaimed:
		return "transfer already has a receiver"
	case KindProtocolViolation:
		return "protocol violation"
	case KindPeerDisconnected:
		return "peer disconnected"
	case KindTimeout:
		return "transfer timed out"
	default:
		return "internal error"
	}
}

// ControlMessage одно контрольное сообщение в текстовом кадре WS.
// Поля заполняются в зависимости от Type; чанки идут отдельными
// бинарными кадрами и сюда не попадают.
type ControlMessage struct {
	Type     string    `json:"type"`
	ID       string    `json:"id,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Size     uint64    `json:"size,omitempty"`
	Bytes    uint64    `json:"bytes,omitempty"`
	Kind     ErrorKind `json:"kind,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// ParseControl разбирает текстовый кадр в контрольное сообщение
func ParseControl(data []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ControlMessage{}, err
	}
	return msg, nil
}

// RegisteredMessage формирует ответ с выданным идентификатором
func RegisteredMessage(id string) ControlMessage {
	return ControlMessage{Type: MsgRegistered, ID: id}
}

// MetadataMessage формирует сообщение с метаданными для получателя
func MetadataMessage(meta Metadata) ControlMessage {
	return ControlMessage{Type: MsgMetadata, Filename: meta.Filename, Size: meta.Size}
}

// CompleteMessage формирует итоговое сообщение получателю
func CompleteMessage(bytes uint64) ControlMessage {
	return ControlMessage{Type: MsgComplete, Bytes: bytes}
}

// ErrorMessage формирует терминальное сообщение об ошибке
func ErrorMessage(kind ErrorKind, text string) ControlMessage {
	return ControlMessage{Type: MsgError, Kind: kind, Message: text}
}
