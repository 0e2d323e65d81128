package relay

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SenderSession обслуживает WS отправителя: принимает hello, публикует
// метаданные, дожидается start и проталкивает бинарные кадры в relay.
type SenderSession struct {
	reg    *Registry
	log    *zap.Logger
	limits Limits
	conn   *websocket.Conn
}

// NewSenderSession создает сессию отправителя поверх установленного WS
func NewSenderSession(reg *Registry, log *zap.Logger, limits Limits, conn *websocket.Conn) *SenderSession {
	return &SenderSession{
		reg:    reg,
		log:    log.With(zap.String("role", "sender"), zap.String("conn_id", uuid.NewString())),
		limits: limits,
		conn:   conn,
	}
}

// Run ведет сессию до закрытия WS или конечной фазы записи
func (s *SenderSession) Run(ctx context.Context) {
	defer s.conn.Close()

	// Контрольные кадры маленькие, бинарные ограничены размером чанка
	s.conn.SetReadLimit(s.limits.MaxChunkBytes + 1024)

	meta, ok := s.readHello()
	if !ok {
		return
	}

	rec, err := s.reg.Create(meta)
	if err != nil {
		s.log.Error("failed to create transfer", zap.Error(err))
		s.writeDirect(ErrorMessage(KindInternal, "internal error"))
		return
	}
	s.log = s.log.With(zap.String("transfer_id", rec.ID))

	if err := rec.AttachSender(); err != nil {
		s.writeDirect(ErrorMessage(KindInternal, "sender already attached"))
		return
	}
	if err := rec.MarkSenderReady(); err != nil {
		s.writeDirect(ErrorMessage(KindInternal, "internal error"))
		return
	}

	if err := s.writeDirect(RegisteredMessage(rec.ID)); err != nil {
		rec.Cancel(KindPeerDisconnected)
		return
	}

	// Обрыв без eof означает отмену; после eof завершение в руках
	// получателя
	defer func() {
		if !rec.EofSent() {
			rec.Cancel(KindPeerDisconnected)
		}
	}()

	s.log.Info("sender ready",
		zap.String("filename", meta.Filename),
		zap.Uint64("size", meta.Size))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx, rec) })
	g.Go(func() error { return s.writeLoop(gctx, rec) })
	_ = g.Wait()
}

// readHello читает и проверяет первый кадр сессии
func (s *SenderSession) readHello() (Metadata, bool) {
	msgType, data, err := s.conn.ReadMessage()
	if err != nil {
		return Metadata{}, false
	}
	if msgType != websocket.TextMessage {
		s.writeDirect(ErrorMessage(KindProtocolViolation, "first frame must be hello"))
		return Metadata{}, false
	}

	msg, err := ParseControl(data)
	if err != nil || msg.Type != MsgHello {
		s.writeDirect(ErrorMessage(KindProtocolViolation, "first frame must be hello"))
		return Metadata{}, false
	}
	if msg.Filename == "" || len(msg.Filename) > s.limits.MaxFilenameBytes {
		s.writeDirect(ErrorMessage(KindProtocolViolation, "invalid filename"))
		return Metadata{}, false
	}
	if msg.Size > s.limits.MaxDeclaredBytes {
		s.writeDirect(ErrorMessage(KindProtocolViolation, "declared size exceeds limit"))
		return Metadata{}, false
	}

	return Metadata{Filename: msg.Filename, Size: msg.Size}, true
}

// readLoop принимает кадры отправителя и проталкивает чанки в relay.
// Когда relay полон, PushChunk блокируется и чтение WS останавливается:
// обратное давление доходит до браузера через TCP.
func (s *SenderSession) readLoop(ctx context.Context, rec *Record) error {
	var total uint64

	// Одному чанку позволяем выйти за заявленный размер: шифрование
	// добавляет нонсы и теги аутентичности
	limit := rec.Metadata().Size + uint64(s.limits.MaxChunkBytes)

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if !rec.EofSent() && !rec.Phase().Terminal() {
				s.log.Info("sender disconnected", zap.Uint64("relayed", total))
				rec.Cancel(KindPeerDisconnected)
			}
			return nil
		}

		switch msgType {
		case websocket.TextMessage:
			msg, perr := ParseControl(data)
			if perr != nil || msg.Type != MsgEof {
				return s.violation(rec, "unexpected control frame")
			}
			if err := rec.FinishSend(); err != nil {
				if errors.Is(err, ErrCancelled) {
					return nil
				}
				return s.violation(rec, "eof before stream start")
			}
			s.log.Info("sender eof", zap.Uint64("relayed", total))

		case websocket.BinaryMessage:
			if len(data) == 0 {
				if err := rec.FinishSend(); err != nil {
					if errors.Is(err, ErrCancelled) {
						return nil
					}
					return s.violation(rec, "eof before stream start")
				}
				s.log.Info("sender eof", zap.Uint64("relayed", total))
				continue
			}
			if rec.EofSent() {
				return s.violation(rec, "chunk after eof")
			}
			if int64(len(data)) > s.limits.MaxChunkBytes {
				return s.violation(rec, "oversized chunk")
			}
			total += uint64(len(data))
			if total > limit {
				return s.violation(rec, "payload exceeds declared size")
			}
			if err := rec.PushChunk(ctx, data); err != nil {
				if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
					return nil
				}
				return s.violation(rec, "chunk before stream start")
			}
		}
	}
}

// writeLoop доставляет отправителю start и терминальные кадры.
// Все записи в WS идут только из этой горутины.
func (s *SenderSession) writeLoop(ctx context.Context, rec *Record) error {
	// Закрытие соединения разблокирует readLoop
	defer s.conn.Close()

	select {
	case <-rec.StartSignal():
		if err := s.conn.WriteJSON(ControlMessage{Type: MsgStart}); err != nil {
			rec.Cancel(KindPeerDisconnected)
			return nil
		}
	case <-rec.Done():
		s.finish(rec)
		return nil
	case <-ctx.Done():
		return nil
	}

	select {
	case <-rec.Done():
		s.finish(rec)
	case <-ctx.Done():
	}
	return nil
}

// finish пишет терминальный кадр по исходу записи (best-effort)
func (s *SenderSession) finish(rec *Record) {
	if rec.Phase() == PhaseCancelled {
		_ = s.conn.WriteJSON(ErrorMessage(rec.CancelKind(), kindText(rec.CancelKind())))
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// violation фиксирует нарушение протокола и останавливает передачу
func (s *SenderSession) violation(rec *Record, reason string) error {
	s.log.Warn("protocol violation", zap.String("reason", reason))
	rec.Cancel(KindProtocolViolation)
	return nil
}

// writeDirect пишет контрольный кадр до запуска циклов чтения/записи
func (s *SenderSession) writeDirect(msg ControlMessage) error {
	return s.conn.WriteJSON(msg)
}
