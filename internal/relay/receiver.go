package relay

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReceiverSession обслуживает WS получателя: захватывает передачу,
// сигналит отправителю start и перекачивает чанки из relay в WS.
// Именно эта сессия - авторитетный завершитель: только она знает,
// когда все байты ушли вниз по течению.
type ReceiverSession struct {
	reg      *Registry
	log      *zap.Logger
	clk      clock.Clock
	timeouts Timeouts
	conn     *websocket.Conn
	id       string
}

// NewReceiverSession создает сессию получателя для передачи id
func NewReceiverSession(reg *Registry, log *zap.Logger, clk clock.Clock, timeouts Timeouts, conn *websocket.Conn, id string) *ReceiverSession {
	return &ReceiverSession{
		reg:      reg,
		log:      log.With(zap.String("role", "receiver"), zap.String("conn_id", uuid.NewString()), zap.String("transfer_id", id)),
		clk:      clk,
		timeouts: timeouts,
		conn:     conn,
		id:       id,
	}
}

// Run ведет сессию до закрытия WS или конечной фазы записи
func (s *ReceiverSession) Run(ctx context.Context) {
	defer s.conn.Close()

	// От получателя ждём только контрольные кадры
	s.conn.SetReadLimit(4096)

	if !s.readHello() {
		return
	}

	rec, err := s.claim(ctx)
	if err != nil {
		kind := claimErrorKind(err)
		s.log.Info("claim rejected", zap.String("kind", string(kind)))
		_ = s.conn.WriteJSON(ErrorMessage(kind, kindText(kind)))
		return
	}

	if err := rec.AttachReceiver(); err != nil {
		_ = s.conn.WriteJSON(ErrorMessage(KindAlreadyClaimed, kindText(KindAlreadyClaimed)))
		return
	}

	// Обрыв получателя до завершения отменяет передачу
	defer rec.Cancel(KindPeerDisconnected)

	if err := s.conn.WriteJSON(MetadataMessage(rec.Metadata())); err != nil {
		return
	}
	if err := rec.SignalStart(); err != nil {
		s.log.Error("failed to signal start", zap.Error(err))
		rec.Cancel(KindInternal)
		_ = s.conn.WriteJSON(ErrorMessage(KindInternal, kindText(KindInternal)))
		return
	}

	s.log.Info("receiver claimed transfer")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(rec) })
	g.Go(func() error { return s.pump(gctx, rec) })
	_ = g.Wait()
}

// readHello читает первый кадр получателя
func (s *ReceiverSession) readHello() bool {
	msgType, data, err := s.conn.ReadMessage()
	if err != nil {
		return false
	}
	if msgType != websocket.TextMessage {
		_ = s.conn.WriteJSON(ErrorMessage(KindProtocolViolation, "first frame must be hello"))
		return false
	}
	msg, err := ParseControl(data)
	if err != nil || msg.Type != MsgHello {
		_ = s.conn.WriteJSON(ErrorMessage(KindProtocolViolation, "first frame must be hello"))
		return false
	}
	return true
}

// claim захватывает передачу, при необходимости дожидаясь hello
// отправителя в пределах ClaimWait. По истечении ожидания NotReady
// превращается в NotFound.
func (s *ReceiverSession) claim(ctx context.Context) (*Record, error) {
	rec, err := s.reg.Claim(s.id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotReady) {
		return nil, err
	}

	timer := s.clk.Timer(s.timeouts.ClaimWait)
	defer timer.Stop()

	select {
	case <-rec.Ready():
		return s.reg.Claim(s.id)
	case <-rec.Done():
		return nil, ErrNotFound
	case <-timer.C:
		return nil, ErrNotFound
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pump перекачивает чанки из relay в WS получателя, сохраняя порядок.
// Закрытие relay при присланном eof означает чистый конец потока.
func (s *ReceiverSession) pump(ctx context.Context, rec *Record) error {
	// Закрытие соединения разблокирует readLoop
	defer s.conn.Close()

	var total uint64
	for {
		select {
		case chunk, ok := <-rec.Chunks():
			if !ok {
				if err := rec.Complete(); err != nil {
					s.finishCancelled(rec)
					return nil
				}
				_ = s.conn.WriteJSON(CompleteMessage(total))
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				s.log.Info("transfer complete", zap.Uint64("bytes", total))
				return nil
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				rec.Cancel(KindPeerDisconnected)
				return nil
			}
			total += uint64(len(chunk))

		case <-rec.Done():
			s.finishCancelled(rec)
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

// readLoop следит за соединением получателя. Никаких кадров после
// hello протокол не предусматривает.
func (s *ReceiverSession) readLoop(rec *Record) error {
	for {
		_, _, err := s.conn.ReadMessage()
		if err != nil {
			if !rec.Phase().Terminal() {
				s.log.Info("receiver disconnected")
				rec.Cancel(KindPeerDisconnected)
			}
			return nil
		}
		s.log.Warn("protocol violation", zap.String("reason", "unexpected frame from receiver"))
		rec.Cancel(KindProtocolViolation)
		return nil
	}
}

// finishCancelled пишет терминальный кадр об отмене (best-effort)
func (s *ReceiverSession) finishCancelled(rec *Record) {
	kind := rec.CancelKind()
	if kind == "" {
		kind = KindInternal
	}
	_ = s.conn.WriteJSON(ErrorMessage(kind, kindText(kind)))
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.log.Info("transfer cancelled", zap.String("kind", string(kind)))
}

// claimErrorKind переводит ошибку захвата в код для кадра error
func claimErrorKind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyClaimed):
		return KindAlreadyClaimed
	default:
		return KindInternal
	}
}
