package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/Gammanik/filet/internal/metrics"
)

// Phase фаза жизненного цикла передачи
type Phase int

const (
	PhaseRegistered  Phase = iota // запись создана, отправитель ещё не представился
	PhaseSenderReady              // отправитель прислал hello, ждём получателя
	PhaseClaimed                  // получатель захватил передачу
	PhaseStreaming                // идёт поток чанков
	PhaseCompleted                // все байты доставлены
	PhaseCancelled                // передача прервана
)

// String возвращает имя фазы для логов
func (p Phase) String() string {
	switch p {
	case PhaseRegistered:
		return "registered"
	case PhaseSenderReady:
		return "sender_ready"
	case PhaseClaimed:
		return "claimed"
	case PhaseStreaming:
		return "streaming"
	case PhaseCompleted:
		return "completed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal сообщает, является ли фаза конечной
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled
}

// Metadata метаданные передачи. Устанавливаются один раз при регистрации
// и дальше не меняются.
type Metadata struct {
	Filename string
	Size     uint64
}

var (
	// ErrIllegalTransition переход фазы вне таблицы жизненного цикла
	ErrIllegalTransition = errors.New("illegal phase transition")

	// ErrPeerAttached к записи уже привязан пир этой роли
	ErrPeerAttached = errors.New("peer already attached")

	// ErrRelayClosed попытка протолкнуть чанк после конца потока
	ErrRelayClosed = errors.New("relay channel closed")

	// ErrCancelled запись переведена в cancelled, поток остановлен
	ErrCancelled = errors.New("transfer cancelled")
)

// Record запись об одной передаче. Каналом relay владеет сессия
// отправителя: только она закрывает его при конце потока. Канал done
// закрывается при переходе в конечную фазу и служит универсальным
// сигналом остановки для обеих сессий.
type Record struct {
	ID string

	clk clock.Clock
	col *metrics.Collector

	mu           sync.Mutex
	phase        Phase
	meta         Metadata
	createdAt    time.Time
	lastActivity time.Time

	senderPresent   bool
	receiverPresent bool
	eofSent         bool
	relayClosed     bool
	cancelKind      ErrorKind

	relay   chan []byte   // ограниченный FIFO чанков от отправителя к получателю
	control chan struct{} // сигнал start от получателя к отправителю
	ready   chan struct{} // закрывается при переходе в sender_ready
	done    chan struct{} // закрывается при переходе в конечную фазу
}

func newRecord(id string, meta Metadata, capacity int, clk clock.Clock, col *metrics.Collector) *Record {
	now := clk.Now()
	return &Record{
		ID:           id,
		clk:          clk,
		col:          col,
		phase:        PhaseRegistered,
		meta:         meta,
		createdAt:    now,
		lastActivity: now,
		relay:        make(chan []byte, capacity),
		control:      make(chan struct{}, 1),
		ready:        make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Phase возвращает текущую фазу
func (r *Record) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Metadata возвращает метаданные передачи
func (r *Record) Metadata() Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta
}

// CancelKind возвращает причину отмены (имеет смысл только в cancelled)
func (r *Record) CancelKind() ErrorKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelKind
}

// LastActivity возвращает время последней активности для джанитора
func (r *Record) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// EofSent сообщает, прислал ли отправитель конец потока
func (r *Record) EofSent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eofSent
}

// Done канал, закрываемый при переходе в конечную фазу
func (r *Record) Done() <-chan struct{} { return r.done }

// Ready канал, закрываемый при переходе в sender_ready
func (r *Record) Ready() <-chan struct{} { return r.ready }

// Chunks канал чанков для стороны получателя. После закрытия канала
// оставшиеся в буфере чанки всё равно дочитываются по порядку.
func (r *Record) Chunks() <-chan []byte { return r.relay }

// StartSignal канал сигнала start для стороны отправителя
func (r *Record) StartSignal() <-chan struct{} { return r.control }

func (r *Record) touchLocked() {
	r.lastActivity = r.clk.Now()
}

// AttachSender привязывает сессию отправителя к записи. Вторая
// сессия той же роли отклоняется.
func (r *Record) AttachSender() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.senderPresent {
		return ErrPeerAttached
	}
	r.senderPresent = true
	r.touchLocked()
	return nil
}

// AttachReceiver привязывает сессию получателя к записи
func (r *Record) AttachReceiver() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.receiverPresent {
		return ErrPeerAttached
	}
	r.receiverPresent = true
	r.touchLocked()
	return nil
}

// MarkSenderReady переводит запись registered -> sender_ready после
// валидного hello от отправителя
func (r *Record) MarkSenderReady() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseRegistered {
		return ErrIllegalTransition
	}
	r.phase = PhaseSenderReady
	r.touchLocked()
	close(r.ready)
	return nil
}

// tryClaim атомарно переводит sender_ready -> claimed. Вызывается только
// реестром: это единственная точка линеаризации захвата.
func (r *Record) tryClaim() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.phase {
	case PhaseSenderReady:
		r.phase = PhaseClaimed
		r.touchLocked()
		return nil
	case PhaseRegistered:
		return ErrNotReady
	case PhaseClaimed, PhaseStreaming:
		return ErrAlreadyClaimed
	default:
		return ErrNotFound
	}
}

// SignalStart отправляет отправителю сигнал начала потока. Разрешён
// только в фазе claimed.
func (r *Record) SignalStart() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseClaimed {
		return ErrIllegalTransition
	}
	select {
	case r.control <- struct{}{}:
	default:
	}
	r.touchLocked()
	return nil
}

// PushChunk проталкивает чанк в relay. Блокируется, когда канал полон:
// именно эта блокировка останавливает чтение WS отправителя и даёт
// обратное давление до TCP. Первый чанк переводит claimed -> streaming.
func (r *Record) PushChunk(ctx context.Context, chunk []byte) error {
	r.mu.Lock()
	switch r.phase {
	case PhaseClaimed:
		r.phase = PhaseStreaming
	case PhaseStreaming:
	case PhaseCancelled:
		r.mu.Unlock()
		return ErrCancelled
	default:
		r.mu.Unlock()
		return ErrIllegalTransition
	}
	if r.relayClosed {
		r.mu.Unlock()
		return ErrRelayClosed
	}
	r.touchLocked()
	r.mu.Unlock()

	select {
	case r.relay <- chunk:
		r.col.AddRelayedBytes(len(chunk))
		return nil
	case <-r.done:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FinishSend фиксирует конец потока со стороны отправителя и закрывает
// relay. Пустая передача (eof без единого чанка) тоже считается потоком.
func (r *Record) FinishSend() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.phase {
	case PhaseClaimed:
		r.phase = PhaseStreaming
	case PhaseStreaming:
	case PhaseCancelled:
		return ErrCancelled
	default:
		return ErrIllegalTransition
	}
	if r.relayClosed {
		return ErrRelayClosed
	}
	r.eofSent = true
	r.relayClosed = true
	r.touchLocked()
	close(r.relay)
	return nil
}

// Complete переводит streaming -> completed. Вызывает сторона получателя,
// когда все чанки доставлены в её WS (она авторитетный завершитель).
func (r *Record) Complete() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseStreaming || !r.eofSent {
		return ErrIllegalTransition
	}
	r.phase = PhaseCompleted
	r.touchLocked()
	close(r.done)
	r.col.TransferCompleted()
	return nil
}

// Cancel переводит запись в cancelled из любой неконечной фазы.
// Идемпотентен: повторные вызовы ничего не делают и возвращают false.
// Первый kind сохраняется как причина.
func (r *Record) Cancel(kind ErrorKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase.Terminal() {
		return false
	}
	r.phase = PhaseCancelled
	r.cancelKind = kind
	r.touchLocked()
	close(r.done)
	r.col.TransferCancelled()
	return true
}
