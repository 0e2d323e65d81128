package relay

import (
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Gammanik/filet/internal/metrics"
)

var (
	// ErrNotFound передача с таким идентификатором неизвестна или истекла
	ErrNotFound = errors.New("transfer not found")

	// ErrAlreadyClaimed у передачи уже есть получатель
	ErrAlreadyClaimed = errors.New("transfer already claimed")

	// ErrNotReady получатель пришёл раньше, чем отправитель представился
	ErrNotReady = errors.New("transfer not ready")
)

// Registry реестр активных передач: единственное общее изменяемое
// состояние процесса. Мьютекс реестра охраняет только карту; переходы
// фаз охраняются мьютексом самой записи, поэтому под блокировкой
// реестра никогда не ждут I/O.
type Registry struct {
	log      *zap.Logger
	clk      clock.Clock
	col      *metrics.Collector
	capacity int

	mu      sync.Mutex
	records map[string]*Record
}

// NewRegistry создает реестр передач.
// capacity - ёмкость relay-канала каждой записи (обратное давление)
func NewRegistry(log *zap.Logger, clk clock.Clock, capacity int, col *metrics.Collector) *Registry {
	return &Registry{
		log:      log,
		clk:      clk,
		col:      col,
		capacity: capacity,
		records:  make(map[string]*Record),
	}
}

// Create выделяет идентификатор и заводит запись в фазе registered
func (reg *Registry) Create(meta Metadata) (*Record, error) {
	// Коллизия 144-битного идентификатора практически невозможна,
	// но карту всё равно не затираем
	for attempt := 0; attempt < 3; attempt++ {
		id, err := NewTransferID()
		if err != nil {
			return nil, err
		}

		reg.mu.Lock()
		if _, exists := reg.records[id]; exists {
			reg.mu.Unlock()
			continue
		}
		rec := newRecord(id, meta, reg.capacity, reg.clk, reg.col)
		reg.records[id] = rec
		reg.mu.Unlock()

		reg.col.TransferCreated()
		reg.log.Debug("transfer registered", zap.String("transfer_id", id))
		return rec, nil
	}
	return nil, fmt.Errorf("failed to allocate unique transfer id")
}

// Get возвращает запись без изменения её состояния
func (reg *Registry) Get(id string) (*Record, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rec, ok := reg.records[id]
	return rec, ok
}

// Claim атомарно захватывает передачу для получателя. Возможные ошибки:
// ErrNotFound, ErrAlreadyClaimed и ErrNotReady; в последнем случае
// запись тоже возвращается, чтобы вызывающий мог подождать на Ready()
// и повторить захват.
func (reg *Registry) Claim(id string) (*Record, error) {
	reg.mu.Lock()
	rec, ok := reg.records[id]
	reg.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}

	if err := rec.tryClaim(); err != nil {
		if errors.Is(err, ErrNotReady) {
			return rec, err
		}
		return nil, err
	}

	reg.log.Debug("transfer claimed", zap.String("transfer_id", id))
	return rec, nil
}

// Remove терминально удаляет запись из реестра. Живые сессии со старой
// ссылкой могут дочитать свои каналы, но запись больше не находима.
func (reg *Registry) Remove(id string) {
	reg.mu.Lock()
	_, ok := reg.records[id]
	delete(reg.records, id)
	reg.mu.Unlock()

	if ok {
		reg.col.TransferRemoved()
		reg.log.Debug("transfer removed", zap.String("transfer_id", id))
	}
}

// Len возвращает количество записей в реестре
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.records)
}

// snapshot копирует срез записей для обхода без удержания блокировки
func (reg *Registry) snapshot() []*Record {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*Record, 0, len(reg.records))
	for _, rec := range reg.records {
		out = append(out, rec)
	}
	return out
}
