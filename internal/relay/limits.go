package relay

import "time"

// Limits ограничения протокола
type Limits struct {
	// RelayCapacity ёмкость relay-канала в чанках; вместе с MaxChunkBytes
	// ограничивает буферизацию одной передачи
	RelayCapacity int

	// MaxChunkBytes максимальный размер одного бинарного кадра
	MaxChunkBytes int64

	// MaxDeclaredBytes потолок заявленного размера файла
	MaxDeclaredBytes uint64

	// MaxFilenameBytes максимальная длина имени файла в байтах
	MaxFilenameBytes int
}

// Timeouts тайм-ауты жизненного цикла
type Timeouts struct {
	// ClaimWait сколько получатель ждёт hello отправителя перед отказом
	ClaimWait time.Duration

	// SweepInterval период обхода реестра джанитором
	SweepInterval time.Duration

	// TerminalGrace сколько конечная запись живёт до удаления
	TerminalGrace time.Duration

	// Пофазные пределы простоя неконечных записей
	IdleRegistered  time.Duration
	IdleSenderReady time.Duration
	IdleClaimed     time.Duration
	IdleStreaming   time.Duration
}

// DefaultLimits возвращает ограничения по умолчанию
func DefaultLimits() Limits {
	return Limits{
		RelayCapacity:    4,
		MaxChunkBytes:    4 << 20,
		MaxDeclaredBytes: 8 << 30,
		MaxFilenameBytes: 1024,
	}
}

// DefaultTimeouts возвращает тайм-ауты по умолчанию
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ClaimWait:       10 * time.Second,
		SweepInterval:   30 * time.Second,
		TerminalGrace:   5 * time.Second,
		IdleRegistered:  5 * time.Minute,
		IdleSenderReady: 10 * time.Minute,
		IdleClaimed:     30 * time.Second,
		IdleStreaming:   5 * time.Minute,
	}
}

// idleFor возвращает предел простоя для неконечной фазы
func (t Timeouts) idleFor(p Phase) time.Duration {
	switch p {
	case PhaseRegistered:
		return t.IdleRegistered
	case PhaseSenderReady:
		return t.IdleSenderReady
	case PhaseClaimed:
		return t.IdleClaimed
	default:
		return t.IdleStreaming
	}
}
