package relay

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Janitor периодически обходит реестр и вычищает осиротевшие записи:
// конечные после льготного окна, зависшие - с переводом в cancelled,
// чтобы живые сессии сразу увидели остановку.
type Janitor struct {
	reg *Registry
	log *zap.Logger
	clk clock.Clock
	cfg Timeouts
}

// NewJanitor создает джанитор над реестром
func NewJanitor(reg *Registry, log *zap.Logger, clk clock.Clock, cfg Timeouts) *Janitor {
	return &Janitor{reg: reg, log: log, clk: clk, cfg: cfg}
}

// Run крутит цикл обхода до отмены контекста
func (j *Janitor) Run(ctx context.Context) {
	ticker := j.clk.Ticker(j.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep один проход по реестру
func (j *Janitor) Sweep() {
	now := j.clk.Now()

	for _, rec := range j.reg.snapshot() {
		phase := rec.Phase()
		idle := now.Sub(rec.LastActivity())

		if phase.Terminal() {
			if idle >= j.cfg.TerminalGrace {
				j.reg.Remove(rec.ID)
			}
			continue
		}

		if idle >= j.cfg.idleFor(phase) {
			if rec.Cancel(KindTimeout) {
				j.log.Info("transfer timed out",
					zap.String("transfer_id", rec.ID),
					zap.String("phase", phase.String()),
					zap.Duration("idle", idle))
			}
			j.reg.Remove(rec.ID)
		}
	}
}
