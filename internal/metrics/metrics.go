// Package metrics собирает счётчики реле для Prometheus.
// Метки и значения никогда не содержат имён файлов и байтов полезной
// нагрузки: наружу уходят только агрегаты.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector набор метрик реле. Нулевой указатель безопасен: все методы
// на nil просто ничего не делают, поэтому метрики можно не подключать
// в тестах.
type Collector struct {
	transfersCreated   prometheus.Counter
	transfersCompleted prometheus.Counter
	transfersCancelled prometheus.Counter
	activeTransfers    prometheus.Gauge
	relayedBytes       prometheus.Counter
}

// NewCollector регистрирует метрики в переданном реестре
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		transfersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "filet",
			Name:      "transfers_created_total",
			Help:      "Number of transfer records created.",
		}),
		transfersCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "filet",
			Name:      "transfers_completed_total",
			Help:      "Number of transfers that delivered all bytes.",
		}),
		transfersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "filet",
			Name:      "transfers_cancelled_total",
			Help:      "Number of transfers cancelled before completion.",
		}),
		activeTransfers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "filet",
			Name:      "active_transfers",
			Help:      "Transfer records currently held in the registry.",
		}),
		relayedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "filet",
			Name:      "relayed_bytes_total",
			Help:      "Opaque payload bytes accepted into relay channels.",
		}),
	}
}

// TransferCreated учитывает создание записи
func (c *Collector) TransferCreated() {
	if c == nil {
		return
	}
	c.transfersCreated.Inc()
	c.activeTransfers.Inc()
}

// TransferCompleted учитывает успешное завершение
func (c *Collector) TransferCompleted() {
	if c == nil {
		return
	}
	c.transfersCompleted.Inc()
}

// TransferCancelled учитывает отмену
func (c *Collector) TransferCancelled() {
	if c == nil {
		return
	}
	c.transfersCancelled.Inc()
}

// TransferRemoved учитывает удаление записи из реестра
func (c *Collector) TransferRemoved() {
	if c == nil {
		return
	}
	c.activeTransfers.Dec()
}

// AddRelayedBytes учитывает принятые в relay байты
func (c *Collector) AddRelayedBytes(n int) {
	if c == nil {
		return
	}
	c.relayedBytes.Add(float64(n))
}
