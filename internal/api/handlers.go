package api

import (
	"encoding/json"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Gammanik/filet/internal/relay"
)

// TransferHandler обрабатывает HTTP-поверхность реле: метаданные
// передачи и апгрейды WS для обеих ролей
type TransferHandler struct {
	Registry *relay.Registry
	Log      *zap.Logger
	Clock    clock.Clock
	Limits   relay.Limits
	Timeouts relay.Timeouts

	// Gatherer реестр метрик для /metrics; nil отключает эндпоинт
	Gatherer prometheus.Gatherer

	upgrader websocket.Upgrader
}

// Router собирает маршруты реле
func (h *TransferHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Health).Methods("GET")
	r.HandleFunc("/api/transfer/{id}", h.TransferInfo).Methods("GET")
	r.HandleFunc("/ws/send", h.SendSocket).Methods("GET")
	r.HandleFunc("/ws/recv/{id}", h.RecvSocket).Methods("GET")
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	return r
}

// Health отвечает на проверку живости
func (h *TransferHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":      true,
		"service": "filet",
	})
}

// TransferInfo возвращает метаданные передачи для страницы получателя.
// Доступно, пока поток не начался: страницу можно перезагружать вплоть
// до фазы claimed.
func (h *TransferHandler) TransferInfo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !relay.ValidTransferID(id) {
		http.Error(w, "malformed transfer id", http.StatusBadRequest)
		return
	}

	rec, ok := h.Registry.Get(id)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch rec.Phase() {
	case relay.PhaseSenderReady, relay.PhaseClaimed:
		meta := rec.Metadata()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"filename": meta.Filename,
			"size":     meta.Size,
		})
	case relay.PhaseRegistered:
		http.Error(w, "not found", http.StatusNotFound)
	default:
		http.Error(w, "gone", http.StatusGone)
	}
}

// SendSocket апгрейдит соединение отправителя и ведет его сессию
func (h *TransferHandler) SendSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := relay.NewSenderSession(h.Registry, h.Log, h.Limits, conn)
	session.Run(r.Context())
}

// RecvSocket апгрейдит соединение получателя и ведет его сессию
func (h *TransferHandler) RecvSocket(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !relay.ValidTransferID(id) {
		http.Error(w, "malformed transfer id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := relay.NewReceiverSession(h.Registry, h.Log, h.Clock, h.Timeouts, conn, id)
	session.Run(r.Context())
}
