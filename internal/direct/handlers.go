package direct

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Gammanik/filet/internal/relay"
)

// Размер блока чтения файла при WS-раздаче
const chunkSize = 1 << 20

// Handler обрабатывает HTTP-поверхность режима serve
type Handler struct {
	Lib *Library
	Log *zap.Logger

	upgrader websocket.Upgrader
}

// Router собирает маршруты режима serve
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/file/{token}", h.FileMetadata).Methods("GET")
	r.HandleFunc("/dl/{token}", h.Download).Methods("GET")
	r.HandleFunc("/ws/dl/{token}", h.WsDownload).Methods("GET")
	return r
}

// FileMetadata возвращает метаданные раздаваемого файла
func (h *Handler) FileMetadata(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	file, ok := h.lookup(token)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"filename":  file.Filename,
		"size":      file.Size,
		"mime_type": file.MimeType,
	})
}

// Download отдает файл открытым текстом для curl и подобных клиентов
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	entry, ok := h.lookup(token)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	file, err := os.Open(entry.Path)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		h.Log.Error("failed to open shared file", zap.String("path", entry.Path), zap.Error(err))
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", entry.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entry.Filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", entry.Size))

	if _, err := io.Copy(w, file); err != nil {
		h.Log.Warn("client disconnected during download", zap.Error(err))
	}
}

// WsDownload шифрует файл почанково и отдает по WS. Формат кадра тот
// же, что у браузерного отправителя: 12-байтовый нонс, затем шифртекст
// AES-256-GCM.
func (h *Handler) WsDownload(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	entry, ok := h.lookup(token)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.stream(conn, token, entry)
}

func (h *Handler) stream(conn *websocket.Conn, token string, entry *SharedFile) {
	meta := relay.ControlMessage{
		Type:     relay.MsgMetadata,
		Filename: entry.Filename,
		Size:     entry.Size,
	}
	if err := conn.WriteJSON(meta); err != nil {
		return
	}

	block, err := aes.NewCipher(entry.Key[:])
	if err != nil {
		h.sendError(conn, "internal error")
		return
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		h.sendError(conn, "internal error")
		return
	}

	file, err := os.Open(entry.Path)
	if err != nil {
		h.Log.Error("failed to open shared file", zap.String("path", entry.Path), zap.Error(err))
		h.sendError(conn, "failed to open file")
		return
	}
	defer file.Close()

	buf := make([]byte, chunkSize)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			nonce := make([]byte, aead.NonceSize())
			if _, err := rand.Read(nonce); err != nil {
				h.sendError(conn, "internal error")
				return
			}
			payload := aead.Seal(nonce, nonce, buf[:n], nil)
			if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				h.Log.Warn("client disconnected during transfer")
				return
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			h.Log.Warn("error reading shared file", zap.Error(err))
			h.sendError(conn, "read error")
			return
		}
	}

	_ = conn.WriteJSON(relay.ControlMessage{Type: "done"})
	h.Log.Info("direct transfer complete",
		zap.String("token", token),
		zap.String("filename", entry.Filename))
}

func (h *Handler) sendError(conn *websocket.Conn, text string) {
	_ = conn.WriteJSON(relay.ControlMessage{Type: relay.MsgError, Message: text})
}

func (h *Handler) lookup(token string) (*SharedFile, bool) {
	if !relay.ValidTransferID(token) {
		return nil, false
	}
	return h.Lib.Get(token)
}
