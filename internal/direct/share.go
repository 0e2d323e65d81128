// Package direct реализует режим serve: раздачу локальных файлов
// напрямую с машины отправителя. Каждому файлу выдается токен и
// одноразовый ключ AES-256-GCM; ключ попадает только во фрагмент
// ссылки и на сервер от получателя не возвращается.
package direct

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"github.com/Gammanik/filet/internal/relay"
)

// SharedFile локальный файл, доступный по токену
type SharedFile struct {
	Path     string   // абсолютный путь к файлу
	Filename string   // имя файла для получателя
	Size     uint64   // размер в байтах
	MimeType string   // тип содержимого по расширению
	Key      [32]byte // ключ AES-256-GCM этого файла
}

// KeyString возвращает ключ в base64url без набивки для фрагмента ссылки
func (f *SharedFile) KeyString() string {
	return base64.RawURLEncoding.EncodeToString(f.Key[:])
}

// Library таблица раздаваемых файлов
type Library struct {
	mu    sync.RWMutex
	files map[string]*SharedFile
}

// NewLibrary создает пустую таблицу
func NewLibrary() *Library {
	return &Library{files: make(map[string]*SharedFile)}
}

// Share регистрирует файл и возвращает его токен
func (l *Library) Share(path string) (string, *SharedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, fmt.Errorf("file not found: %s", path)
	}
	if !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("not a file: %s", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	file := &SharedFile{
		Path:     abs,
		Filename: filepath.Base(path),
		Size:     uint64(info.Size()),
		MimeType: mimeType,
	}
	if _, err := rand.Read(file.Key[:]); err != nil {
		return "", nil, fmt.Errorf("failed to generate file key: %w", err)
	}

	token, err := relay.NewTransferID()
	if err != nil {
		return "", nil, err
	}

	l.mu.Lock()
	l.files[token] = file
	l.mu.Unlock()

	return token, file, nil
}

// Get возвращает файл по токену
func (l *Library) Get(token string) (*SharedFile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	file, ok := l.files[token]
	return file, ok
}

// Len возвращает количество раздаваемых файлов
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.files)
}
