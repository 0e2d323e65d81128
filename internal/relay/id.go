package relay

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
)

// Количество случайных байт в идентификаторе передачи (144 бита энтропии,
// в base64url это ровно 24 символа)
const transferIDBytes = 18

// Допустимый формат идентификатора во входящих запросах
var transferIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{22,32}$`)

// NewTransferID генерирует новый идентификатор передачи.
// Идентификатор непрозрачный, URL-safe и выбирается только сервером.
func NewTransferID() (string, error) {
	buf := make([]byte, transferIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate transfer id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ValidTransferID проверяет, что строка похожа на выданный сервером
// идентификатор. Всё остальное отбрасываем до обращения к реестру.
func ValidTransferID(id string) bool {
	return transferIDPattern.MatchString(id)
}
