// Package config описывает конфигурацию процесса filet.
// Значения берутся из файла TOML (если указан), поверх накладываются
// переменные окружения, а флаги командной строки применяет cmd.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Gammanik/filet/internal/relay"
)

// Duration обертка над time.Duration для строк вида "30s" в TOML
type Duration struct {
	time.Duration
}

// UnmarshalText разбирает длительность из текста
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config конфигурация реле
type Config struct {
	// Port порт HTTP-сервера
	Port int `toml:"port"`

	// RelayCapacity ёмкость relay-канала в чанках
	RelayCapacity int `toml:"relay_capacity"`

	// MaxChunkBytes максимальный размер одного чанка
	MaxChunkBytes int64 `toml:"max_chunk_bytes"`

	// MaxDeclaredBytes потолок заявленного размера файла
	MaxDeclaredBytes uint64 `toml:"max_declared_bytes"`

	ClaimWait       Duration `toml:"claim_wait"`
	SweepInterval   Duration `toml:"sweep_interval"`
	TerminalGrace   Duration `toml:"terminal_grace"`
	IdleRegistered  Duration `toml:"idle_registered"`
	IdleSenderReady Duration `toml:"idle_sender_ready"`
	IdleClaimed     Duration `toml:"idle_claimed"`
	IdleStreaming   Duration `toml:"idle_streaming"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	limits := relay.DefaultLimits()
	timeouts := relay.DefaultTimeouts()
	return &Config{
		Port:             4010,
		RelayCapacity:    limits.RelayCapacity,
		MaxChunkBytes:    limits.MaxChunkBytes,
		MaxDeclaredBytes: limits.MaxDeclaredBytes,
		ClaimWait:        Duration{timeouts.ClaimWait},
		SweepInterval:    Duration{timeouts.SweepInterval},
		TerminalGrace:    Duration{timeouts.TerminalGrace},
		IdleRegistered:   Duration{timeouts.IdleRegistered},
		IdleSenderReady:  Duration{timeouts.IdleSenderReady},
		IdleClaimed:      Duration{timeouts.IdleClaimed},
		IdleStreaming:    Duration{timeouts.IdleStreaming},
	}
}

// Load читает конфигурацию: файл (опционально) и окружение
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	// PORT из окружения перекрывает файл, но не флаг
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid PORT value: %q", v)
		}
		cfg.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.RelayCapacity <= 0 {
		return fmt.Errorf("relay_capacity must be positive")
	}
	if c.MaxChunkBytes <= 0 {
		return fmt.Errorf("max_chunk_bytes must be positive")
	}
	if c.MaxDeclaredBytes == 0 {
		return fmt.Errorf("max_declared_bytes must be positive")
	}
	if c.SweepInterval.Duration <= 0 || c.ClaimWait.Duration <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// Limits переводит конфигурацию в ограничения протокола
func (c *Config) Limits() relay.Limits {
	limits := relay.DefaultLimits()
	limits.RelayCapacity = c.RelayCapacity
	limits.MaxChunkBytes = c.MaxChunkBytes
	limits.MaxDeclaredBytes = c.MaxDeclaredBytes
	return limits
}

// Timeouts переводит конфигурацию в тайм-ауты жизненного цикла
func (c *Config) Timeouts() relay.Timeouts {
	return relay.Timeouts{
		ClaimWait:       c.ClaimWait.Duration,
		SweepInterval:   c.SweepInterval.Duration,
		TerminalGrace:   c.TerminalGrace.Duration,
		IdleRegistered:  c.IdleRegistered.Duration,
		IdleSenderReady: c.IdleSenderReady.Duration,
		IdleClaimed:     c.IdleClaimed.Duration,
		IdleStreaming:   c.IdleStreaming.Duration,
	}
}
