// cmd/filet/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Gammanik/filet/internal/api"
	"github.com/Gammanik/filet/internal/config"
	"github.com/Gammanik/filet/internal/direct"
	"github.com/Gammanik/filet/internal/metrics"
	"github.com/Gammanik/filet/internal/relay"
)

func main() {
	root := &cobra.Command{
		Use:          "filet",
		Short:        "Encrypted file transfer",
		SilenceUsage: true,
		// Без подкоманды запускаем веб-реле
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWeb(0, "")
		},
	}

	var webPort int
	var configPath string
	webCmd := &cobra.Command{
		Use:   "web",
		Short: "Start the relay web server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWeb(webPort, configPath)
		},
	}
	webCmd.Flags().IntVarP(&webPort, "port", "p", 0, "Port to listen on")
	webCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to TOML config file")

	var servePort int
	var serveHost string
	serveCmd := &cobra.Command{
		Use:   "serve FILE...",
		Short: "Serve files directly from this machine",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(args, servePort, serveHost)
		},
	}
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 4010, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Public hostname or IP for download links")
	serveCmd.MarkFlagRequired("host")

	root.AddCommand(webCmd, serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("FILET_DEBUG") != "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// runWeb запускает реле: реестр, джанитор и HTTP-сервер
func runWeb(portFlag int, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// Флаг сильнее файла и окружения
	if portFlag != 0 {
		cfg.Port = portFlag
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	clk := clock.New()
	promReg := prometheus.NewRegistry()
	col := metrics.NewCollector(promReg)

	registry := relay.NewRegistry(log, clk, cfg.RelayCapacity, col)
	janitor := relay.NewJanitor(registry, log, clk, cfg.Timeouts())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go janitor.Run(ctx)

	handler := &api.TransferHandler{
		Registry: registry,
		Log:      log,
		Clock:    clk,
		Limits:   cfg.Limits(),
		Timeouts: cfg.Timeouts(),
		Gatherer: promReg,
	}

	server := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: handler.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	log.Info("filet listening", zap.String("addr", fmt.Sprintf("http://localhost:%d", cfg.Port)))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		server.Close()
	}
	return nil
}

// runServe раздает локальные файлы напрямую с этой машины
func runServe(paths []string, port int, host string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	lib := direct.NewLibrary()

	fmt.Println()
	for _, path := range paths {
		token, file, err := lib.Share(path)
		if err != nil {
			return err
		}

		portSuffix := ""
		if port != 80 {
			portSuffix = ":" + strconv.Itoa(port)
		}

		fmt.Printf("  %s (%s)\n", file.Filename, formatSize(file.Size))
		fmt.Printf("  http://%s%s/d/%s#%s\n", host, portSuffix, token, file.KeyString())
		fmt.Printf("  curl -OJ http://%s%s/dl/%s\n", host, portSuffix, token)
		fmt.Println()
	}

	handler := &direct.Handler{Lib: lib, Log: log}
	server := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: handler.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	log.Info("serving files",
		zap.Int("count", lib.Len()),
		zap.String("addr", fmt.Sprintf("http://%s:%d", host, port)))
	log.Info("press Ctrl+C to stop")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("cannot bind to port %d: %w", port, err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		server.Close()
	}
	return nil
}

// formatSize форматирует размер файла для вывода
func formatSize(bytes uint64) string {
	switch {
	case bytes < 1<<10:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1<<20:
		return fmt.Sprintf("%.1f KB", float64(bytes)/(1<<10))
	case bytes < 1<<30:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1<<20))
	default:
		return fmt.Sprintf("%.2f GB", float64(bytes)/(1<<30))
	}
}
