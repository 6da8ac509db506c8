package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	chatwidget "github.com/techvision/chat-widget"
	"github.com/techvision/chat-widget/internal/chat"
	"github.com/techvision/chat-widget/internal/handlers"
	"github.com/techvision/chat-widget/internal/logging"
)

func main() {
	cfgPath := flag.String("config", defaultConfigPath(), "path to the yaml config file")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		log.Printf("Failed to open log file, logging to stderr: %v", err)
	}
	defer logCloser.Close()

	client := chat.NewClient(cfg.Chat, chat.NewHTTPClient(cfg.Chat.Timeout), logger)

	m, err := handlers.NewMain(client, handlers.Config{
		Greeting:   cfg.Chat.Greeting,
		SessionTTL: cfg.Session.TTL,
	}, logger)
	if err != nil {
		logger.Error("Failed to create handlers", slog.String("err", err.Error()))
		os.Exit(1)
	}

	// Serve static files
	staticFS, err := fs.Sub(chatwidget.StaticFS, "static")
	if err != nil {
		panic(err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/chat/messages", m.HandleMessages)
	mux.HandleFunc("/chat/transcript", m.HandleTranscript)
	mux.HandleFunc("/sse", m.HandleSSE)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting",
			slog.String("addr", srv.Addr),
			slog.String("endpoint", cfg.Chat.URL))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", slog.String("err", err.Error()))

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}
}

func defaultConfigPath() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(cfgDir, "techvision-chat", "config.yaml")
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-config path]\n\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "The chat endpoint may also be given through %s and %s.\n\n", endpointEnv, credentialEnv)
		flag.PrintDefaults()
	}
}
