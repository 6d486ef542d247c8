package main

import (
	"chat-hub/auth"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/infrastructure/grpc/server"
	"chat-hub/infrastructure/realtime"
	"chat-hub/infrastructure/rest"
	"chat-hub/internal"
	"chat-hub/moderation"
	"chat-hub/repositories"
	"chat-hub/runtime"
	"chat-hub/runtime/workers"
	"chat-hub/search"
	"chat-hub/services"
	"chat-hub/upload"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Hub terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Returning instead of exiting lets the deferred closes run.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB, Bluge)
	db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	if logger.Enabled(ctx, slog.LevelDebug) {
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))
		database.StartDebugServer(db, config.DebugPort, "/inspect", repositories.InspectMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Optional moderation
	var censorer services.Censorer
	if config.CensoredWordsPath != "" {
		words, err := moderation.LoadWords(os.DirFS(filepath.Dir(config.CensoredWordsPath)), filepath.Base(config.CensoredWordsPath))
		if err != nil {
			return exitConfig, fmt.Errorf("cannot load censored words: %w", err)
		}
		moderator, err := moderation.NewModerator(words, charReplacement, logger)
		if err != nil {
			return exitConfig, err
		}
		censorer = moderator
	}

	// 4. Delivery core
	store := repositories.NewConversationStore(db, logger, config.LimitMessages)
	registry := runtime.NewRegistry()
	groups := runtime.NewGroupTracker()
	permanentEvents := make(chan event.Event, config.BufferSize)
	dispatcher := runtime.NewDispatcher(logger, store, registry, groups, permanentEvents)
	messages := services.NewMessageService(logger, store, censorer, config.MaxContentLength)
	presence := services.NewPresenceService(logger, store, registry, dispatcher)
	hub := services.NewHub(logger, groups, dispatcher, presence, messages)

	index := search.NewIndex(logger, blugeWriter)
	conversations := services.NewConversationService(logger, store, index)
	uploads := upload.NewService(logger, store, config.UploadDir, config.MaxUploadSize)

	// 5. Background workers
	activity := workers.NewActivityCounter()
	monitoring := workers.NewHealthMonitoringWorker(logger, registry,
		[]workers.NamedChannel{{Name: "permanent_events", Channel: permanentEvents}}, activity, config.MetricInterval)
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		workers.NewEventFanout(logger, permanentEvents, config.SinkTimeout, index, activity),
		monitoring,
	)
	supervisorDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervisorDone)
	}()

	// 6. Transports
	tokens := auth.NewTokens(config.JWTSecret, config.AuthTokenDuration)
	live := realtime.NewServer(logger, hub, config.ConnectionBufferSize, config.OperationTimeout)
	handler := rest.NewHandler(logger, conversations, uploads, monitoring, config.MaxUploadSize)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           rest.NewRouter(tokens, handler, live, config.UploadDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthAddress := fmt.Sprintf("%s:%d", config.Host, config.HealthPort)
	healthListener, err := net.Listen("tcp", healthAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", healthAddress, err)
	}
	health := server.NewHealthServer(logger)

	errChan := make(chan error, 2)
	go func() {
		if err := health.Serve(healthListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC health server error: %w", err)
		}
	}()
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	health.SetServing(true)

	// 7. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 8. Graceful shutdown: stop accepting, close live sessions, drain workers.
	health.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := live.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Live sessions shutdown incomplete", "error", err)
	}
	health.Stop(shutdownCtx)
	sup.Stop()
	select {
	case <-supervisorDone:
	case <-shutdownCtx.Done():
		logger.Warn("Workers did not stop in time")
	}
	logger.Info("Hub stopped cleanly", "connections_left", registry.Count())
	return code, runErr
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG).WithBypassLockGuard(true)
	}
	return options.WithLoggingLevel(badger.INFO)
}
