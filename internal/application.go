package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rocketscienceinc/gravity-tictactoe/internal/config"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/repository"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/repository/storage"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/service"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/tictactoe"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/transport/replica"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/usecase"
	"github.com/rocketscienceinc/gravity-tictactoe/transport/rest"
	"github.com/rocketscienceinc/gravity-tictactoe/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	if conf.Mode == config.ModeReplica {
		return runReplica(ctx, logger, conf)
	}

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedisStorage(ctx, redisAddrString)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err := redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	playerRepo := repository.NewPlayerRepository(redisStorage.Connection)
	matchRepo := repository.NewMatchRepository(redisStorage.Connection)

	engine := tictactoe.NewSearchEngine(rand.NewSource(time.Now().UnixNano()))
	botService := service.NewBotService(logger, engine)

	gameManager := usecase.NewGameManager(logger, playerRepo, matchRepo, botService, usecase.Options{
		ThinkDelay:        conf.Bot.ThinkDelay,
		DefaultVariant:    conf.Match.DefaultVariant,
		DefaultDifficulty: conf.Bot.DefaultDifficulty,
	})
	defer gameManager.Close()

	wsServer := websocket.New(logger, gameManager)
	gameManager.Subscribe(wsServer)

	if conf.Nats.Enabled() {
		conn, err := replica.Connect(logger, conf.Nats.URL)
		if err != nil {
			return fmt.Errorf("could not connect to nats: %w", err)
		}
		defer conn.Close()

		gameManager.Subscribe(replica.NewPublisher(logger, conn, conf.Nats.SubjectPrefix))
		log.Info("Publishing match events", "subject", conf.Nats.SubjectPrefix)
	}

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		if httpErr := rest.Start(ctx, logger, conf.HTTPPort, gameManager); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

// runReplica - mirrors matches from the nats feed and serves them read-only over HTTP.
func runReplica(ctx context.Context, logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	conn, err := replica.Connect(logger, conf.Nats.URL)
	if err != nil {
		return fmt.Errorf("could not connect to nats: %w", err)
	}
	defer conn.Close()

	views := replica.NewReplica()

	sub, err := replica.Subscribe(logger, conn, conf.Nats.SubjectPrefix, views.Apply)
	if err != nil {
		return fmt.Errorf("could not subscribe to match events: %w", err)
	}

	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Error("could not unsubscribe from match events", "error", err)
		}
	}()

	log.Info("Mirroring match events", "subject", conf.Nats.SubjectPrefix)

	if err := rest.Start(ctx, logger, conf.HTTPPort, views); err != nil {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}
