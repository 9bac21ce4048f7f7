package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/gravity-tictactoe/internal/entity"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/pkg"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/tictactoe"
)

const (
	sessionCookieName   = "user_session"
	defaultGraceTimeout = 30 * time.Second
	disconnectCheckTick = time.Second
)

var errNotConnected = errors.New("player is not connected")

type gameUseCase interface {
	GetOrCreatePlayer(ctx context.Context, id string) (*entity.Player, error)
	GetOrCreateGame(ctx context.Context, playerID, gameType string, difficulty entity.Difficulty) (*entity.Match, error)
	JoinGame(ctx context.Context, gameID, playerID string) (*entity.Match, error)
	MakeTurn(ctx context.Context, playerID string, cell int) (*entity.Match, tictactoe.MoveResult, error)
	Rematch(ctx context.Context, playerID string) (*entity.Match, error)
	LeaveGame(ctx context.Context, playerID string) (*entity.Match, error)
	CurrentGame(ctx context.Context, playerID string) (*entity.Match, error)
}

type handlerFunc func(ctx context.Context, client *client, payload Payload) error

type Server struct {
	logger      *slog.Logger
	gameUseCase gameUseCase
	upgrader    websocket.Upgrader

	handlers map[string]handlerFunc

	connectionsMutex sync.RWMutex
	connections      map[string]*client
	rooms            map[string]map[string]struct{}

	disconnectedMutex   sync.Mutex
	disconnectedPlayers map[string]time.Time
	graceTimeout        time.Duration
}

func New(logger *slog.Logger, gameUseCase gameUseCase) *Server {
	server := &Server{
		logger:      logger.With("component", "websocket"),
		gameUseCase: gameUseCase,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},

		handlers: make(map[string]handlerFunc),

		connections:         make(map[string]*client),
		rooms:               make(map[string]map[string]struct{}),
		disconnectedPlayers: make(map[string]time.Time),
		graceTimeout:        defaultGraceTimeout,
	}

	server.handlers[actionConnect] = server.handleConnect
	server.handlers[actionGameNew] = server.handleNewGame
	server.handlers[actionGameJoin] = server.handleJoinGame
	server.handlers[actionGameTurn] = server.handleGameTurn
	server.handlers[actionGameRematch] = server.handleRematch
	server.handlers[actionGameLeave] = server.handleGameLeave

	return server
}

// Handler - returns the http handler serving /ws.
func (that *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.upgradeToWebSocket(ctx, w, r)
	})

	return mux
}

// Start - starts WebSocket server and blocks until ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     that.Handler(ctx),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
	}

	go that.watchDisconnected(ctx)

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shutdown websocket server", "error", err)
		}
	}()

	that.logger.Info("websocket server started", "port", port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Notify - pushes a match event to every connected player of the match.
// It never blocks; a client whose buffer is full misses the event.
func (that *Server) Notify(event tictactoe.Event) {
	that.connectionsMutex.RLock()
	defer that.connectionsMutex.RUnlock()

	room, ok := that.rooms[event.MatchID]
	if !ok {
		return
	}

	msg := encodeMessage(actionGameEvent, Payload{Event: &event})
	for playerID := range room {
		conn, ok := that.connections[playerID]
		if !ok {
			continue
		}

		if !conn.enqueue(msg) {
			that.logger.Warn("dropped game event", "playerID", playerID, "gameID", event.MatchID, "kind", event.Kind)
		}
	}
}

// upgradeToWebSocket - upgrades the connection to WebSocket.
func (that *Server) upgradeToWebSocket(ctx context.Context, writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")

	sessionID, header := that.sessionCookie(req)

	conn, err := that.upgrader.Upgrade(writer, req, header)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	defer conn.Close()

	log.Info("WebSocket connection established", "session", sessionID)

	client := newClient(conn, sessionID)

	done := make(chan struct{})
	go func() {
		defer close(done)

		if err := client.writePump(); err != nil {
			log.Debug("write pump stopped", "error", err)
			_ = conn.Close()
		}
	}()

	if err = that.handleMessages(ctx, client); err != nil {
		log.Debug("connection closed", "error", err)
	}

	that.handleDisconnect(client)
	client.close()
	<-done
}

// handleMessages - processes messages from the client.
func (that *Server) handleMessages(ctx context.Context, client *client) error {
	log := that.logger.With("method", "handleMessages")

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return err
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			that.sendErrorResponse(client, actionError, "malformed message")
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)
			that.sendErrorResponse(client, message.Action, "unknown action")
			continue
		}

		var payload Payload
		if len(message.Payload) > 0 {
			if err = json.Unmarshal(message.Payload, &payload); err != nil {
				log.Error("failed to unmarshal payload", "action", message.Action, "error", err)
				that.sendErrorResponse(client, message.Action, "malformed payload")
				continue
			}
		}

		if err = handler(ctx, client, payload); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

// sessionCookie - returns the user session and the header that sets it on a new one.
func (that *Server) sessionCookie(req *http.Request) (string, http.Header) {
	log := that.logger.With("method", "sessionCookie")

	cookie, err := req.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		log.Debug("session cookie found", "cookie", cookie.Value)
		return cookie.Value, nil
	}

	cookie = &http.Cookie{
		Name:    sessionCookieName,
		Value:   pkg.GenerateNewSessionID(),
		Expires: time.Now().Add(24 * time.Hour),
		Path:    "/ws",
	}

	header := http.Header{}
	header.Add("Set-Cookie", cookie.String())

	log.Debug("session cookie not found, new one created", "cookie", cookie.Value)

	return cookie.Value, header
}

// watchDisconnected - ends the games of players that did not come back in time.
func (that *Server) watchDisconnected(ctx context.Context) {
	ticker := time.NewTicker(disconnectCheckTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, playerID := range that.expiredPlayers(now) {
				that.handleOpponentOut(ctx, playerID)
			}
		}
	}
}

func (that *Server) expiredPlayers(now time.Time) []string {
	that.disconnectedMutex.Lock()
	defer that.disconnectedMutex.Unlock()

	var expired []string
	for playerID, at := range that.disconnectedPlayers {
		if now.Sub(at) >= that.graceTimeout {
			expired = append(expired, playerID)
			delete(that.disconnectedPlayers, playerID)
		}
	}

	return expired
}
