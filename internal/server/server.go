package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/core"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/metrics"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/server/middleware"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/pkg/config"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/pkg/transport"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// App owns the HTTP surface: the websocket endpoint for clients and the
// administrative API for operators.
type App struct {
	logger *slog.Logger
	core   *core.Core
	config *config.Config
	wg     sync.WaitGroup
	http   *http.Server

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, c *core.Core) *App {
	app := &App{
		logger: logger,
		core:   c,
		config: cfg,
		ctx:    rootCtx,
	}

	mux := chi.NewRouter()
	mux.Use(chimiddleware.Recoverer)

	mux.Handle("/ws", middleware.Chain(
		http.HandlerFunc(app.upgradeHandler),
		middleware.RequestMetadataMiddleware(),
		middleware.NewRequestLogger(app.logger),
		middleware.NewAuthMiddleware(logger, cfg.Server.Auth.JWTSecret),
	))

	mux.Route("/admin", func(r chi.Router) {
		r.Get("/stats", app.handleStats)
		r.Get("/clients", app.handleClients)
		r.Post("/notifications", app.handlePostNotification)
		r.Get("/notifications", app.handleNotificationHistory)
		r.Post("/notifications/{id}/read", app.handleMarkRead)
		r.Post("/notifications/{id}/ack", app.handleAcknowledge)
		r.Post("/cleanup", app.handleCleanup)
		r.Get("/metrics", app.handleMetrics)
	})
	mux.Handle("/metrics", metrics.Handler())

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}
	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.Claims.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout: a.config.Transport.ReadTimeout,
			SendBuffer:  a.config.Transport.SendBuffer,
		},
		nil,
		nil,
		a.logger,
	)

	// Registration joins the tenant, user and role rooms in one step. A
	// previous session for the same user is replaced and closed.
	regConn, replaced, err := a.core.Registry.Register(reqMeta.Claims, conn)
	if err != nil {
		connLogger.Error("Failed to register connection", slog.Any("error", err))
		conn.Close(err)
		return
	}
	if replaced != nil {
		connLogger.Info("Replacing previous session", slog.String("oldConnID", replaced.ID.String()))
		replaced.Transport.Close(errors.New("replaced by new connection"))
	}

	conn.SetOnMessageHandler(a.handleClientMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("Deregistering connection due to closure", slog.String("connID", id.String()))
		a.core.Registry.Unregister(id)
	})

	connLogger.Info("User connection fully established",
		slog.Int("tenantID", regConn.TenantID),
		slog.String("role", regConn.Role),
	)
	conn.Run()
	<-conn.Done()
}

// clientMessage is the inbound frame shape. Clients only send heartbeats and
// notification-state updates; all routing decisions are server-originated.
type clientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func (a *App) handleClientMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	var cm clientMessage
	if err := json.Unmarshal(msg, &cm); err != nil {
		a.logger.Warn("Failed to unmarshal client message", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}

	switch cm.Event {
	case "ping":
		if conn, ok := a.core.Registry.Get(connID); ok {
			conn.Transport.Touch()
			conn.Transport.Send([]byte(`{"event":"pong"}`))
		}
	case "notification:read":
		id := gjson.GetBytes(cm.Payload, "id").String()
		if !a.core.Rules.MarkRead(id) {
			a.logger.Debug("Unknown notification id in read update", slog.String("id", id))
		}
	case "notification:ack":
		id := gjson.GetBytes(cm.Payload, "id").String()
		if !a.core.Rules.Acknowledge(id) {
			a.logger.Debug("Unknown notification id in ack update", slog.String("id", id))
		}
	default:
		a.logger.Warn("Received unknown event", slog.String("event", cm.Event), slog.String("connID", connID.String()))
	}
}

// Shutdown runs the graceful teardown sequence for the HTTP surface.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.logger.Info("Closing all active connections...")
	a.core.Registry.CloseAll(errors.New("graceful shutdown"))

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
