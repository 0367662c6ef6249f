package api

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gorilla/websocket"

	"github.com/avelasqz/multichat-back/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin more strictly
		return true
	},
}

// WebSocketHandler upgrades the connection and blocks in the session loop
// until the client disconnects. Authentication happens in-band: the first
// frame must be LOGIN.
func (r *Router) WebSocketHandler(w http.ResponseWriter, req *http.Request) {
	ctx, span := otel.Tracer("websocket-server").Start(req.Context(), "WebSocketConnection")
	defer span.End()

	span.SetAttributes(attribute.String("client.addr", req.RemoteAddr))

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to upgrade WebSocket connection")
		span.RecordError(err)
		return
	}

	span.SetStatus(codes.Ok, "WebSocket connection established")

	sess := session.New(conn, session.Config{
		Auth:     r.resolver,
		Store:    r.db,
		Chat:     r.chatSvc,
		Rooms:    r.rooms,
		Presence: r.presence,
		Cache:    r.cache,
		Logger:   r.logger,
	})
	sess.Run(ctx)
}
