// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"maunium.net/go/mautrix/event"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aiku/chatbox/pkg/chatbox"
	"github.com/aiku/chatbox/pkg/connector/richtext"
)

//go:embed static
var staticFiles embed.FS

const (
	uidCookie       = "uid"
	shutdownTimeout = 5 * time.Second
	// ServerAuthor is the author of frames generated by the server itself.
	ServerAuthor = "server"
	// SelfAuthor is the author of frames echoing the client's own messages.
	SelfAuthor = "you"
)

// Frame is a JSON message sent to web clients.
type Frame struct {
	Author  string `json:"author"`
	Content string `json:"content"`
	HTML    string `json:"html,omitempty"`
	UID     string `json:"uid,omitempty"`
	Time    string `json:"time,omitempty"`
}

// inboundFrame is the optional JSON form of a client message. Plain text
// frames are taken as the message content directly.
type inboundFrame struct {
	Content string `json:"content"`
	HTML    string `json:"html"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Name        string `json:"name"`
	UID         string `json:"uid"`
	Side1       string `json:"side1"`
	Side1Active int    `json:"side1_active"`
	Side2       string `json:"side2"`
	Side2Active int    `json:"side2_active"`
}

type socket struct {
	cancel context.CancelFunc
}

// WebServer serves side 1 of a chatbox to browsers. Each WebSocket is one
// participant, identified by the id in its URL or a freshly generated one.
type WebServer struct {
	box     *chatbox.ChatBox
	channel *chatbox.ServiceChannel
	cfg     *Config

	lock    sync.Mutex
	sockets map[chatbox.ID]*socket

	log zerolog.Logger
}

var (
	_ chatbox.DeactivationListener = (*WebServer)(nil)
	_ chatbox.ReachableListener    = (*WebServer)(nil)
)

// NewWebServer creates a web server for side 1 of box and registers it as
// that side's deactivation and reachable listener.
func NewWebServer(box *chatbox.ChatBox, cfg *Config, log zerolog.Logger) *WebServer {
	ws := &WebServer{
		box:     box,
		channel: box.Side1(),
		cfg:     cfg,
		sockets: make(map[chatbox.ID]*socket),
		log:     log.With().Str("component", "web").Logger(),
	}
	ws.channel.SetDeactivationListener(ws)
	ws.channel.SetReachableListener(ws)
	return ws
}

// Handler returns the HTTP routes of the web client.
func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", ws.handleIndex)
	mux.HandleFunc("GET /main.js", ws.handleStatic("static/main.js", "text/javascript; charset=utf-8"))
	mux.HandleFunc("GET /api/status", ws.handleStatus)
	mux.HandleFunc("GET /ws/{$}", ws.handleSocket)
	mux.HandleFunc("GET /ws/{uid}", ws.handleSocket)
	return mux
}

// Run serves HTTP on the configured address until ctx is done.
func (ws *WebServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return ws.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is done. Open sockets are closed on
// shutdown.
func (ws *WebServer) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		ws.log.Info().Str("addr", ln.Addr().String()).Msg("Web server listening")
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		ws.log.Warn().Err(err).Msg("Web server shutdown error")
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(uidCookie); err != nil && ws.channel.Kind().Generatable() {
		if id, err := ws.channel.Kind().Generate(); err == nil {
			http.SetCookie(w, &http.Cookie{
				Name:     uidCookie,
				Value:    id.String(),
				Path:     "/",
				SameSite: http.SameSiteStrictMode,
			})
		}
	}
	ws.handleStatic("static/index.html", "text/html; charset=utf-8")(w, r)
}

func (ws *WebServer) handleStatic(name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := staticFiles.ReadFile(name)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	}
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Name:        ws.box.Name(),
		UID:         ws.box.UID().String(),
		Side1:       ws.box.Side1().Name(),
		Side1Active: ws.box.Side1().ActiveCount(),
		Side2:       ws.box.Side2().Name(),
		Side2Active: ws.box.Side2().ActiveCount(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (ws *WebServer) handleSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var id chatbox.ID
	if raw := r.PathValue("uid"); raw != "" {
		parsed, err := chatbox.ParseID(ws.channel.Kind(), raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id = parsed
	}

	id, err := ws.channel.Access(ctx, id, true)
	switch {
	case errors.Is(err, chatbox.ErrIdentityType):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, chatbox.ErrAllocation):
		ws.log.Warn().Err(err).Msg("Peer side could not allocate a participant")
		http.Error(w, "peer unavailable", http.StatusServiceUnavailable)
		return
	case err != nil:
		ws.log.Err(err).Msg("Failed to access connection")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	mailbox, mbErr := ws.channel.Mailbox(id)
	conn, connErr := ws.channel.Connection(id)
	if err = errors.Join(mbErr, connErr); err != nil {
		// Torn down between access and here.
		http.Error(w, "connection closed", http.StatusGone)
		return
	}

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: ws.cfg.OriginPatterns,
	})
	if err != nil {
		ws.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		ws.release(ctx, id, mailbox)
		return
	}
	log := ws.log.With().Str("uid", id.String()).Str("connection_id", conn.ID().String()).Logger()
	log.Info().Msg("Client connected")

	err = ws.serve(ctx, id, wsConn, conn, mailbox)
	ws.release(ctx, id, mailbox)
	if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		log.Info().Msg("Client disconnected")
	} else if err != nil && !errors.Is(err, chatbox.ErrMailboxClosed) && !errors.Is(err, context.Canceled) {
		log.Debug().Err(err).Msg("Client connection ended")
	}
	_ = wsConn.Close(websocket.StatusNormalClosure, "")
}

// serve pumps messages between the socket and the participant until either
// end closes.
func (ws *WebServer) serve(ctx context.Context, id chatbox.ID, wsConn *websocket.Conn, conn *chatbox.Connection, mailbox *chatbox.Mailbox) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sock := &socket{cancel: cancel}
	ws.register(id, sock)
	defer ws.unregister(id, sock)

	if err := wsjson.Write(ctx, wsConn, Frame{Author: ServerAuthor, Content: "connected", UID: id.String()}); err != nil {
		return err
	}
	history := conn.History()
	replayed := make(map[*chatbox.Message]struct{}, len(history))
	for _, msg := range history {
		replayed[msg] = struct{}{}
		if err := wsjson.Write(ctx, wsConn, ws.frame(msg)); err != nil {
			return err
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		for {
			msg, err := mailbox.Get(ctx)
			if err != nil {
				return err
			}
			if _, ok := replayed[msg]; ok {
				continue
			}
			if err = wsjson.Write(ctx, wsConn, ws.frame(msg)); err != nil {
				return err
			}
		}
	})
	eg.Go(func() error {
		for {
			typ, data, err := wsConn.Read(ctx)
			if err != nil {
				return err
			}
			if typ != websocket.MessageText {
				continue
			}
			text := parseInbound(data)
			if text == "" {
				continue
			}
			if err = ws.channel.Submit(ctx, id, text); err != nil {
				return err
			}
		}
	})
	return eg.Wait()
}

// release deactivates the participant unless its mailbox was already
// replaced by a newer socket or closed by a peer teardown.
func (ws *WebServer) release(ctx context.Context, id chatbox.ID, mailbox *chatbox.Mailbox) {
	current, err := ws.channel.Mailbox(id)
	if err != nil || current != mailbox {
		return
	}
	ws.channel.Deactivate(context.WithoutCancel(ctx), id, false)
}

func (ws *WebServer) register(id chatbox.ID, sock *socket) {
	ws.lock.Lock()
	old := ws.sockets[id]
	ws.sockets[id] = sock
	ws.lock.Unlock()
	if old != nil {
		old.cancel()
	}
}

func (ws *WebServer) unregister(id chatbox.ID, sock *socket) {
	ws.lock.Lock()
	defer ws.lock.Unlock()
	if ws.sockets[id] == sock {
		delete(ws.sockets, id)
	}
}

// OnDeactivated closes the socket of a participant whose peer went away.
func (ws *WebServer) OnDeactivated(_ context.Context, conn *chatbox.Connection, origin chatbox.Side) {
	id := conn.SideID(ws.channel.Side())
	ws.lock.Lock()
	sock := ws.sockets[id]
	ws.lock.Unlock()
	if sock != nil {
		ws.log.Debug().Str("uid", id.String()).Stringer("origin", origin).Msg("Closing socket after peer teardown")
		sock.cancel()
	}
}

// OnReachable releases a participant that the peer side reactivated while no
// browser is connected for it. The peer stays active; the browser catches up
// from history when it comes back.
func (ws *WebServer) OnReachable(ctx context.Context, conn *chatbox.Connection, origin chatbox.Side) {
	id := conn.SideID(ws.channel.Side())
	ws.lock.Lock()
	_, open := ws.sockets[id]
	ws.lock.Unlock()
	if open {
		return
	}
	ws.log.Debug().Str("uid", id.String()).Stringer("origin", origin).Msg("No socket for reactivated participant, releasing it")
	ws.channel.Deactivate(ctx, id, true)
}

// SocketCount returns the number of open client sockets.
func (ws *WebServer) SocketCount() int {
	ws.lock.Lock()
	defer ws.lock.Unlock()
	return len(ws.sockets)
}

func (ws *WebServer) frame(msg *chatbox.Message) Frame {
	f := Frame{Content: msg.Content, Time: msg.CreatedAt.Format(time.RFC3339)}
	if msg.Origin == ws.channel.Side() {
		f.Author = SelfAuthor
		return f
	}
	f.Author = ws.box.Channel(msg.Origin).Name()
	if content := richtext.ToHTML(msg.Content); content.Format == event.FormatHTML {
		f.HTML = content.FormattedBody
	}
	return f
}

func parseInbound(data []byte) string {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}
	var in inboundFrame
	if err := json.Unmarshal(data, &in); err != nil {
		return trimmed
	}
	if in.HTML != "" {
		return richtext.ToMarkdown(&event.MessageEventContent{
			Body:          in.Content,
			Format:        event.FormatHTML,
			FormattedBody: in.HTML,
		})
	}
	return strings.TrimSpace(in.Content)
}
