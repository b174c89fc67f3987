package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	wsjsonrpc2 "github.com/sourcegraph/jsonrpc2/websocket"
)

// CodeExecution is the JSON-RPC error code for a failed evaluation.
const CodeExecution = -32000

var (
	errMethodNotFound = &jsonrpc2.Error{
		Code: jsonrpc2.CodeMethodNotFound, Message: "method not found"}
	errInvalidParams = &jsonrpc2.Error{
		Code: jsonrpc2.CodeInvalidParams, Message: "invalid params"}
)

// EvalResult is the reply to evaluateCode over JSON-RPC.
type EvalResult struct {
	Values []string `json:"values,omitempty"`
	Output string   `json:"output,omitempty"`
}

// Server exposes the adapter over WebSocket. /flok takes raw editor frames;
// /rpc speaks JSON-RPC 2.0.
type Server struct {
	adapter  *Adapter
	upgrader websocket.Upgrader
}

// NewServer returns a server for c.
func NewServer(c Coordinator) *Server {
	return &Server{
		adapter: NewAdapter(c),
		upgrader: websocket.Upgrader{
			// The editor is served from its own origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler serving both endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/flok", s.serveFlok)
	mux.HandleFunc("/rpc", s.serveRPC)
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	log.Infof("Remote code endpoint listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) serveFlok(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer c.Close()
	log.Infof("Editor connected from %s", r.RemoteAddr)

	for {
		kind, data, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("editor connection ended", "err", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if err := s.adapter.Handle(r.Context(), data); err != nil {
			log.Warn("remote message failed", "err", err)
		}
	}
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	conn := jsonrpc2.NewConn(r.Context(), wsjsonrpc2.NewObjectStream(c), s.rpcHandler())
	<-conn.DisconnectNotify()
}

type method func(context.Context, json.RawMessage) (any, error)

func (s *Server) rpcHandler() jsonrpc2.Handler {
	methods := map[string]method{
		CmdEvaluate:    s.evaluate,
		"check":        s.check,
		"panic":        s.panic,
		"status":       s.status,
		"clearJournal": s.clearJournal,
	}
	return jsonrpc2.HandlerWithError(func(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		fn, ok := methods[req.Method]
		if !ok {
			return nil, errMethodNotFound
		}
		var params json.RawMessage
		if req.Params != nil {
			params = *req.Params
		}
		return fn(ctx, params)
	})
}

func (s *Server) evaluate(ctx context.Context, raw json.RawMessage) (any, error) {
	var args Args
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errInvalidParams
	}
	if args.Target != "" && args.Target != Target {
		return nil, errInvalidParams
	}
	res, err := s.adapter.c.Evaluate(ctx, args.Body)
	if err != nil {
		return nil, &jsonrpc2.Error{Code: CodeExecution, Message: err.Error()}
	}
	return EvalResult{Values: res.Values, Output: res.Output}, nil
}

// check validates code without running it.
func (s *Server) check(ctx context.Context, raw json.RawMessage) (any, error) {
	var args Args
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errInvalidParams
	}
	if err := s.adapter.c.Check(ctx, args.Body); err != nil {
		return nil, &jsonrpc2.Error{Code: CodeExecution, Message: err.Error()}
	}
	return true, nil
}

func (s *Server) clearJournal(ctx context.Context, _ json.RawMessage) (any, error) {
	if err := s.adapter.c.ClearJournal(ctx); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Server) panic(ctx context.Context, _ json.RawMessage) (any, error) {
	if err := s.adapter.c.TriggerPanic(ctx); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Server) status(ctx context.Context, _ json.RawMessage) (any, error) {
	return s.adapter.c.Status(ctx)
}
