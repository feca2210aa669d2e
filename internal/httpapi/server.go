// Package httpapi exposes the webhook surface: one route per configured
// topic plus a root descriptor. It translates HTTP requests into dispatch
// requests and renders the shared response envelope.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yige233/mirai-webhook/internal/dispatch"
	"github.com/yige233/mirai-webhook/internal/response"
	logx "github.com/yige233/mirai-webhook/pkg/logx"
)

// maxBodyBytes caps POST bodies; anything larger is rejected with 413.
const maxBodyBytes = 1 << 20

// Version is reported by the root descriptor.
const Version = "1.0.0"

// Dispatcher is the piece of the dispatch engine the server needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Outcome, error)
}

type Server struct {
	addr string
	disp Dispatcher
	log  logx.Logger
	srv  *http.Server
}

func NewServer(addr string, disp Dispatcher, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{addr: addr, disp: disp, log: log}
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.middleware(http.HandlerFunc(s.route)),
	}
	return s
}

// Handler exposes the full middleware-wrapped handler for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until ctx is canceled, then shuts down gracefully so in-flight
// dispatches finish before the process exits.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen %s: %w", s.addr, err)
	}
	s.log.Info("webhook server listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// middleware adds CORS, the access log, and panic recovery around every
// request.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if v := recover(); v != nil {
				// A trace id ties the client-visible error to the log line.
				trace := strings.ReplaceAll(uuid.NewString(), "-", "")
				s.log.Error("panic while handling request",
					logx.String("trace", trace),
					logx.String("method", r.Method),
					logx.String("path", r.URL.Path),
					logx.Any("panic", v),
					logx.Stack(string(debug.Stack())))
				writeError(rec, &response.Error{
					Kind:    response.KindInternalError,
					Message: "internal error",
					Cause:   "trace id: " + trace,
				})
			}
			s.log.Info(fmt.Sprintf("[%d] %s %s", rec.status, r.Method, r.URL.Path))
		}()

		next.ServeHTTP(rec, r)
	})
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.URL.Path, "/")
	if r.Method == http.MethodOptions {
		if path == "" {
			w.Header().Set("Allow", "GET, OPTIONS")
		} else {
			w.Header().Set("Allow", "GET, POST, OPTIONS")
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	if path == "" {
		s.handleRoot(w, r)
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, response.NotFound("no such route: "+r.URL.Path))
		return
	}
	s.handleTopic(w, r, path)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, OPTIONS")
		writeError(w, response.NewError(response.KindMethodNotAllowed, "method not allowed: "+r.Method))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "mirai webhook bridge is running",
		"version": Version,
	})
}

func (s *Server) handleTopic(w http.ResponseWriter, r *http.Request, topicID string) {
	var req dispatch.Request
	var err error
	switch r.Method {
	case http.MethodGet:
		req = requestFromQuery(r)
	case http.MethodPost:
		req, err = requestFromBody(r)
		if err != nil {
			writeError(w, response.AsError(err))
			return
		}
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		writeError(w, response.NewError(response.KindMethodNotAllowed, "method not allowed: "+r.Method))
		return
	}
	req.TopicID = topicID

	if req.Title == "" || req.Content == "" {
		writeError(w, response.BadOperation("both title and content are required"))
		return
	}

	out, err := s.disp.Dispatch(r.Context(), req)
	if err != nil {
		writeError(w, response.AsError(err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func requestFromQuery(r *http.Request) dispatch.Request {
	q := r.URL.Query()
	return dispatch.Request{
		Title:   q.Get("title"),
		Content: q.Get("content"),
		Token:   q.Get("token"),
		Sig:     q.Get("sig"),
	}
}

func requestFromBody(r *http.Request) (dispatch.Request, error) {
	ct, _, _ := strings.Cut(r.Header.Get("Content-Type"), ";")
	if strings.TrimSpace(strings.ToLower(ct)) != "application/json" {
		return dispatch.Request{}, response.NewError(response.KindUnsupportedMediaType,
			"unsupported content type: "+r.Header.Get("Content-Type"))
	}

	var body struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Token   string `json:"token"`
		Sig     string `json:"sig"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return dispatch.Request{}, response.NewError(response.KindContentTooLarge, "request body too large")
		}
		return dispatch.Request{}, response.BadOperation("malformed request body: " + err.Error())
	}
	return dispatch.Request{Title: body.Title, Content: body.Content, Token: body.Token, Sig: body.Sig}, nil
}

func writeError(w http.ResponseWriter, e *response.Error) {
	writeJSON(w, response.StatusOf(e.Kind), e)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusRecorder captures the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wrote {
		r.status = status
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if !r.wrote {
		r.wrote = true
	}
	return r.ResponseWriter.Write(p)
}
