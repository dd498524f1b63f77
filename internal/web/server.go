package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hostmon/internal/db"
	"hostmon/internal/query"
)

//go:embed templates/*.html
var webFS embed.FS

const (
	pushInterval = 5 * time.Second
	writeTimeout = 10 * time.Second
)

// Source is the read path behind every route.
type Source interface {
	Latest(ctx context.Context) query.Snapshot
	Ready(ctx context.Context) (db.Role, bool)
}

type Server struct {
	src      Source
	gatherer prometheus.Gatherer
	log      *slog.Logger
	tpl      *template.Template
	upgrader websocket.Upgrader
	push     time.Duration
}

func NewServer(src Source, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	tpl := template.Must(template.New("all").Funcs(template.FuncMap{
		"bytesToMB": func(v int64) string { return fmt.Sprintf("%.1f MB", float64(v)/1024.0/1024.0) },
		"pct":       func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
		"ms":        func(v float64) string { return fmt.Sprintf("%.2f ms", v) },
	}).ParseFS(webFS, "templates/*.html"))
	return &Server{
		src:      src,
		gatherer: gatherer,
		log:      logger,
		tpl:      tpl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		push: pushInterval,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/metrics", s.handleMetricsAPI)
	mux.HandleFunc("/ws/metrics", s.handleMetricsWS)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return logMiddleware(mux, s.log)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if err := s.tpl.ExecuteTemplate(w, "index.html", s.src.Latest(r.Context())); err != nil {
		http.Error(w, err.Error(), 500)
	}
}

func (s *Server) handleMetricsAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.src.Latest(r.Context()))
}

func (s *Server) handleMetricsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// drain client frames so close and ping control messages are handled
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.push)
	defer ticker.Stop()
	for {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(s.src.Latest(ctx)); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	role, ok := s.src.Ready(r.Context())
	if !ok {
		http.Error(w, "db not ready", 503)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready: " + string(role)))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
