package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"aircraft-mon/internal/logging"
	"aircraft-mon/internal/pipeline"
)

type Server struct {
	Sched   *pipeline.Scheduler
	metrics http.Handler
	tpl     *template.Template
	mux     *http.ServeMux
}

//go:embed templates/index.html
var content embed.FS

// StreamStatus describes one sensor stream on /streams.
type StreamStatus struct {
	SensorID  string `json:"sensor_id"`
	Connected bool   `json:"connected"`
}

// NewServer builds the admin endpoints. metrics may be nil.
func NewServer(sched *pipeline.Scheduler, metrics http.Handler) *Server {
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	s := &Server{Sched: sched, metrics: metrics, tpl: tpl, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.HandleFunc("/streams", s.handleStreams)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics)
	}
}

// Handler returns the admin mux.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.FromContext(ctx).Warn("admin server shutdown", "err", err)
		}
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := struct {
		Status  string
		Stats   pipeline.Snapshot
		Streams []StreamStatus
	}{
		Status:  s.Sched.Status().String(),
		Stats:   pipeline.Report(s.Sched.State()),
		Streams: s.streams(),
	}
	s.tpl.Execute(w, data)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pipeline.Report(s.Sched.State()))
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.streams())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.Sched.Status()
	w.Header().Set("Content-Type", "application/json")
	if status != pipeline.StatusRunning {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]string{"status": status.String()})
}

func (s *Server) streams() []StreamStatus {
	streams := s.Sched.Streams()
	out := make([]StreamStatus, len(streams))
	for i, st := range streams {
		out[i] = StreamStatus{SensorID: st.SensorID, Connected: st.Sink != nil}
	}
	return out
}
