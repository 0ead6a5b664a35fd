package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AxlAleT/Redes2/pkg/model"
)

// StartMetricsHTTP serves /metrics in Prometheus text exposition format and
// /healthz on Config.MetricsAddr, plus /uploads when a ledger is configured.
// It is a no-op when the address is empty and stops with the server context.
func (s *Server) StartMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

func (s *Server) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if s.ledger != nil {
		mux.HandleFunc("/uploads", s.handleUploads)
	}
	return mux
}

// handleUploads lists the upload ledger as JSON, oldest first.
func (s *Server) handleUploads(w http.ResponseWriter, _ *http.Request) {
	uploads, err := s.ledger.ListUploads()
	if err != nil {
		slog.Error("list uploads", "err", err)
		http.Error(w, "ledger unavailable", http.StatusInternalServerError)
		return
	}
	if uploads == nil {
		uploads = []model.Upload{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(uploads)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	snap := s.metrics.Snapshot()
	uptime := time.Since(s.metrics.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}

	_, _ = fmt.Fprintf(w, "# HELP chat_uptime_seconds Server uptime in seconds.\n")
	_, _ = fmt.Fprintf(w, "# TYPE chat_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "chat_uptime_seconds %f\n", uptime)

	write("chat_connections_active", "Current open connections.", "gauge", snap.ActiveConnections)
	write("chat_connections_total", "Lifetime TCP connections accepted.", "counter", snap.TotalConnections)
	write("chat_disconnects_total", "Total closed connections.", "counter", snap.TotalDisconnects)
	write("chat_logouts_total", "Sessions ended by the client with salir.", "counter", snap.Logouts)

	write("chat_auth_success_total", "Successful authentication attempts.", "counter", snap.SuccessfulAuths)
	write("chat_auth_failed_total", "Rejected authentication attempts.", "counter", snap.FailedAuths)

	write("chat_messages_total", "Chat lines echoed to clients.", "counter", snap.ChatMessages)

	write("chat_uploads_total", "Files received and acknowledged.", "counter", snap.UploadsOK)
	write("chat_uploads_failed_total", "Uploads answered with FILE_ERR.", "counter", snap.UploadsFailed)
	write("chat_upload_bytes_total", "Payload bytes stored by successful uploads.", "counter", snap.UploadBytes)
	write("chat_mirror_failures_total", "Uploads that could not be mirrored.", "counter", snap.MirrorFailures)
}
