// Package web provides an HTTP status and control server for the gas-monitor daemon.
package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/gas-monitor/internal/export"
	"github.com/sweeney/gas-monitor/internal/metrics"
	"github.com/sweeney/gas-monitor/internal/protocol"
	"github.com/sweeney/gas-monitor/internal/status"
	"github.com/sweeney/gas-monitor/internal/store"
	"github.com/sweeney/gas-monitor/internal/supervisor"
)

const dateLayout = "2006-01-02"

// Controller accepts commands and reconnect requests. *supervisor.Supervisor
// implements it.
type Controller interface {
	Send(cmd protocol.Command) error
	Reconnect(target string) bool
}

// Options wires optional endpoints. A nil field disables its endpoint.
type Options struct {
	Store   *store.Store     // /logs.csv
	Metrics *metrics.Metrics // /metrics
	Control Controller       // POST /command, POST /reconnect
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	opts       Options
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts Options) *Server {
	s := &Server{tracker: tracker, opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	if opts.Store != nil {
		mux.HandleFunc("/logs.csv", s.handleLogs)
	}
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics.Handler())
	}
	if opts.Control != nil {
		mux.HandleFunc("/command", s.handleCommand)
		mux.HandleFunc("/reconnect", s.handleReconnect)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the request router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, s.opts.Control != nil)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleLogs exports the log. Query parameters: day, from, to (YYYY-MM-DD,
// whole local days), min and max (gas), format (csv or json).
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", export.FormatCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="gas_log.csv"`)
	case export.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	default:
		http.Error(w, fmt.Sprintf("unknown format %q", format), http.StatusBadRequest)
		return
	}
	if n, err := export.Write(w, format, s.opts.Store.Query(f)); err != nil {
		log.Printf("web: logs export to %s failed after %d entries: %v", r.RemoteAddr, n, err)
	}
}

func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	var f store.Filter

	if day := q.Get("day"); day != "" {
		d, err := time.ParseInLocation(dateLayout, day, time.Local)
		if err != nil {
			return f, fmt.Errorf("day: want YYYY-MM-DD, got %q", day)
		}
		f = store.Day(d)
	}
	if from := q.Get("from"); from != "" {
		d, err := time.ParseInLocation(dateLayout, from, time.Local)
		if err != nil {
			return f, fmt.Errorf("from: want YYYY-MM-DD, got %q", from)
		}
		f.From = store.Day(d).From
	}
	if to := q.Get("to"); to != "" {
		d, err := time.ParseInLocation(dateLayout, to, time.Local)
		if err != nil {
			return f, fmt.Errorf("to: want YYYY-MM-DD, got %q", to)
		}
		f.To = store.Day(d).To
	}

	minStr, maxStr := q.Get("min"), q.Get("max")
	if minStr != "" || maxStr != "" {
		g := store.GasRange{Min: protocol.MinGas, Max: protocol.MaxGas}
		var err error
		if minStr != "" {
			if g.Min, err = strconv.Atoi(minStr); err != nil {
				return f, fmt.Errorf("min: not an integer: %q", minStr)
			}
		}
		if maxStr != "" {
			if g.Max, err = strconv.Atoi(maxStr); err != nil {
				return f, fmt.Errorf("max: not an integer: %q", maxStr)
			}
		}
		if g.Min > g.Max {
			return f, fmt.Errorf("min %d is above max %d", g.Min, g.Max)
		}
		f.Gas = &g
	}
	return f, nil
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	cmd, err := protocol.ParseCommand(r.FormValue("cmd"))
	if err != nil {
		s.countCommand("rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.opts.Control.Send(cmd)
	var verr *protocol.ValidationError
	switch {
	case err == nil:
		s.countCommand("ok")
		fmt.Fprintf(w, "sent %s\n", cmd)
	case errors.As(err, &verr):
		s.countCommand("rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, supervisor.ErrNotConnected):
		s.countCommand("failed")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.countCommand("failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	target := strings.TrimSpace(r.FormValue("target"))
	if !s.opts.Control.Reconnect(target) {
		http.Error(w, "reconnect already in progress", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	if target == "" {
		target = "configured port"
	}
	fmt.Fprintf(w, "reconnecting to %s\n", target)
}

func (s *Server) countCommand(result string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.CommandsSent.WithLabelValues(result).Inc()
	}
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodPost {
		return true
	}
	w.Header().Set("Allow", http.MethodPost)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}
