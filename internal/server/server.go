// Package server exposes the scrape orchestrator over HTTP: session start,
// pause/stop controls and a server-sent progress stream.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/brogergvhs/noveld/internal/chapters"
	"github.com/brogergvhs/noveld/internal/progress"
	"github.com/brogergvhs/noveld/internal/scrape"
	"github.com/brogergvhs/noveld/internal/ui"
)

// Scraper is the orchestrator surface the server drives.
type Scraper interface {
	progress.Controls
	ScrapeBook(pageURL string) (*scrape.Session, error)
	ScrapeChapters(pageURL string, nums []int) (*scrape.Session, error)
	State() scrape.State
	Session() *scrape.Session
	Channel() *progress.Channel
}

type Server struct {
	scraper   Scraper
	log       *ui.Logger
	mux       *http.ServeMux
	heartbeat time.Duration
}

func New(scraper Scraper, log *ui.Logger) *Server {
	if log == nil {
		log = ui.Discard()
	}
	s := &Server{
		scraper:   scraper,
		log:       log,
		mux:       http.NewServeMux(),
		heartbeat: 15 * time.Second,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/scrape", s.handleScrape)
	s.mux.HandleFunc("/api/state", s.handleState)
	s.mux.HandleFunc("/api/progress", s.handleProgress)
	s.mux.HandleFunc("/api/progress/pause", s.handlePause)
	s.mux.HandleFunc("/api/progress/stop", s.handleStop)
	s.mux.HandleFunc("/api/progress/control", s.handleControl)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ScrapeRequest starts a session. Chapters, when set, is a range expression
// such as "2-10,15" and selects a chapter set merged into one file.
type ScrapeRequest struct {
	URL      string `json:"url"`
	Chapters string `json:"chapters,omitempty"`
}

type ScrapeResponse struct {
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}

	var (
		sess *scrape.Session
		err  error
	)
	if strings.TrimSpace(req.Chapters) != "" {
		nums, perr := chapters.ParseRange(req.Chapters)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr)
			return
		}
		sess, err = s.scraper.ScrapeChapters(req.URL, nums)
	} else {
		sess, err = s.scraper.ScrapeBook(req.URL)
	}

	switch {
	case errors.Is(err, scrape.ErrConcurrentSession):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.log.With(ui.Fields{"session": sess.ID, "url": req.URL}).Infof("scrape accepted")
	writeJSON(w, http.StatusAccepted, ScrapeResponse{SessionID: sess.ID, State: s.scraper.State().String()})
}

type StateResponse struct {
	State     string             `json:"state"`
	SessionID string             `json:"sessionId,omitempty"`
	Paused    bool               `json:"paused"`
	Last      *progress.Snapshot `json:"last,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	resp := StateResponse{State: s.scraper.State().String()}
	if sess := s.scraper.Session(); sess != nil {
		resp.SessionID = sess.ID
		resp.Paused = sess.Paused()
	}
	if last, ok := s.scraper.Channel().Last(); ok {
		resp.Last = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleProgress streams snapshots as server-sent events. The retained
// snapshot is sent first; a newer connection replaces this one.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := s.scraper.Channel().Attach()
	defer sub.Detach()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case snap, open := <-sub.C():
			if !open {
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\n", snap.Kind)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, "event: heartbeat\ndata: {}\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.scraper.Session() == nil {
		writeError(w, http.StatusConflict, errors.New("no session running"))
		return
	}

	paused := s.scraper.TogglePause()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.scraper.Session() == nil {
		writeError(w, http.StatusConflict, errors.New("no session running"))
		return
	}

	s.scraper.Stop()
	w.WriteHeader(http.StatusAccepted)
}

// handleControl accepts {"action":"togglePause"|"stop"}.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var cmd progress.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := progress.Dispatch(s.scraper, cmd); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
