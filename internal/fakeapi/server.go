// Package fakeapi is a scriptable in-process stand-in for the video
// generation service, used by tests.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Step is one scripted answer to a status query.
type Step struct {
	Status   string
	Progress *int
	Message  string
	Extra    map[string]any

	NotFound   bool
	HTTPStatus int    // non-2xx answer with Body
	Body       string // raw body, sent verbatim when set
	Delay      time.Duration
	Block      <-chan struct{} // answer only once closed
}

func Progress(p int) *int { return &p }

func Pending(p int) Step    { return Step{Status: "pending", Progress: Progress(p)} }
func Processing(p int) Step { return Step{Status: "processing", Progress: Progress(p)} }
func Completed() Step       { return Step{Status: "completed", Progress: Progress(100)} }
func Failed(msg string) Step {
	return Step{Status: "failed", Progress: Progress(0), Message: msg}
}
func Missing() Step { return Step{NotFound: true} }
func ServerError() Step {
	return Step{HTTPStatus: http.StatusInternalServerError, Body: `{"detail":"boom"}`}
}
func Garbage() Step { return Step{Body: "<html>gateway</html>"} }

type GenerateCall struct {
	URL         string `json:"url"`
	AspectRatio string `json:"aspect_ratio"`
	Duration    int    `json:"duration"`
	Template    string `json:"template"`
}

type job struct {
	script      []Step
	next        int
	calls       int
	media       []byte
	failMedia   bool
	downloadHit int
}

type Server struct {
	mu             sync.Mutex
	jobs           map[string]*job
	generateCalls  []GenerateCall
	generateScript []Step
	nextID         func() string
	requestIDs     []string
	templates      []map[string]string
}

func New() *Server {
	return &Server{
		jobs:   make(map[string]*job),
		nextID: uuid.NewString,
		generateScript: []Step{
			{Status: "generating", Progress: Progress(0)},
			Processing(30),
			Processing(60),
			Completed(),
		},
		templates: []map[string]string{
			{"name": "Modern Bold", "description": "Bold, vibrant colors with modern typography", "theme": "modern"},
			{"name": "Elegant Professional", "description": "Clean, professional look with subtle animations", "theme": "elegant"},
			{"name": "Vibrant Social", "description": "Eye-catching colors perfect for social media", "theme": "vibrant"},
			{"name": "High Visibility", "description": "Maximum contrast colors for visibility on any background", "theme": "high_visibility"},
		},
	}
}

// Script sets the status answers for id. The last step repeats once the
// script is exhausted.
func (s *Server) Script(id string, steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobLocked(id)
	j.script = append([]Step(nil), steps...)
	j.next = 0
}

func (s *Server) SetMedia(id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobLocked(id).media = append([]byte(nil), data...)
}

func (s *Server) FailMedia(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobLocked(id).failMedia = true
}

// SetNextID fixes the id handed out by the next generate calls.
func (s *Server) SetNextID(fn func() string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = fn
}

func (s *Server) SetGenerateScript(steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generateScript = append([]Step(nil), steps...)
}

func (s *Server) StatusCalls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		return j.calls
	}
	return 0
}

func (s *Server) DownloadCalls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		return j.downloadHit
	}
	return 0
}

func (s *Server) GenerateCalls() []GenerateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]GenerateCall(nil), s.generateCalls...)
}

func (s *Server) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requestIDs...)
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recordRequestID)
	r.Get("/video/templates", s.handleTemplates)
	r.Post("/api/v1/video/generate", s.handleGenerate)
	r.Get("/api/v1/video/{id}", s.handleStatus)
	r.Get("/api/v1/video/{id}/download", s.handleDownload)
	return r
}

func (s *Server) recordRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rid := r.Header.Get("X-Request-ID"); rid != "" {
			s.mu.Lock()
			s.requestIDs = append(s.requestIDs, rid)
			s.mu.Unlock()
			w.Header().Set("X-Request-ID", rid)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	payload := map[string]any{"templates": s.templates}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var call GenerateCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil || call.URL == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid payload"})
		return
	}

	s.mu.Lock()
	id := s.nextID()
	j := s.jobLocked(id)
	if len(j.script) == 0 {
		j.script = append([]Step(nil), s.generateScript...)
	}
	if j.media == nil {
		j.media = []byte("fake-mp4:" + id)
	}
	s.generateCalls = append(s.generateCalls, call)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"video_id": id,
		"status":   "generating",
		"message":  "Video generation started",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok || len(j.script) == 0 {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Video not found"})
		return
	}
	j.calls++
	step := j.script[j.next]
	if j.next < len(j.script)-1 {
		j.next++
	}
	s.mu.Unlock()

	if step.Block != nil {
		select {
		case <-step.Block:
		case <-r.Context().Done():
			return
		}
	}
	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-r.Context().Done():
			return
		}
	}

	switch {
	case step.NotFound:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Video not found"})
	case step.HTTPStatus != 0:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(step.HTTPStatus)
		_, _ = w.Write([]byte(step.Body))
	case step.Body != "":
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(step.Body))
	default:
		payload := map[string]any{"video_id": id, "status": step.Status}
		if step.Progress != nil {
			payload["progress"] = *step.Progress
		}
		if step.Message != "" {
			payload["message"] = step.Message
		}
		for k, v := range step.Extra {
			payload[k] = v
		}
		writeJSON(w, http.StatusOK, payload)
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Video not found"})
		return
	}
	j.downloadHit++
	fail := j.failMedia
	media := append([]byte(nil), j.media...)
	s.mu.Unlock()

	if fail {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "storage unavailable"})
		return
	}
	if media == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Video not ready for download"})
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", `attachment; filename="video_`+id+`.mp4"`)
	_, _ = w.Write(media)
}

func (s *Server) jobLocked(id string) *job {
	j, ok := s.jobs[id]
	if !ok {
		j = &job{}
		s.jobs[id] = j
	}
	return j
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
