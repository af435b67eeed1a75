// Package musettest provides an in-memory stub of the Muset API for
// tests. It speaks the same routes and payloads as the real backend:
// bearer auth, asynchronous generation tasks with scripted status
// sequences, roadmap CRUD, and per-route failure injection.
package musettest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/muset-ai/muset-go/muset"
	"github.com/muset-ai/muset-go/tasks"
)

// CapturedRequest records one request the stub served.
type CapturedRequest struct {
	Method    string
	Path      string
	Header    http.Header
	UserID    string
	Anonymous bool
}

type account struct {
	password string
	userID   string
}

type taskScript struct {
	snapshots []tasks.Snapshot
	calls     int
}

type failure struct {
	code  int
	count int
}

// Server is the stub backend. Construct with New, point a client at
// URL(), and Close when done.
type Server struct {
	echo *echo.Echo
	srv  *httptest.Server

	mu       sync.Mutex
	accounts map[string]account
	sessions map[string]string
	scripts  map[string]*taskScript
	roadmaps map[string]*muset.Roadmap
	failures map[string]*failure
	captured []CapturedRequest
}

// New starts the stub on an ephemeral port.
func New() *Server {
	s := &Server{
		accounts: make(map[string]account),
		sessions: make(map[string]string),
		scripts:  make(map[string]*taskScript),
		roadmaps: make(map[string]*muset.Roadmap),
		failures: make(map[string]*failure),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(s.capture, s.injectFailures)

	e.POST("/api/v1/auth/login", s.handleLogin)
	e.POST("/api/v1/auth/logout", s.handleLogout)

	api := e.Group("/api/v1", s.requireAuth)
	api.GET("/tasks/:id", s.handleTaskStatus)
	api.POST("/roadmaps/generate", s.handleGenerate)
	api.GET("/roadmaps", s.handleListRoadmaps)
	api.GET("/roadmaps/:id", s.handleRoadmap)
	api.PUT("/roadmaps/:id/nodes/:node", s.handleUpdateNode)

	s.echo = e
	s.srv = httptest.NewServer(e)
	return s
}

// URL is the stub's base URL.
func (s *Server) URL() string {
	return s.srv.URL
}

// Close shuts the stub down.
func (s *Server) Close() {
	s.srv.Close()
}

// AddUser registers an account the login endpoint will accept.
func (s *Server) AddUser(email, password, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = account{password: password, userID: userID}
}

// IssueToken registers a pre-authenticated session, bypassing login.
func (s *Server) IssueToken(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.sessions[token] = userID
	return token
}

// RevokeToken invalidates a session; subsequent calls with it get 401.
func (s *Server) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// ScriptTask sets the status sequence the task endpoint replays for the
// given task. The last snapshot repeats once the script is exhausted.
func (s *Server) ScriptTask(taskID string, snapshots ...tasks.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[taskID] = &taskScript{snapshots: snapshots}
}

// SeedRoadmap makes a roadmap available to the fetch endpoints.
func (s *Server) SeedRoadmap(roadmap *muset.Roadmap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roadmaps[roadmap.ID] = roadmap
}

// FailNext makes the next count requests matching method+path answer
// with the given status code before normal handling resumes.
func (s *Server) FailNext(method, path string, code, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = &failure{code: code, count: count}
}

// Requests returns a copy of every request served so far.
func (s *Server) Requests() []CapturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CapturedRequest, len(s.captured))
	copy(out, s.captured)
	return out
}

func (s *Server) capture(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		userID, ok := s.lookupToken(bearerToken(req))

		s.mu.Lock()
		s.captured = append(s.captured, CapturedRequest{
			Method:    req.Method,
			Path:      req.URL.Path,
			Header:    req.Header.Clone(),
			UserID:    userID,
			Anonymous: !ok,
		})
		s.mu.Unlock()

		return next(c)
	}
}

func (s *Server) injectFailures(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Method + " " + c.Request().URL.Path

		s.mu.Lock()
		f, ok := s.failures[key]
		if ok && f.count > 0 {
			f.count--
			code := f.code
			s.mu.Unlock()
			return c.JSON(code, map[string]string{"error": http.StatusText(code)})
		}
		s.mu.Unlock()

		return next(c)
	}
}

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := s.lookupToken(bearerToken(c.Request())); !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
		}
		return next(c)
	}
}

func (s *Server) lookupToken(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.sessions[token]
	return userID, ok
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

func (s *Server) handleLogin(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed login payload"})
	}

	s.mu.Lock()
	acct, ok := s.accounts[req.Email]
	if !ok || acct.password != req.Password {
		s.mu.Unlock()
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	}
	token := uuid.NewString()
	s.sessions[token] = acct.userID
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]string{"token": token, "user_id": acct.userID})
}

func (s *Server) handleLogout(c echo.Context) error {
	s.RevokeToken(bearerToken(c.Request()))
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleTaskStatus(c echo.Context) error {
	taskID := c.Param("id")

	s.mu.Lock()
	script, ok := s.scripts[taskID]
	if !ok {
		s.mu.Unlock()
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown task"})
	}

	idx := script.calls
	if idx >= len(script.snapshots) {
		idx = len(script.snapshots) - 1
	}
	script.calls++
	snap := script.snapshots[idx]
	s.mu.Unlock()

	if snap.TaskID == "" {
		snap.TaskID = taskID
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleGenerate(c echo.Context) error {
	var req muset.GenerateRoadmapRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed generate payload"})
	}
	if req.Topic == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "topic is required"})
	}

	taskID := "task-" + uuid.NewString()

	s.mu.Lock()
	// Unscripted generations complete on the first poll
	if _, ok := s.scripts[taskID]; !ok {
		s.scripts[taskID] = &taskScript{snapshots: []tasks.Snapshot{
			{TaskID: taskID, Status: tasks.StatusCompleted},
		}}
	}
	s.mu.Unlock()

	return c.JSON(http.StatusAccepted, muset.GenerateRoadmapResponse{TaskID: taskID})
}

func (s *Server) handleListRoadmaps(c echo.Context) error {
	s.mu.Lock()
	out := make([]muset.Roadmap, 0, len(s.roadmaps))
	for _, r := range s.roadmaps {
		out = append(out, *r)
	}
	s.mu.Unlock()

	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleRoadmap(c echo.Context) error {
	s.mu.Lock()
	roadmap, ok := s.roadmaps[c.Param("id")]
	s.mu.Unlock()

	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown roadmap"})
	}
	return c.JSON(http.StatusOK, roadmap)
}

func (s *Server) handleUpdateNode(c echo.Context) error {
	var req struct {
		Status muset.NodeStatus `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed status payload"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	roadmap, ok := s.roadmaps[c.Param("id")]
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown roadmap"})
	}
	for i := range roadmap.Nodes {
		if roadmap.Nodes[i].ID == c.Param("node") {
			roadmap.Nodes[i].Status = req.Status
			return c.NoContent(http.StatusNoContent)
		}
	}
	return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown node"})
}
