// Package tutorstub provides a local stand-in for the Tutor Service. It
// implements the chat wire contract (SSE-framed streaming turns, buffered
// chat, history, stats, and student records) with keyword-matched canned
// replies, so the advisor CLI and the session tests can run without the real
// backend. It does not scrape, search, or generate reports.
package tutorstub

import (
	"bufio"
	"context"
	"expvar"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/degreepathco/advisor/pkg/tutor"
)

var (
	turnsTotal     = expvar.NewInt("tutorstub_turns_total")
	messagesTotal  = expvar.NewInt("tutorstub_messages_total")
	streamFailures = expvar.NewInt("tutorstub_stream_failures_total")
)

// Config is the stub server configuration.
type Config struct {
	// Address to listen on (e.g., ":8001")
	ListenAddr string

	// DBPath is the path to the SQLite history database.
	// Empty keeps history in memory only.
	DBPath string

	// RepliesPath optionally points at a TOML reply book that overrides
	// the built-in replies and is hot-reloaded on change.
	RepliesPath string

	// WordDelay paces the streamed reply, one word per tick.
	// Zero streams as fast as the client reads.
	WordDelay time.Duration
}

// Server is the stub Tutor Service.
type Server struct {
	config  Config
	store   HistoryStore
	replies *ReplyBook
	logger  *zap.Logger
	app     *fiber.App

	mu       sync.RWMutex
	students map[string]tutor.StudentProfile
}

// New creates a stub server, seeding the demo student roster.
func New(config Config, logger *zap.Logger) (*Server, error) {
	var store HistoryStore
	if config.DBPath != "" {
		var err error
		store, err = NewSQLiteStore(config.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite history store: %w", err)
		}
		logger.Info("using SQLite history", zap.String("path", config.DBPath))
	} else {
		store = NewMemoryStore()
		logger.Info("using in-memory history")
	}

	replies := DefaultReplyBook()
	if config.RepliesPath != "" {
		if err := replies.LoadFile(config.RepliesPath); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to load reply book: %w", err)
		}
		go func() {
			if err := replies.Watch(config.RepliesPath, logger); err != nil {
				logger.Warn("reply book watcher stopped", zap.Error(err))
			}
		}()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StreamRequestBody:     true,
	})

	s := &Server{
		config:   config,
		store:    store,
		replies:  replies,
		logger:   logger,
		app:      app,
		students: demoStudents(),
	}

	app.Post("/chat/stream", s.handleChatStream)
	app.Post("/chat", s.handleChat)
	app.Get("/chat/stats", s.handleStats)
	app.Get("/chat/:student_id/history", s.handleHistory)
	app.Delete("/chat/:student_id", s.handleClear)

	app.Get("/students", s.handleListStudents)
	app.Post("/students", s.handleCreateStudent)
	app.Get("/students/:student_id", s.handleGetStudent)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]any{"status": "healthy", "ai_backend": "canned"})
	})
	app.Get("/debug/vars", adaptor.HTTPHandler(expvar.Handler()))

	return s, nil
}

// demoStudents mirrors the roster the real service ships for demos.
func demoStudents() map[string]tutor.StudentProfile {
	return map[string]tutor.StudentProfile{
		"demo001": {
			StudentID:      "demo001",
			Name:           "Alex Chen",
			Degree:         "Bachelor of Information Technology",
			Major:          "Software Development",
			CompletedUnits: []string{"COMP1000"},
			EnrolledUnits:  []string{"COMP1010", "COMP1350"},
		},
		"demo002": {
			StudentID:      "demo002",
			Name:           "Sarah Johnson",
			Degree:         "Bachelor of Information Technology",
			Major:          "Cyber Security",
			CompletedUnits: []string{"COMP1000", "COMP1010", "COMP1300"},
			EnrolledUnits:  []string{"COMP2300", "COMP2310"},
		},
	}
}

// Run starts the stub server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting stub tutor service", zap.String("listen", s.config.ListenAddr))
	return s.app.Listen(s.config.ListenAddr)
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// Close shuts down the server and releases resources.
func (s *Server) Close() error {
	if err := s.app.Shutdown(); err != nil {
		s.store.Close()
		return err
	}
	return s.store.Close()
}

func (s *Server) lookupStudent(id string) (tutor.StudentProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.students[id]
	return profile, ok
}

// handleChatStream streams a canned reply word by word in the SSE framing
// the real service uses: `data: {json}` lines with content records followed
// by a single done record carrying the commit timestamp.
func (s *Server) handleChatStream(c *fiber.Ctx) error {
	var req tutor.TurnRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(tutor.ErrorResponse{Detail: "invalid request body"})
	}

	profile, ok := s.lookupStudent(req.StudentID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(tutor.ErrorResponse{Detail: "Student not found: " + req.StudentID})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(tutor.ErrorResponse{Detail: "message is empty"})
	}

	turnsTotal.Add(1)
	reply := s.replies.Pick(req.Message, profile)
	delay := s.config.WordDelay

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		for _, word := range strings.Fields(reply) {
			fmt.Fprintf(w, "data: {\"content\": %q}\n\n", word+" ")
			if err := w.Flush(); err != nil {
				streamFailures.Add(1)
				s.logger.Debug("client went away mid-stream", zap.Error(err))
				return
			}
			if delay > 0 {
				time.Sleep(delay)
			}
		}

		now := tutor.Now()
		if err := s.recordTurn(req, reply, now); err != nil {
			streamFailures.Add(1)
			s.logger.Error("failed to record turn", zap.Error(err))
			fmt.Fprintf(w, "data: {\"error\": %q}\n\n", "failed to record turn")
			w.Flush()
			return
		}

		fmt.Fprintf(w, "data: {\"done\": true, \"timestamp\": %q}\n\n", now.UTC().Format(time.RFC3339Nano))
		w.Flush()
	}))

	return nil
}

// handleChat answers the buffered chat endpoint with the full reply at once.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req tutor.TurnRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(tutor.ErrorResponse{Detail: "invalid request body"})
	}

	profile, ok := s.lookupStudent(req.StudentID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(tutor.ErrorResponse{Detail: "Student not found: " + req.StudentID})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(tutor.ErrorResponse{Detail: "message is empty"})
	}

	turnsTotal.Add(1)
	reply := s.replies.Pick(req.Message, profile)
	now := tutor.Now()
	if err := s.recordTurn(req, reply, now); err != nil {
		s.logger.Error("failed to record turn", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(tutor.ErrorResponse{Detail: "failed to record turn"})
	}

	return c.JSON(tutor.ChatResponse{
		StudentID: req.StudentID,
		Message:   req.Message,
		Response:  reply,
		Timestamp: now,
	})
}

// recordTurn appends the student and tutor messages to the history store,
// in that order.
func (s *Server) recordTurn(req tutor.TurnRequest, reply string, now tutor.Timestamp) error {
	ctx := context.Background()
	student := tutor.Message{Role: tutor.RoleStudent, Content: req.Message, Timestamp: now}
	if err := s.store.Append(ctx, req.StudentID, student); err != nil {
		return err
	}
	messagesTotal.Add(1)

	reply = strings.TrimSpace(reply)
	tutorMsg := tutor.Message{Role: tutor.RoleTutor, Content: reply, Timestamp: now}
	if err := s.store.Append(ctx, req.StudentID, tutorMsg); err != nil {
		return err
	}
	messagesTotal.Add(1)
	return nil
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	studentID := c.Params("student_id")
	if _, ok := s.lookupStudent(studentID); !ok {
		return c.Status(fiber.StatusNotFound).JSON(tutor.ErrorResponse{Detail: "Student not found: " + studentID})
	}

	messages, err := s.store.List(c.Context(), studentID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(tutor.ErrorResponse{Detail: "failed to load history"})
	}
	if messages == nil {
		messages = []tutor.Message{}
	}

	return c.JSON(tutor.ChatHistory{
		StudentID:     studentID,
		Messages:      messages,
		TotalMessages: len(messages),
	})
}

func (s *Server) handleClear(c *fiber.Ctx) error {
	studentID := c.Params("student_id")
	if _, ok := s.lookupStudent(studentID); !ok {
		return c.Status(fiber.StatusNotFound).JSON(tutor.ErrorResponse{Detail: "Student not found: " + studentID})
	}

	if err := s.store.Clear(c.Context(), studentID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(tutor.ErrorResponse{Detail: "failed to clear history"})
	}
	return c.JSON(tutor.ClearResponse{Status: "cleared", StudentID: studentID})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	stats, err := s.store.Stats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(tutor.ErrorResponse{Detail: "failed to compute stats"})
	}
	return c.JSON(map[string]any{"status": "ok", "statistics": stats})
}

func (s *Server) handleListStudents(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tutor.StudentProfile, 0, len(s.students))
	for _, profile := range s.students {
		out = append(out, profile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return c.JSON(out)
}

func (s *Server) handleGetStudent(c *fiber.Ctx) error {
	studentID := c.Params("student_id")
	profile, ok := s.lookupStudent(studentID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(tutor.ErrorResponse{Detail: "Student not found: " + studentID})
	}
	return c.JSON(profile)
}

func (s *Server) handleCreateStudent(c *fiber.Ctx) error {
	var profile tutor.StudentProfile
	if err := c.BodyParser(&profile); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(tutor.ErrorResponse{Detail: "invalid request body"})
	}
	if strings.TrimSpace(profile.StudentID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(tutor.ErrorResponse{Detail: "student_id is required"})
	}

	s.mu.Lock()
	s.students[profile.StudentID] = profile
	s.mu.Unlock()

	return c.JSON(profile)
}
