// Package session drives one conversation against the Tutor Service's chat
// endpoints. A Session owns its transcript exclusively: it appends the
// student's message optimistically, reconciles the streamed reply into a
// committed tutor message on completion, and rolls the transcript back to
// its pre-turn state on any failure or cancellation.
package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/degreepathco/advisor/pkg/tutor"
)

var (
	// ErrTurnInFlight is returned when SendTurn is called while a turn is
	// already outstanding on the same session.
	ErrTurnInFlight = errors.New("a turn is already in flight for this session")

	// ErrEmptyMessage is returned when the message is empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrStreamTruncated is returned when the connection closes before the
	// upstream signals completion.
	ErrStreamTruncated = errors.New("stream ended before completion")
)

// API is the slice of the Tutor Service client a Session needs. Tests
// inject fakes; production code passes *tutor.Client.
type API interface {
	OpenTurnStream(ctx context.Context, req tutor.TurnRequest) (io.ReadCloser, error)
	Chat(ctx context.Context, req tutor.TurnRequest) (*tutor.ChatResponse, error)
	History(ctx context.Context, studentID string) (*tutor.ChatHistory, error)
	ClearHistory(ctx context.Context, studentID string) error
}

// Session is a streaming chat session for a single student. A Session is
// bound to one student for its lifetime; switching students means
// cancelling the outstanding context and building a new Session.
//
// Mutations of the transcript and the in-flight buffer are serialized by
// the session's mutex, and the single-outstanding-turn invariant is
// enforced explicitly: a second SendTurn is rejected, not queued.
type Session struct {
	studentID    string
	api          API
	logger       *zap.Logger
	stallTimeout time.Duration
	onPartial    func(string)

	mu         sync.Mutex
	state      State
	transcript []tutor.Message
	buf        strings.Builder
	malformed  int
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger attaches a logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithStallTimeout aborts a turn when no chunk arrives within d.
// Zero disables the watchdog.
func WithStallTimeout(d time.Duration) Option {
	return func(s *Session) { s.stallTimeout = d }
}

// WithPartialHandler registers a callback invoked with the full text of the
// in-flight tutor reply each time new content arrives. Consumers render it
// as a provisional, still-growing message; it is never part of the
// transcript until the turn completes.
func WithPartialHandler(fn func(string)) Option {
	return func(s *Session) { s.onPartial = fn }
}

// New creates an idle Session for the given student.
func New(api API, studentID string, opts ...Option) *Session {
	s := &Session{
		studentID: studentID,
		api:       api,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StudentID reports the student this session is bound to.
func (s *Session) StudentID() string {
	return s.studentID
}

// State reports the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns a copy of the committed message log in arrival order.
// The in-flight partial reply is never included.
func (s *Session) Transcript() []tutor.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tutor.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// MalformedRecords reports how many data: lines were discarded as
// unparseable across all turns. Incomplete lines on a chunked stream are
// expected; a count that keeps climbing flags a persistently broken stream.
func (s *Session) MalformedRecords() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.malformed
}

// SendTurn sends one student message to the streaming endpoint and blocks
// until the tutor's reply is committed or the turn fails. On success the
// transcript gains exactly two messages, student then tutor, and the
// committed tutor message is returned. On any failure the optimistic
// student message is retracted, the partial buffer discarded, and the
// session returns to idle; the caller surfaces the returned error and may
// resubmit. Cancelling ctx releases the connection and fails the turn.
func (s *Session) SendTurn(ctx context.Context, text string) (*tutor.Message, error) {
	text = strings.TrimSpace(text)
	if err := s.begin(text); err != nil {
		return nil, err
	}

	body, err := s.api.OpenTurnStream(ctx, tutor.TurnRequest{StudentID: s.studentID, Message: text})
	if err != nil {
		return nil, s.fail(err)
	}
	defer body.Close()

	var rc io.ReadCloser = body
	if s.stallTimeout > 0 {
		guard := newStallGuard(body, s.stallTimeout)
		defer guard.Close()
		rc = guard
	}

	s.setState(StateStreaming)

	msg, err := s.consume(ctx, rc)
	if err != nil {
		return nil, s.fail(err)
	}
	return msg, nil
}

// consume runs the read loop until a done record commits the turn or the
// stream errors out. Records are processed in the exact order the byte
// stream delivers them.
func (s *Session) consume(ctx context.Context, rc io.Reader) (*tutor.Message, error) {
	var dec eventDecoder
	defer s.recordMalformed(&dec)

	chunk := make([]byte, 4096)
	for {
		n, readErr := rc.Read(chunk)
		if n > 0 {
			for _, ev := range dec.Feed(chunk[:n]) {
				msg, done, err := s.apply(ev)
				if err != nil || done {
					return msg, err
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, readErr
		}
	}

	// The upstream may close the connection with a final unterminated line.
	if ev, ok := dec.Flush(); ok {
		msg, done, err := s.apply(ev)
		if err != nil || done {
			return msg, err
		}
	}
	return nil, ErrStreamTruncated
}

// apply folds one decoded record into the turn, consulting fields in wire
// priority: content, then done, then error. done=true means the turn
// committed and msg holds the finalized tutor message.
func (s *Session) apply(ev tutor.StreamEvent) (msg *tutor.Message, done bool, err error) {
	if ev.Content != "" {
		s.mu.Lock()
		s.buf.WriteString(ev.Content)
		partial := s.buf.String()
		s.mu.Unlock()
		if s.onPartial != nil {
			s.onPartial(partial)
		}
	}
	if ev.Done {
		m := s.commit(ev)
		return &m, true, nil
	}
	if ev.Error != "" {
		return nil, false, errors.New("tutor service error: " + ev.Error)
	}
	return nil, false, nil
}

// SendTurnBuffered sends one turn over the buffered endpoint, with the same
// optimistic-update and rollback contract as SendTurn but no partial
// publication.
func (s *Session) SendTurnBuffered(ctx context.Context, text string) (*tutor.Message, error) {
	text = strings.TrimSpace(text)
	if err := s.begin(text); err != nil {
		return nil, err
	}

	resp, err := s.api.Chat(ctx, tutor.TurnRequest{StudentID: s.studentID, Message: text})
	if err != nil {
		return nil, s.fail(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	msg := tutor.Message{Role: tutor.RoleTutor, Content: resp.Response, Timestamp: resp.Timestamp}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = tutor.Now()
	}
	s.transcript = append(s.transcript, msg)
	s.state = StateIdle
	return &msg, nil
}

// LoadHistory replaces the local transcript with the persisted one. History
// is best-effort: on failure the transcript resets to empty and no error is
// surfaced. Rejected while a turn is outstanding.
func (s *Session) LoadHistory(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrTurnInFlight
	}
	s.mu.Unlock()

	history, err := s.api.History(ctx, s.studentID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Debug("history fetch failed, starting empty",
			zap.String("student_id", s.studentID),
			zap.Error(err),
		)
		s.transcript = nil
		return nil
	}
	s.transcript = append([]tutor.Message(nil), history.Messages...)
	return nil
}

// ClearHistory deletes the server-side transcript. On success the local
// transcript is cleared too; on failure it is left untouched and the error
// is returned. Rejected while a turn is outstanding.
func (s *Session) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrTurnInFlight
	}
	s.mu.Unlock()

	if err := s.api.ClearHistory(ctx, s.studentID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = nil
	return nil
}

// begin validates the message, enforces the single-outstanding-turn
// invariant, and applies the optimistic student append.
func (s *Session) begin(text string) error {
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrTurnInFlight
	}
	s.state = StateSending
	s.buf.Reset()
	s.transcript = append(s.transcript, tutor.Message{
		Role:      tutor.RoleStudent,
		Content:   text,
		Timestamp: tutor.Now(),
	})
	return nil
}

// commit finalizes the in-flight buffer into a tutor message.
func (s *Session) commit(ev tutor.StreamEvent) tutor.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := tutor.ParseTimestamp(ev.Timestamp)
	if !ok {
		ts = tutor.Now()
	}
	msg := tutor.Message{Role: tutor.RoleTutor, Content: s.buf.String(), Timestamp: ts}
	s.transcript = append(s.transcript, msg)
	s.buf.Reset()
	s.state = StateIdle

	s.logger.Debug("turn committed",
		zap.String("student_id", s.studentID),
		zap.Int("transcript_len", len(s.transcript)),
	)
	return msg
}

// fail rolls the turn back: the in-flight buffer is discarded, the
// optimistic student message retracted, and the session re-enters idle.
// The returned error is the caller's failure notification.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateFailed
	s.buf.Reset()
	if n := len(s.transcript); n > 0 {
		s.transcript = s.transcript[:n-1]
	}
	s.state = StateIdle

	s.logger.Debug("turn failed, transcript rolled back",
		zap.String("student_id", s.studentID),
		zap.Error(err),
	)
	return err
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) recordMalformed(dec *eventDecoder) {
	if n := dec.Malformed(); n > 0 {
		s.mu.Lock()
		s.malformed += n
		s.mu.Unlock()
		s.logger.Debug("discarded unparseable stream lines", zap.Int("count", n))
	}
}
