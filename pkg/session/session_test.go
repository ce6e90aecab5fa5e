package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/degreepathco/advisor/pkg/tutor"
)

// chunkReader delivers one scripted chunk per Read call, then EOF. It lets
// tests control exactly where the byte stream is cut.
type chunkReader struct {
	chunks [][]byte
	i      int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.i >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.i])
	r.i++
	return n, nil
}

func (r *chunkReader) Close() error { return nil }

// blockingReader emits its chunks, then blocks until released or the
// request context is cancelled. Close releases it with an error, the way a
// closed network connection would.
type blockingReader struct {
	ctx     context.Context
	chunks  [][]byte
	i       int
	release chan struct{}
	closed  chan struct{}
}

func newBlockingReader(ctx context.Context, chunks ...[]byte) *blockingReader {
	return &blockingReader{
		ctx:     ctx,
		chunks:  chunks,
		release: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

func (r *blockingReader) Read(p []byte) (int, error) {
	if r.i < len(r.chunks) {
		n := copy(p, r.chunks[r.i])
		r.i++
		return n, nil
	}
	select {
	case <-r.release:
		return 0, io.EOF
	case <-r.closed:
		return 0, errors.New("connection closed")
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	}
}

func (r *blockingReader) Close() error {
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
	return nil
}

type fakeAPI struct {
	stream     io.ReadCloser
	openErr    error
	opened     int
	chatResp   *tutor.ChatResponse
	chatErr    error
	history    *tutor.ChatHistory
	historyErr error
	clearErr   error
	cleared    int
}

func (f *fakeAPI) OpenTurnStream(ctx context.Context, req tutor.TurnRequest) (io.ReadCloser, error) {
	f.opened++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.stream, nil
}

func (f *fakeAPI) Chat(ctx context.Context, req tutor.TurnRequest) (*tutor.ChatResponse, error) {
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return f.chatResp, nil
}

func (f *fakeAPI) History(ctx context.Context, studentID string) (*tutor.ChatHistory, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeAPI) ClearHistory(ctx context.Context, studentID string) error {
	f.cleared++
	return f.clearErr
}

func lines(ls ...string) [][]byte {
	out := make([][]byte, len(ls))
	for i, l := range ls {
		out[i] = []byte(l)
	}
	return out
}

func TestSendTurnCommitsFragmentsInOrder(t *testing.T) {
	api := &fakeAPI{stream: &chunkReader{chunks: lines(
		"data: {\"content\":\"Hel\"}\n\n",
		"data: {\"content\":\"lo, \"}\n\n",
		"data: {\"content\":\"world!\"}\n\n",
		"data: {\"done\":true}\n\n",
	)}}
	s := New(api, "demo001")

	msg, err := s.SendTurn(context.Background(), "hi")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "Hello, world!", msg.Content)
	assert.Equal(t, tutor.RoleTutor, msg.Role)

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, tutor.RoleStudent, transcript[0].Role)
	assert.Equal(t, "hi", transcript[0].Content)
	assert.Equal(t, "Hello, world!", transcript[1].Content)
	assert.Equal(t, StateIdle, s.State())
}

func TestPartialHandlerSeesGrowingBuffer(t *testing.T) {
	api := &fakeAPI{stream: &chunkReader{chunks: lines(
		"data: {\"content\":\"Hel\"}\n",
		"data: {\"content\":\"lo\"}\n",
		"data: {\"done\":true}\n",
	)}}

	var partials []string
	s := New(api, "demo001", WithPartialHandler(func(text string) {
		partials = append(partials, text)
	}))

	_, err := s.SendTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "Hello"}, partials)
}

func TestMalformedLinesAreNoOps(t *testing.T) {
	api := &fakeAPI{stream: &chunkReader{chunks: lines(
		"data: {\"content\":\"a\"}\n",
		"data: {broken\n",
		": keepalive comment\n",
		"data: {\"content\":\"b\"}\n",
		"data: not json at all\n",
		"data: {\"done\":true}\n",
	)}}
	s := New(api, "demo001")

	msg, err := s.SendTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ab", msg.Content)
	assert.Equal(t, 2, s.MalformedRecords())
}

func TestRecordSplitAcrossChunksReassembles(t *testing.T) {
	api := &fakeAPI{stream: &chunkReader{chunks: lines(
		"data: {\"cont",
		"ent\": \"x\"}\n",
		"data: {\"done\":true}\n",
	)}}
	s := New(api, "demo001")

	msg, err := s.SendTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "x", msg.Content)
	assert.Equal(t, 0, s.MalformedRecords())
}

func TestMultibyteRuneSplitAcrossChunks(t *testing.T) {
	record := []byte("data: {\"content\":\"héllo\"}\n")
	cut := bytes.IndexByte(record, 0xC3) + 1 // between the two bytes of é
	api := &fakeAPI{stream: &chunkReader{chunks: [][]byte{
		record[:cut],
		record[cut:],
		[]byte("data: {\"done\":true}\n"),
	}}}
	s := New(api, "demo001")

	msg, err := s.SendTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "héllo", msg.Content)
}

func TestStreamEndWithoutDoneRollsBack(t *testing.T) {
	api := &fakeAPI{stream: &chunkReader{chunks: lines(
		"data: {\"content\":\"partial answer\"}\n",
	)}}
	s := New(api, "demo001")

	_, err := s.SendTurn(context.Background(), "hi")
	require.ErrorIs(t, err, ErrStreamTruncated)
	assert.Empty(t, s.Transcript())
	assert.Equal(t, StateIdle, s.State())
}

func TestErrorRecordRollsBackToPreTurnState(t *testing.T) {
	api := &fakeAPI{
		history: &tutor.ChatHistory{Messages: []tutor.Message{
			{Role: tutor.RoleStudent, Content: "earlier"},
			{Role: tutor.RoleTutor, Content: "earlier reply"},
		}},
	}
	s := New(api, "demo001")
	require.NoError(t, s.LoadHistory(context.Background()))

	api.stream = &chunkReader{chunks: lines(
		"data: {\"content\":\"some tokens\"}\n",
		"data: {\"error\": \"backend down\"}\n",
	)}

	_, err := s.SendTurn(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "earlier reply", transcript[1].Content)
	assert.Equal(t, StateIdle, s.State())
}

func TestSoleErrorRecordRollsBack(t *testing.T) {
	api := &fakeAPI{stream: &chunkReader{chunks: lines(
		"data: {\"error\": \"backend down\"}\n",
	)}}
	s := New(api, "demo001")

	_, err := s.SendTurn(context.Background(), "hi")
	require.Error(t, err)
	assert.Empty(t, s.Transcript())
}

func TestConnectFailureRollsBack(t *testing.T) {
	api := &fakeAPI{openErr: errors.New("connection refused")}
	s := New(api, "demo001")

	_, err := s.SendTurn(context.Background(), "hi")
	require.Error(t, err)
	assert.Empty(t, s.Transcript())
	assert.Equal(t, StateIdle, s.State())
}

func TestEmptyMessageRejectedBeforeNetwork(t *testing.T) {
	api := &fakeAPI{}
	s := New(api, "demo001")

	_, err := s.SendTurn(context.Background(), "   \t ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, api.opened)
	assert.Empty(t, s.Transcript())
}

func TestSecondTurnRejectedWhileInFlight(t *testing.T) {
	ctx := context.Background()
	reader := newBlockingReader(ctx, []byte("data: {\"content\":\"a\"}\n"))
	api := &fakeAPI{stream: reader}
	s := New(api, "demo001")

	errCh := make(chan error, 1)
	go func() {
		_, err := s.SendTurn(ctx, "first")
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return s.State() == StateStreaming
	}, time.Second, time.Millisecond)

	_, err := s.SendTurn(ctx, "second")
	require.ErrorIs(t, err, ErrTurnInFlight)
	require.Len(t, s.Transcript(), 1) // only the first optimistic message

	close(reader.release) // EOF without done: first turn fails and rolls back
	require.ErrorIs(t, <-errCh, ErrStreamTruncated)
	assert.Empty(t, s.Transcript())
}

func TestCancellationAbortsTurn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := newBlockingReader(ctx, []byte("data: {\"content\":\"stale\"}\n"))
	api := &fakeAPI{stream: reader}
	s := New(api, "demo001")

	errCh := make(chan error, 1)
	go func() {
		_, err := s.SendTurn(ctx, "hi")
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return s.State() == StateStreaming
	}, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	assert.Empty(t, s.Transcript())
	assert.Equal(t, StateIdle, s.State())
}

func TestStallTimeoutFailsTurn(t *testing.T) {
	ctx := context.Background()
	reader := newBlockingReader(ctx, []byte("data: {\"content\":\"a\"}\n"))
	api := &fakeAPI{stream: reader}
	s := New(api, "demo001", WithStallTimeout(20*time.Millisecond))

	_, err := s.SendTurn(ctx, "hi")
	require.ErrorIs(t, err, ErrStreamStalled)
	assert.Empty(t, s.Transcript())
}

func TestDoneTimestampUsedWhenPresent(t *testing.T) {
	api := &fakeAPI{stream: &chunkReader{chunks: lines(
		"data: {\"content\":\"ok\"}\n",
		"data: {\"done\":true,\"timestamp\":\"2026-05-01T10:00:00\"}\n",
	)}}
	s := New(api, "demo001")

	msg, err := s.SendTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 2026, msg.Timestamp.Year())
	assert.Equal(t, time.May, msg.Timestamp.Month())
}

func TestSendTurnBuffered(t *testing.T) {
	api := &fakeAPI{chatResp: &tutor.ChatResponse{
		StudentID: "demo001",
		Response:  "buffered reply",
		Timestamp: tutor.Now(),
	}}
	s := New(api, "demo001")

	msg, err := s.SendTurnBuffered(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "buffered reply", msg.Content)
	require.Len(t, s.Transcript(), 2)
}

func TestSendTurnBufferedFailureRollsBack(t *testing.T) {
	api := &fakeAPI{chatErr: errors.New("boom")}
	s := New(api, "demo001")

	_, err := s.SendTurnBuffered(context.Background(), "hi")
	require.Error(t, err)
	assert.Empty(t, s.Transcript())
}

func TestLoadHistoryPopulatesTranscript(t *testing.T) {
	api := &fakeAPI{history: &tutor.ChatHistory{
		StudentID: "demo001",
		Messages: []tutor.Message{
			{Role: tutor.RoleStudent, Content: "q"},
			{Role: tutor.RoleTutor, Content: "a"},
		},
		TotalMessages: 2,
	}}
	s := New(api, "demo001")

	require.NoError(t, s.LoadHistory(context.Background()))
	require.Len(t, s.Transcript(), 2)
}

func TestLoadHistoryFailureDegradesToEmpty(t *testing.T) {
	api := &fakeAPI{history: &tutor.ChatHistory{
		Messages: []tutor.Message{{Role: tutor.RoleTutor, Content: "old"}},
	}}
	s := New(api, "demo001")
	require.NoError(t, s.LoadHistory(context.Background()))
	require.Len(t, s.Transcript(), 1)

	api.historyErr = errors.New("service unavailable")
	require.NoError(t, s.LoadHistory(context.Background()))
	assert.Empty(t, s.Transcript())
}

func TestClearHistorySuccessEmptiesTranscript(t *testing.T) {
	api := &fakeAPI{history: &tutor.ChatHistory{
		Messages: []tutor.Message{{Role: tutor.RoleTutor, Content: "old"}},
	}}
	s := New(api, "demo001")
	require.NoError(t, s.LoadHistory(context.Background()))

	require.NoError(t, s.ClearHistory(context.Background()))
	assert.Empty(t, s.Transcript())
	assert.Equal(t, 1, api.cleared)
}

func TestClearHistoryFailureLeavesTranscript(t *testing.T) {
	api := &fakeAPI{history: &tutor.ChatHistory{
		Messages: []tutor.Message{{Role: tutor.RoleTutor, Content: "old"}},
	}}
	s := New(api, "demo001")
	require.NoError(t, s.LoadHistory(context.Background()))

	api.clearErr = errors.New("boom")
	require.Error(t, s.ClearHistory(context.Background()))
	require.Len(t, s.Transcript(), 1)
}
