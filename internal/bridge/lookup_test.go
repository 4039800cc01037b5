package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erauner12/ticketbridge/internal/store"
)

// fakeMappings serves a mapping only after availableAt, simulating the
// propagation lag between the producing side's write and our read.
type fakeMappings struct {
	mu          sync.Mutex
	mapping     *store.Mapping
	availableAt time.Time
	err         error
	calls       int
}

func (f *fakeMappings) GetMappingByTicket(_ context.Context, _ string) (*store.Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.mapping == nil || time.Now().Before(f.availableAt) {
		return nil, store.ErrNotFound
	}
	return f.mapping, nil
}

type fakeChat struct {
	threads map[string]*Thread
	sendErr error
}

func (f *fakeChat) FetchThread(_ context.Context, id string) (*Thread, error) {
	th, ok := f.threads[id]
	if !ok {
		return nil, errors.New("chat: unknown channel")
	}
	return th, nil
}

func (f *fakeChat) SendMessage(_ context.Context, _, _ string) error { return f.sendErr }
func (f *fakeChat) AddMember(_ context.Context, _, _ string) error   { return nil }

func testConfig() LookupConfig {
	return LookupConfig{
		MaxAttempts: 3,
		Window:      500 * time.Millisecond,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    40 * time.Millisecond,
	}
}

func TestLookup_ImmediateHit(t *testing.T) {
	src := &fakeMappings{mapping: &store.Mapping{ChatThreadID: "Th1", TicketID: "T1"}}
	chat := &fakeChat{threads: map[string]*Thread{"Th1": {ID: "Th1", IsThread: true}}}

	l := NewLookup(src, chat, testConfig())
	thread, mapping, err := l.FindThreadByTicket(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, "Th1", thread.ID)
	assert.Equal(t, "T1", mapping.TicketID)
	assert.Equal(t, 1, src.calls)
}

func TestLookup_AbsorbsPropagationLag(t *testing.T) {
	// The mapping lands 15ms after the lookup starts; the retry loop must
	// pick it up on a later attempt.
	src := &fakeMappings{
		mapping:     &store.Mapping{ChatThreadID: "Th1", TicketID: "T1"},
		availableAt: time.Now().Add(15 * time.Millisecond),
	}
	chat := &fakeChat{threads: map[string]*Thread{"Th1": {ID: "Th1", IsThread: true}}}

	l := NewLookup(src, chat, testConfig())
	start := time.Now()
	thread, _, err := l.FindThreadByTicket(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, "Th1", thread.ID)
	assert.GreaterOrEqual(t, src.calls, 2, "first attempt must have missed")
	// First delay is BaseDelay with up to 10% jitter either way.
	assert.GreaterOrEqual(t, time.Since(start), 8*time.Millisecond)
}

func TestLookup_ExhaustedRaisesTypedError(t *testing.T) {
	src := &fakeMappings{} // never available
	l := NewLookup(src, &fakeChat{}, testConfig())

	_, _, err := l.FindThreadByTicket(context.Background(), "T2")
	require.Error(t, err)

	var notFound *MappingNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "T2", notFound.TicketID)
	assert.Equal(t, 3, notFound.Attempts)
	assert.True(t, notFound.LikelyRace, "exhaustion inside the window classifies as a race")
	assert.Equal(t, 3, src.calls)
}

func TestLookup_RaceFlagFalseOutsideWindow(t *testing.T) {
	src := &fakeMappings{}
	cfg := testConfig()
	cfg.Window = time.Nanosecond
	l := NewLookup(src, &fakeChat{}, cfg)

	_, _, err := l.FindThreadByTicket(context.Background(), "T2")
	var notFound *MappingNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.False(t, notFound.LikelyRace)
}

func TestLookup_StoreErrorNotRetried(t *testing.T) {
	src := &fakeMappings{err: errors.New("connection refused")}
	l := NewLookup(src, &fakeChat{}, testConfig())

	_, _, err := l.FindThreadByTicket(context.Background(), "T1")
	require.Error(t, err)

	var notFound *MappingNotFoundError
	assert.False(t, errors.As(err, &notFound), "backend errors must not classify as mapping-not-found")
	assert.Equal(t, 1, src.calls, "only the mapping-not-found failure mode is retried")
}

func TestLookup_ChatErrorSurfacesImmediately(t *testing.T) {
	src := &fakeMappings{mapping: &store.Mapping{ChatThreadID: "Th1", TicketID: "T1"}}
	l := NewLookup(src, &fakeChat{threads: map[string]*Thread{}}, testConfig())

	_, _, err := l.FindThreadByTicket(context.Background(), "T1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel")
}

func TestLookup_RejectsNonThreadChannel(t *testing.T) {
	src := &fakeMappings{mapping: &store.Mapping{ChatThreadID: "C1", TicketID: "T1"}}
	chat := &fakeChat{threads: map[string]*Thread{"C1": {ID: "C1", IsThread: false}}}

	l := NewLookup(src, chat, testConfig())
	_, _, err := l.FindThreadByTicket(context.Background(), "T1")
	assert.ErrorIs(t, err, ErrNotAThread)
}

func TestLookup_ContextCancellation(t *testing.T) {
	src := &fakeMappings{}
	l := NewLookup(src, &fakeChat{}, LookupConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := l.FindThreadByTicket(ctx, "T1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "cancellation must cut the backoff short")
}
