package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sergeknystautas/githistory/internal/future"
	"github.com/sergeknystautas/githistory/internal/history"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource counts calls and can hold fetches until released.
type fakeSource struct {
	logCalls    atomic.Int32
	branchCalls atomic.Int32
	commitCalls atomic.Int32
	gate        chan struct{}
	logErr      error
	commitErr   error
	mu          sync.Mutex
	seenParams  []history.QueryParams
	logStarted  chan string
}

func newFakeSource() *fakeSource {
	return &fakeSource{}
}

// hold makes every fetch block until release is called.
func (f *fakeSource) hold() {
	f.gate = make(chan struct{})
}

func (f *fakeSource) release() {
	if f.gate != nil {
		close(f.gate)
	}
}

func (f *fakeSource) wait(ctx context.Context) error {
	if f.gate == nil {
		return nil
	}
	select {
	case <-f.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSource) LogPage(ctx context.Context, workspace string, params history.QueryParams) (*history.LogPage, error) {
	n := f.logCalls.Add(1)
	f.mu.Lock()
	f.seenParams = append(f.seenParams, params)
	f.mu.Unlock()
	if f.logStarted != nil {
		f.logStarted <- workspace
	}
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.logErr != nil {
		return nil, f.logErr
	}
	return &history.LogPage{
		Entries: []history.LogEntry{{Hash: "c" + string(rune('0'+n)), Subject: workspace}},
		Count:   int(n),
	}, nil
}

func (f *fakeSource) Branches(ctx context.Context, workspace string) ([]history.Branch, error) {
	f.branchCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return []history.Branch{{Name: "main", Current: true}, {Name: "dev"}}, nil
}

func (f *fakeSource) Commit(ctx context.Context, workspace, hash string) (*history.Commit, error) {
	f.commitCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	return &history.Commit{LogEntry: history.LogEntry{Hash: hash, Subject: "commit " + hash}}, nil
}

func newTestCoordinator(t *testing.T, src HistorySource, opts ...Option) (*Coordinator, string) {
	t.Helper()
	c := New(src, nil, opts...)
	t.Cleanup(func() { _ = c.Close() })
	id, err := c.RegisterWorkspace("/work/repo")
	require.NoError(t, err)
	return c, id
}

func await[T any](t *testing.T, f *future.Future[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	require.NoError(t, err)
	return v
}

func mainPage2() history.QueryParams {
	return history.QueryParams{Branch: history.Some("main"), PageIndex: history.Some(2)}
}

func TestGetLogEntries_ReusesInFlightFuture(t *testing.T) {
	src := newFakeSource()
	src.hold()
	c, id := newTestCoordinator(t, src)

	p1 := history.QueryParams{Branch: history.Some("main"), SearchText: history.Some("fix")}
	p2 := history.QueryParams{Branch: history.Some("main"), SearchText: history.Some("fix")}

	f1, err := c.GetLogEntries(id, p1)
	require.NoError(t, err)
	f2, err := c.GetLogEntries(id, p2)
	require.NoError(t, err)

	assert.Same(t, f1, f2)
	assert.False(t, f1.Settled())

	src.release()
	page := await(t, f1)
	assert.Equal(t, p1, page.Query)
	assert.Equal(t, int32(1), src.logCalls.Load())
}

func TestGetLogEntries_ConcurrentDuplicatesFetchOnce(t *testing.T) {
	src := newFakeSource()
	src.hold()
	c, id := newTestCoordinator(t, src)

	params := history.QueryParams{PageIndex: history.Some(3), PageSize: history.Some(50)}

	const callers = 16
	futures := make([]*future.Future[*history.LogPage], callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := c.GetLogEntries(id, params)
			assert.NoError(t, err)
			futures[i] = f
		}(i)
	}
	wg.Wait()

	for _, f := range futures[1:] {
		assert.Same(t, futures[0], f)
	}
	src.release()
	await(t, futures[0])
	assert.Equal(t, int32(1), src.logCalls.Load())
}

func TestGetLogEntries_EmptyParamsServesCachedPageWithSelection(t *testing.T) {
	src := newFakeSource()
	c, id := newTestCoordinator(t, src)

	first, err := c.GetLogEntries(id, mainPage2())
	require.NoError(t, err)
	cached := await(t, first)

	commit, err := c.GetCommit(id, "abc123")
	require.NoError(t, err)
	await(t, commit)

	f, err := c.GetLogEntries(id, history.QueryParams{})
	require.NoError(t, err)
	page := await(t, f)

	assert.Equal(t, int32(1), src.logCalls.Load(), "fast path must not refetch")
	assert.Equal(t, cached.Entries, page.Entries)
	assert.Equal(t, mainPage2(), page.Query)
	require.NotNil(t, page.Selected)
	assert.Equal(t, "abc123", page.Selected.Hash)
	assert.Nil(t, cached.Selected, "cached page must not be modified")
}

func TestGetLogEntries_EmptyParamsWithoutSelection(t *testing.T) {
	src := newFakeSource()
	c, id := newTestCoordinator(t, src)

	first, err := c.GetLogEntries(id, mainPage2())
	require.NoError(t, err)
	await(t, first)

	f, err := c.GetLogEntries(id, history.QueryParams{})
	require.NoError(t, err)
	page := await(t, f)

	assert.Nil(t, page.Selected)
	assert.Equal(t, int32(1), src.logCalls.Load())
}

func TestGetLogEntries_EmptyParamsAwaitsPendingSelection(t *testing.T) {
	src := newFakeSource()
	c, id := newTestCoordinator(t, src)

	first, err := c.GetLogEntries(id, mainPage2())
	require.NoError(t, err)
	await(t, first)

	src.hold()
	_, err = c.GetCommit(id, "abc123")
	require.NoError(t, err)

	f, err := c.GetLogEntries(id, history.QueryParams{})
	require.NoError(t, err)
	assert.False(t, f.Settled(), "listing should wait for the pending selection")

	src.release()
	page := await(t, f)
	require.NotNil(t, page.Selected)
	assert.Equal(t, "abc123", page.Selected.Hash)
}

func TestGetLogEntries_FailedSelectionIsDropped(t *testing.T) {
	src := newFakeSource()
	src.commitErr = errors.New("bad object")
	c, id := newTestCoordinator(t, src)

	first, err := c.GetLogEntries(id, mainPage2())
	require.NoError(t, err)
	await(t, first)

	commit, err := c.GetCommit(id, "abc123")
	require.NoError(t, err)
	_, err = commit.Await(context.Background())
	require.Error(t, err)

	f, err := c.GetLogEntries(id, history.QueryParams{})
	require.NoError(t, err)
	page := await(t, f)
	assert.Nil(t, page.Selected)
}

func TestGetLogEntries_BranchOnlyMatchingCachedBranchUsesFastPath(t *testing.T) {
	src := newFakeSource()
	c, id := newTestCoordinator(t, src)

	first, err := c.GetLogEntries(id, mainPage2())
	require.NoError(t, err)
	await(t, first)

	f, err := c.GetLogEntries(id, history.QueryParams{Branch: history.Some("main")})
	require.NoError(t, err)
	page := await(t, f)

	assert.Equal(t, int32(1), src.logCalls.Load())
	assert.Equal(t, mainPage2(), page.Query)
}

func TestGetLogEntries_BranchMismatchRefetches(t *testing.T) {
	src := newFakeSource()
	c, id := newTestCoordinator(t, src)

	first, err := c.GetLogEntries(id, history.QueryParams{Branch: history.Some("main")})
	require.NoError(t, err)
	await(t, first)

	dev := history.QueryParams{Branch: history.Some("dev")}
	f, err := c.GetLogEntries(id, dev)
	require.NoError(t, err)
	page := await(t, f)

	assert.Equal(t, int32(2), src.logCalls.Load())
	assert.Equal(t, dev, page.Query)

	entry, err := c.store.GetState("/work/repo")
	require.NoError(t, err)
	assert.Equal(t, dev, entry.Params)
	assert.Same(t, f, entry.Result)
}

func TestGetLogEntries_DifferentParamsReplaceCache(t *testing.T) {
	src := newFakeSource()
	c, id := newTestCoordinator(t, src)

	p1 := history.QueryParams{PageIndex: history.Some(0)}
	p2 := history.QueryParams{PageIndex: history.Some(1)}

	f1, err := c.GetLogEntries(id, p1)
	require.NoError(t, err)
	await(t, f1)
	f2, err := c.GetLogEntries(id, p2)
	require.NoError(t, err)
	await(t, f2)

	assert.NotSame(t, f1, f2)
	assert.Equal(t, int32(2), src.logCalls.Load())

	// Only the latest params are cached, so going back fetches again.
	f3, err := c.GetLogEntries(id, p1)
	require.NoError(t, err)
	await(t, f3)
	assert.Equal(t, int32(3), src.logCalls.Load())
}

func TestGetLogEntries_ZeroValueIsNotAbsent(t *testing.T) {
	src := newFakeSource()
	c, id := newTestCoordinator(t, src)

	f1, err := c.GetLogEntries(id, history.QueryParams{SearchText: history.Some("")})
	require.NoError(t, err)
	await(t, f1)

	f2, err := c.GetLogEntries(id, history.QueryParams{SearchText: history.Some("")})
	require.NoError(t, err)
	assert.Same(t, f1, f2)

	f3, err := c.GetLogEntries(id, history.QueryParams{PageIndex: history.Some(0)})
	require.NoError(t, err)
	await(t, f3)
	assert.Equal(t, int32(2), src.logCalls.Load())
}

func TestGetLogEntries_FirstEmptyRequestFetches(t *testing.T) {
	src := newFakeSource()
	c, id := newTestCoordinator(t, src)

	f1, err := c.GetLogEntries(id, history.QueryParams{})
	require.NoError(t, err)
	page := await(t, f1)
	assert.True(t, page.Query.IsEmpty())
	assert.Equal(t, int32(1), src.logCalls.Load())

	f2, err := c.GetLogEntries(id, history.QueryParams{})
	require.NoError(t, err)
	await(t, f2)
	assert.Equal(t, int32(1), src.logCalls.Load())
}

func TestGetLogEntries_FailureStaysCachedUntilRefresh(t *testing.T) {
	src := newFakeSource()
	src.logErr = errors.New("fatal: not a git repository")
	c, id := newTestCoordinator(t, src)

	params := history.QueryParams{Branch: history.Some("main"), SearchText: history.Some("x")}
	f1, err := c.GetLogEntries(id, params)
	require.NoError(t, err)
	_, err = f1.Await(context.Background())
	require.Error(t, err)
	assert.True(t, history.IsUpstreamFailure(err))

	f2, err := c.GetLogEntries(id, params)
	require.NoError(t, err)
	assert.Same(t, f1, f2, "failed future is not auto-evicted")
	assert.Equal(t, int32(1), src.logCalls.Load())

	src.logErr = nil
	f3, err := c.RefreshLogEntries(id, params)
	require.NoError(t, err)
	assert.NotSame(t, f1, f3)
	page := await(t, f3)
	assert.Equal(t, params, page.Query)
	assert.Equal(t, int32(2), src.logCalls.Load())
}

func TestRefreshLogEntries_AlwaysFetches(t *testing.T) {
	src := newFakeSource()
	c, id := newTestCoordinator(t, src)

	f1, err := c.RefreshLogEntries(id, history.QueryParams{})
	require.NoError(t, err)
	await(t, f1)
	f2, err := c.RefreshLogEntries(id, history.QueryParams{})
	require.NoError(t, err)
	await(t, f2)

	assert.NotSame(t, f1, f2)
	assert.Equal(t, int32(2), src.logCalls.Load())
}

func TestGetLogEntries_UnknownWorkspace(t *testing.T) {
	c, _ := newTestCoordinator(t, newFakeSource())

	_, err := c.GetLogEntries("nope", history.QueryParams{})
	require.Error(t, err)
	assert.True(t, history.IsNotFound(err))
}

func TestGetCommit_MemoKeyedOnHash(t *testing.T) {
	src := newFakeSource()
	c, id := newTestCoordinator(t, src)

	f1, err := c.GetCommit(id, "abc123")
	require.NoError(t, err)
	await(t, f1)
	f2, err := c.GetCommit(id, "abc123")
	require.NoError(t, err)
	assert.Same(t, f1, f2)
	assert.Equal(t, int32(1), src.commitCalls.Load())

	f3, err := c.GetCommit(id, "def456")
	require.NoError(t, err)
	got := await(t, f3)
	assert.Equal(t, "def456", got.Hash)
	assert.Equal(t, int32(2), src.commitCalls.Load())

	// Only the most recent lookup is memoized.
	f4, err := c.GetCommit(id, "abc123")
	require.NoError(t, err)
	await(t, f4)
	assert.Equal(t, int32(3), src.commitCalls.Load())
}

func TestGetCommit_PrefixIsADifferentKey(t *testing.T) {
	src := newFakeSource()
	c, id := newTestCoordinator(t, src)

	f1, err := c.GetCommit(id, "abc123")
	require.NoError(t, err)
	await(t, f1)
	f2, err := c.GetCommit(id, "abc12")
	require.NoError(t, err)
	await(t, f2)

	assert.Equal(t, int32(2), src.commitCalls.Load())
}

func TestGetCommit_EmptyHash(t *testing.T) {
	c, id := newTestCoordinator(t, newFakeSource())

	_, err := c.GetCommit(id, "")
	require.Error(t, err)
	assert.True(t, history.IsInvalidArgument(err))
}

func TestClearSelection_Idempotent(t *testing.T) {
	src := newFakeSource()
	c, id := newTestCoordinator(t, src)

	f, err := c.GetCommit(id, "abc123")
	require.NoError(t, err)
	await(t, f)

	for i := 0; i < 2; i++ {
		require.NoError(t, c.ClearSelection(id))
		entry, err := c.store.GetState("/work/repo")
		require.NoError(t, err)
		assert.False(t, entry.HasSelection())
		assert.Empty(t, entry.LastFetchedHash)
	}

	// After a clear the same hash is fetched again.
	f2, err := c.GetCommit(id, "abc123")
	require.NoError(t, err)
	await(t, f2)
	assert.Equal(t, int32(2), src.commitCalls.Load())
}

func TestClearSelection_DoesNotTouchListing(t *testing.T) {
	src := newFakeSource()
	c, id := newTestCoordinator(t, src)

	f1, err := c.GetLogEntries(id, mainPage2())
	require.NoError(t, err)
	await(t, f1)
	commit, err := c.GetCommit(id, "abc123")
	require.NoError(t, err)
	await(t, commit)

	require.NoError(t, c.ClearSelection(id))

	f2, err := c.GetLogEntries(id, history.QueryParams{})
	require.NoError(t, err)
	page := await(t, f2)
	assert.Nil(t, page.Selected)
	assert.Equal(t, int32(1), src.logCalls.Load())
}

func TestGetBranches_PassThrough(t *testing.T) {
	src := newFakeSource()
	c, id := newTestCoordinator(t, src)

	for i := 0; i < 2; i++ {
		f, err := c.GetBranches(id)
		require.NoError(t, err)
		branches := await(t, f)
		require.Len(t, branches, 2)
		assert.Equal(t, "main", branches[0].Name)
	}
	assert.Equal(t, int32(2), src.branchCalls.Load())
}

func TestIsolation_WorkspacesDoNotBlockEachOther(t *testing.T) {
	src := newFakeSource()
	src.hold()
	src.logStarted = make(chan string, 4)
	c := New(src, nil)
	t.Cleanup(func() { _ = c.Close() })

	a, err := c.RegisterWorkspace("/work/a")
	require.NoError(t, err)
	b, err := c.RegisterWorkspace("/work/b")
	require.NoError(t, err)

	fa, err := c.GetLogEntries(a, history.QueryParams{Branch: history.Some("main")})
	require.NoError(t, err)
	<-src.logStarted

	// a's fetch is pending; b must still be served and its entry untouched by a.
	fb, err := c.GetLogEntries(b, history.QueryParams{Branch: history.Some("dev")})
	require.NoError(t, err)
	<-src.logStarted
	assert.NotSame(t, fa, fb)

	entryA, err := c.store.GetState("/work/a")
	require.NoError(t, err)
	entryB, err := c.store.GetState("/work/b")
	require.NoError(t, err)
	assert.Equal(t, history.Some("main"), entryA.Params.Branch)
	assert.Equal(t, history.Some("dev"), entryB.Params.Branch)

	_, err = c.GetCommit(b, "abc123")
	require.NoError(t, err)
	entryA, err = c.store.GetState("/work/a")
	require.NoError(t, err)
	assert.False(t, entryA.HasSelection())

	src.release()
	pa := await(t, fa)
	pb := await(t, fb)
	assert.Equal(t, "/work/a", pa.Entries[0].Subject)
	assert.Equal(t, "/work/b", pb.Entries[0].Subject)
}

func TestNotifier_ReceivesEvents(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	src := newFakeSource()
	c, id := newTestCoordinator(t, src, WithNotifier(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))

	f, err := c.GetLogEntries(id, mainPage2())
	require.NoError(t, err)
	await(t, f)
	// Reuse emits nothing.
	f, err = c.GetLogEntries(id, mainPage2())
	require.NoError(t, err)
	await(t, f)
	commit, err := c.GetCommit(id, "abc123")
	require.NoError(t, err)
	await(t, commit)
	require.NoError(t, c.ClearSelection(id))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	assert.Equal(t, EventEntriesUpdated, events[0].Type)
	assert.Equal(t, mainPage2(), events[0].Params)
	assert.Equal(t, EventSelectionUpdated, events[1].Type)
	assert.Equal(t, "abc123", events[1].Hash)
	assert.Equal(t, EventSelectionCleared, events[2].Type)
	for _, ev := range events {
		assert.Equal(t, id, ev.WorkspaceID)
	}
}

func TestFetchTimeout(t *testing.T) {
	src := newFakeSource()
	src.hold()
	defer src.release()
	c, id := newTestCoordinator(t, src, WithFetchTimeout(20*time.Millisecond))

	f, err := c.GetLogEntries(id, history.QueryParams{})
	require.NoError(t, err)
	_, err = f.Await(context.Background())
	require.Error(t, err)
	assert.True(t, history.IsUpstreamFailure(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose(t *testing.T) {
	src := newFakeSource()
	src.hold()
	c := New(src, nil)
	id, err := c.RegisterWorkspace("/work/repo")
	require.NoError(t, err)

	pending, err := c.GetLogEntries(id, history.QueryParams{})
	require.NoError(t, err)

	require.NoError(t, c.Close())

	_, err = pending.Await(context.Background())
	require.Error(t, err, "pending fetches are cancelled")

	_, err = c.GetLogEntries(id, history.QueryParams{})
	assert.True(t, history.IsInvalidState(err))
	_, err = c.GetCommit(id, "abc123")
	assert.True(t, history.IsInvalidState(err))
	_, err = c.GetBranches(id)
	assert.True(t, history.IsInvalidState(err))
	assert.True(t, history.IsInvalidState(c.ClearSelection(id)))
	_, err = c.RegisterWorkspace("/work/other")
	assert.True(t, history.IsInvalidState(err))

	// Close is idempotent.
	require.NoError(t, c.Close())
}
