package tabs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/tabdeck/internal/journal"
	"github.com/asheshgoplani/tabdeck/internal/store"
	"github.com/asheshgoplani/tabdeck/internal/wm"
)

// scheduledWindow is a window that appears `delay` enumerations after the
// launch that consumed it.
type scheduledWindow struct {
	id    wm.WindowID
	delay int
}

// fakeBackend is an in-memory window registry. Launches consume scheduled
// windows; every backend call is recorded for order assertions.
type fakeBackend struct {
	windows   []wm.WindowID
	queue     []scheduledWindow
	launched  []*scheduledWindow
	launches  int
	calls     []string
	failClose map[wm.WindowID]bool
	failHide  bool
}

func (f *fakeBackend) schedule(id wm.WindowID, delay int) {
	f.queue = append(f.queue, scheduledWindow{id: id, delay: delay})
}

func (f *fakeBackend) LaunchTerminal() error {
	f.launches++
	f.calls = append(f.calls, "launch")
	if len(f.queue) > 0 {
		sw := f.queue[0]
		f.queue = f.queue[1:]
		f.launched = append(f.launched, &sw)
	}
	return nil
}

func (f *fakeBackend) Windows() []wm.WindowID {
	var still []*scheduledWindow
	for _, sw := range f.launched {
		if sw.delay <= 0 {
			f.windows = append(f.windows, sw.id)
		} else {
			sw.delay--
			still = append(still, sw)
		}
	}
	f.launched = still

	out := make([]wm.WindowID, len(f.windows))
	copy(out, f.windows)
	return out
}

func (f *fakeBackend) Hide(id wm.WindowID) error {
	f.calls = append(f.calls, "hide "+id.String())
	if f.failHide {
		return errors.New("unmap failed")
	}
	return nil
}

func (f *fakeBackend) Show(id wm.WindowID) error {
	f.calls = append(f.calls, "show "+id.String())
	return nil
}

func (f *fakeBackend) Focus(id wm.WindowID) error {
	f.calls = append(f.calls, "focus "+id.String())
	return nil
}

func (f *fakeBackend) Close(id wm.WindowID) error {
	f.calls = append(f.calls, "close "+id.String())
	if f.failClose[id] {
		return errors.New("close failed")
	}
	for i, w := range f.windows {
		if w == id {
			f.windows = append(f.windows[:i], f.windows[i+1:]...)
			break
		}
	}
	return nil
}

func testPoll() PollPolicy {
	return PollPolicy{Attempts: 5, Interval: time.Millisecond}
}

func newTestController(t *testing.T) (*Controller, *store.Store, *fakeBackend) {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "session.json"))
	backend := &fakeBackend{}
	return New(st, backend, testPoll()), st, backend
}

func idp(id wm.WindowID) *wm.WindowID { return &id }

func TestStartCreatesSession(t *testing.T) {
	ctrl, st, backend := newTestController(t)
	backend.schedule(100, 0)

	id, err := ctrl.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wm.WindowID(100), id)

	rec := st.Load(nil)
	assert.Equal(t, []wm.WindowID{100}, rec.Windows)
	require.NotNil(t, rec.Active)
	assert.Equal(t, wm.WindowID(100), *rec.Active)
	assert.Equal(t, "[1/1]", rec.Status)
}

func TestStartWaitsForSlowWindow(t *testing.T) {
	ctrl, _, backend := newTestController(t)
	backend.schedule(100, 3)

	id, err := ctrl.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wm.WindowID(100), id)
}

func TestStartReclaimsAbandonedSession(t *testing.T) {
	ctrl, st, backend := newTestController(t)

	// Leftover record from a crashed run, window still alive.
	backend.windows = []wm.WindowID{50}
	_, err := st.Save(store.Record{Windows: []wm.WindowID{50}, Active: idp(50)})
	require.NoError(t, err)

	backend.schedule(100, 0)
	id, err := ctrl.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wm.WindowID(100), id)

	// The zombie window was closed before the new launch.
	assert.Equal(t, []string{"close 50", "launch"}, backend.calls[:2])

	rec := st.Load(nil)
	assert.Equal(t, []wm.WindowID{100}, rec.Windows)
}

func TestStartDiscoveryTimeout(t *testing.T) {
	ctrl, st, backend := newTestController(t)
	// Nothing scheduled: the launched terminal never shows a window.

	_, err := ctrl.Start(context.Background())
	require.ErrorIs(t, err, ErrDiscoveryTimeout)
	assert.Equal(t, 1, backend.launches)
	assert.False(t, st.Exists(), "no session state written on timeout")
}

func TestNewTabAppendsAndHidesOld(t *testing.T) {
	ctrl, st, backend := newTestController(t)
	backend.windows = []wm.WindowID{100}
	_, err := st.Save(store.Record{Windows: []wm.WindowID{100}, Active: idp(100)})
	require.NoError(t, err)

	backend.schedule(101, 2)
	id, err := ctrl.NewTab(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wm.WindowID(101), id)

	rec := st.Load(nil)
	assert.Equal(t, []wm.WindowID{100, 101}, rec.Windows)
	require.NotNil(t, rec.Active)
	assert.Equal(t, wm.WindowID(101), *rec.Active)
	assert.Equal(t, "[2/2]", rec.Status)

	assert.Contains(t, backend.calls, "hide 100")
	// The new tab is left to the WM to map and focus.
	assert.NotContains(t, backend.calls, "show 101")
	assert.NotContains(t, backend.calls, "focus 101")
}

func TestNewTabWithoutSession(t *testing.T) {
	ctrl, _, backend := newTestController(t)

	_, err := ctrl.NewTab(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
	assert.Zero(t, backend.launches, "no terminal launched without a session")
}

func TestNewTabTimeoutLeavesStateUntouched(t *testing.T) {
	ctrl, st, backend := newTestController(t)
	backend.windows = []wm.WindowID{100}
	_, err := st.Save(store.Record{Windows: []wm.WindowID{100}, Active: idp(100)})
	require.NoError(t, err)

	_, err = ctrl.NewTab(context.Background())
	require.ErrorIs(t, err, ErrDiscoveryTimeout)

	rec := st.Load(nil)
	assert.Equal(t, []wm.WindowID{100}, rec.Windows)
	assert.NotContains(t, backend.calls, "hide 100")
}

func TestNewTabPrunesStaleWindowsFirst(t *testing.T) {
	ctrl, st, backend := newTestController(t)
	// 200 was closed behind our back; only 100 is still live.
	backend.windows = []wm.WindowID{100}
	_, err := st.Save(store.Record{Windows: []wm.WindowID{100, 200}, Active: idp(200)})
	require.NoError(t, err)

	backend.schedule(101, 0)
	_, err = ctrl.NewTab(context.Background())
	require.NoError(t, err)

	rec := st.Load(nil)
	assert.Equal(t, []wm.WindowID{100, 101}, rec.Windows)
}

func TestHideFailureDoesNotAbortNewTab(t *testing.T) {
	ctrl, st, backend := newTestController(t)
	backend.windows = []wm.WindowID{100}
	backend.failHide = true
	_, err := st.Save(store.Record{Windows: []wm.WindowID{100}, Active: idp(100)})
	require.NoError(t, err)

	backend.schedule(101, 0)
	id, err := ctrl.NewTab(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wm.WindowID(101), id)

	rec := st.Load(nil)
	require.NotNil(t, rec.Active)
	assert.Equal(t, wm.WindowID(101), *rec.Active)
}

func TestCycleWraparound(t *testing.T) {
	ctrl, st, backend := newTestController(t)
	_, err := st.Save(store.Record{Windows: []wm.WindowID{5, 7, 9}, Active: idp(9)})
	require.NoError(t, err)

	rec, err := ctrl.Next()
	require.NoError(t, err)
	require.NotNil(t, rec.Active)
	assert.Equal(t, wm.WindowID(5), *rec.Active)
	assert.Equal(t, []string{"hide 9", "show 5", "focus 5"}, backend.calls)

	backend.calls = nil
	rec, err = ctrl.Prev()
	require.NoError(t, err)
	require.NotNil(t, rec.Active)
	assert.Equal(t, wm.WindowID(9), *rec.Active)
	assert.Equal(t, []string{"hide 5", "show 9", "focus 9"}, backend.calls)
}

func TestCycleSingleWindowIsNoOp(t *testing.T) {
	ctrl, st, backend := newTestController(t)
	_, err := st.Save(store.Record{Windows: []wm.WindowID{5}, Active: idp(5)})
	require.NoError(t, err)

	rec, err := ctrl.Next()
	require.NoError(t, err)
	assert.Equal(t, []wm.WindowID{5}, rec.Windows)
	require.NotNil(t, rec.Active)
	assert.Equal(t, wm.WindowID(5), *rec.Active)
	assert.Empty(t, backend.calls)
}

func TestCycleEmptySessionIsNoOp(t *testing.T) {
	ctrl, _, backend := newTestController(t)

	rec, err := ctrl.Prev()
	require.NoError(t, err)
	assert.Empty(t, rec.Windows)
	assert.Empty(t, backend.calls)
}

func TestEndClosesAllWindowsAndDeletesRecord(t *testing.T) {
	ctrl, st, backend := newTestController(t)
	backend.windows = []wm.WindowID{100, 101}
	_, err := st.Save(store.Record{Windows: []wm.WindowID{100, 101}, Active: idp(101)})
	require.NoError(t, err)

	require.NoError(t, ctrl.End())
	assert.Equal(t, []string{"close 100", "close 101"}, backend.calls)
	assert.False(t, st.Exists())
}

func TestEndIdempotent(t *testing.T) {
	ctrl, st, _ := newTestController(t)
	_, err := st.Save(store.Record{Windows: []wm.WindowID{100}, Active: idp(100)})
	require.NoError(t, err)

	require.NoError(t, ctrl.End())
	require.NoError(t, ctrl.End())
	assert.False(t, st.Exists())
}

func TestEndContinuesPastCloseFailures(t *testing.T) {
	ctrl, st, backend := newTestController(t)
	backend.failClose = map[wm.WindowID]bool{100: true}
	_, err := st.Save(store.Record{Windows: []wm.WindowID{100, 101}, Active: idp(100)})
	require.NoError(t, err)

	require.NoError(t, ctrl.End())
	assert.Equal(t, []string{"close 100", "close 101"}, backend.calls)
	assert.False(t, st.Exists())
}

func TestFullLifecycle(t *testing.T) {
	ctrl, st, backend := newTestController(t)
	ctx := context.Background()

	backend.schedule(100, 0)
	id, err := ctrl.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, wm.WindowID(100), id)

	backend.schedule(101, 0)
	id, err = ctrl.NewTab(ctx)
	require.NoError(t, err)
	require.Equal(t, wm.WindowID(101), id)
	assert.Contains(t, backend.calls, "hide 100")

	backend.calls = nil
	rec, err := ctrl.Next()
	require.NoError(t, err)
	require.NotNil(t, rec.Active)
	assert.Equal(t, wm.WindowID(100), *rec.Active)
	assert.Equal(t, []string{"hide 101", "show 100", "focus 100"}, backend.calls)

	backend.calls = nil
	require.NoError(t, ctrl.End())
	assert.ElementsMatch(t, []string{"close 100", "close 101"}, backend.calls)
	assert.False(t, st.Exists())
}

func TestOperationsRecordedInJournal(t *testing.T) {
	ctrl, _, backend := newTestController(t)

	j, err := journal.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer j.Close()
	require.NoError(t, j.Migrate())
	ctrl.AttachJournal(j)

	backend.schedule(100, 0)
	_, err = ctrl.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, ctrl.End())

	entries, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first.
	assert.Equal(t, "end", entries[0].Op)
	assert.Equal(t, "start", entries[1].Op)
	assert.Equal(t, wm.WindowID(100), entries[1].Window)
	assert.Equal(t, 1, entries[1].Tabs)
}

func TestWaitForNewWindowIgnoresBaseline(t *testing.T) {
	ctrl, _, backend := newTestController(t)
	backend.windows = []wm.WindowID{100, 101}

	baseline := wm.NewIDSet([]wm.WindowID{100, 101})
	backend.launched = []*scheduledWindow{{id: 102, delay: 1}}

	id, err := ctrl.waitForNewWindow(context.Background(), baseline)
	require.NoError(t, err)
	assert.Equal(t, wm.WindowID(102), id)
}

func TestWaitForNewWindowRespectsContext(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	ctrl.poll = PollPolicy{Attempts: 1000, Interval: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ctrl.waitForNewWindow(ctx, wm.NewIDSet(nil))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDiscoveryTimeout)
}

func TestDefaultPollPolicyCeiling(t *testing.T) {
	p := DefaultPollPolicy()
	ceiling := time.Duration(p.Attempts) * p.Interval
	if ceiling != 5*time.Second {
		t.Fatalf("expected 5s discovery ceiling, got %v", ceiling)
	}
}
