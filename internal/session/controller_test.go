package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"rosary-audio/internal/media"
	"rosary-audio/internal/prayer"
	"rosary-audio/internal/queue"
	"rosary-audio/internal/queue/queuetest"
)

const (
	testVoice      = "female"
	previewChannel = "voice-preview"
)

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	sets    int
	failGet error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	return m.data[key], nil
}

func (m *memStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) setCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

func (m *memStore) snapshot(t *testing.T) *Snapshot {
	t.Helper()
	data, _ := m.Get(SnapshotKey)
	if data == nil {
		return nil
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

type fixture struct {
	player   *queuetest.Player
	resolver *queuetest.Resolver
	engine   *queue.Engine
	coord    *media.Coordinator
	store    *memStore
	ctl      *Controller
}

func newFixture(t *testing.T, debounce time.Duration) *fixture {
	t.Helper()
	return newFixtureWithStore(t, debounce, newMemStore())
}

func newFixtureWithStore(t *testing.T, debounce time.Duration, store *memStore) *fixture {
	t.Helper()
	f := &fixture{
		player:   queuetest.NewPlayer(),
		resolver: queuetest.NewResolver(),
		coord:    media.NewCoordinator(),
		store:    store,
	}
	for _, p := range []string{"a", "x1", "x2", "y", "p"} {
		f.resolver.Add(testVoice, p)
	}
	f.engine = queue.NewEngine(f.player, f.resolver)
	f.ctl = NewController(f.engine, f.coord, f.store, Config{PersistDebounce: debounce})
	t.Cleanup(f.ctl.Close)
	return f
}

// units is A (one track), X (two tracks), C (no audio), Y (one track).
func units() []prayer.Unit {
	return []prayer.Unit{
		{ID: "A", Title: "Unit A", Order: 0, Audio: prayer.Single("a")},
		{ID: "X", Title: "Unit X", Order: 1, Group: 1, Position: 2, Audio: prayer.Composite("x1", "x2")},
		{ID: "C", Title: "Unit C", Order: 2, Group: 1, Audio: prayer.NoAudio()},
		{ID: "Y", Title: "Unit Y", Order: 3, Group: 1, Audio: prayer.Single("y")},
	}
}

func settings() prayer.Settings {
	return prayer.Settings{Voice: testVoice, Mysteries: prayer.MysteriesJoyful}
}

// interrupt plays a one-unit queue on another channel, the way a preview does.
func (f *fixture) interrupt(t *testing.T) {
	t.Helper()
	f.coord.Claim(previewChannel)
	if _, err := f.engine.BuildQueue(context.Background(), testVoice, []prayer.Unit{{ID: "P", Audio: prayer.Single("p")}}); err != nil {
		t.Fatalf("preview build failed: %v", err)
	}
	if err := f.engine.Play(); err != nil {
		t.Fatalf("preview play failed: %v", err)
	}
}

func TestStart_PlaysFirstUnit(t *testing.T) {
	f := newFixture(t, time.Hour)

	var changed []string
	err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{
		OnUnitChanged: func(u prayer.Unit) { changed = append(changed, u.ID) },
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !f.coord.IsActive(Channel) {
		t.Errorf("expected %s active, got %q", Channel, f.coord.ActiveChannel())
	}
	if f.engine.State() != queue.StatePlaying {
		t.Errorf("expected playing, got %s", f.engine.State())
	}

	st := f.ctl.State()
	if !st.Active || !st.Playing || st.CurrentUnitID != "A" || st.LastUnitID != "A" {
		t.Errorf("unexpected state: %+v", st)
	}
	if st.QueueLength != 4 {
		t.Errorf("expected 4 tracks, got %d", st.QueueLength)
	}
	if len(changed) != 1 || changed[0] != "A" {
		t.Errorf("expected one unit change to A, got %v", changed)
	}
}

func TestStart_EmptyQueueFails(t *testing.T) {
	f := newFixture(t, time.Hour)
	silent := []prayer.Unit{{ID: "Z", Audio: prayer.Single("missing")}}

	err := f.ctl.Start(context.Background(), silent, settings(), Callbacks{})
	if !errors.Is(err, queue.ErrEmptyQueue) {
		t.Fatalf("expected ErrEmptyQueue, got %v", err)
	}
	if f.coord.ActiveChannel() != "" {
		t.Errorf("expected channel released, got %q", f.coord.ActiveChannel())
	}
	if f.ctl.State().Active {
		t.Error("expected no session after failed start")
	}
}

func TestStart_WhileActive(t *testing.T) {
	f := newFixture(t, time.Hour)
	if err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{}); !errors.Is(err, ErrSessionActive) {
		t.Errorf("expected ErrSessionActive, got %v", err)
	}
}

func TestStart_InvalidSettings(t *testing.T) {
	f := newFixture(t, time.Hour)
	if err := f.ctl.Start(context.Background(), units(), prayer.Settings{}, Callbacks{}); err == nil {
		t.Fatal("expected error for missing voice")
	}
}

func TestResume_ReclaimsAfterInterruption(t *testing.T) {
	f := newFixture(t, time.Hour)
	if err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.player.Finish() // A -> X

	if st := f.ctl.State(); st.CurrentUnitID != "X" {
		t.Fatalf("expected X displayed, got %s", st.CurrentUnitID)
	}

	f.interrupt(t)

	st := f.ctl.State()
	if !st.Interrupted || st.Playing {
		t.Errorf("expected interrupted and not playing, got %+v", st)
	}
	if st.LastUnitID != "X" {
		t.Errorf("expected last unit X to survive the interruption, got %s", st.LastUnitID)
	}
	if cur, _ := f.engine.Current(); cur.UnitID != "P" {
		t.Fatalf("expected engine on preview unit, got %s", cur.UnitID)
	}

	if err := f.ctl.Resume(context.Background()); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	if !f.coord.IsActive(Channel) {
		t.Errorf("expected channel reclaimed, got %q", f.coord.ActiveChannel())
	}
	cur, ok := f.engine.Current()
	if !ok || cur.UnitID != "X" || cur.Path != "x1" {
		t.Errorf("expected resume at first track of X, got %+v", cur)
	}
	if f.engine.State() != queue.StatePlaying {
		t.Errorf("expected playing, got %s", f.engine.State())
	}
	st = f.ctl.State()
	if st.Interrupted || st.Rebuilding || st.LastUnitID != "X" {
		t.Errorf("unexpected state after resume: %+v", st)
	}
}

func TestPlay_WithoutChannelReclaims(t *testing.T) {
	f := newFixture(t, time.Hour)
	if err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.player.Finish()
	f.interrupt(t)
	f.coord.Release(previewChannel)

	if err := f.ctl.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if cur, _ := f.engine.Current(); cur.UnitID != "X" {
		t.Errorf("expected X, got %s", cur.UnitID)
	}
}

func TestPauseAndResume_WithoutInterruption(t *testing.T) {
	f := newFixture(t, time.Hour)
	if err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.player.Advance(5 * time.Second)

	if err := f.ctl.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if f.ctl.State().Playing {
		t.Error("expected not playing after pause")
	}
	if err := f.ctl.Resume(context.Background()); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	if f.engine.Position() != 5*time.Second {
		t.Errorf("expected position 5s, got %s", f.engine.Position())
	}
	if loads := f.player.Loads(); len(loads) != 1 {
		t.Errorf("expected no rebuild, got loads %v", loads)
	}
}

func TestStop_ReleasesAndClearsSnapshot(t *testing.T) {
	f := newFixture(t, time.Hour)
	if err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.ctl.Flush()
	if f.store.snapshot(t) == nil {
		t.Fatal("expected snapshot after flush")
	}

	if err := f.ctl.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if f.store.snapshot(t) != nil {
		t.Error("expected snapshot cleared")
	}
	if f.coord.ActiveChannel() != "" {
		t.Errorf("expected channel released, got %q", f.coord.ActiveChannel())
	}
	if f.engine.State() != queue.StateIdle {
		t.Errorf("expected idle engine, got %s", f.engine.State())
	}
	if err := f.ctl.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
	if err := f.ctl.Pause(); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestStop_LeavesOtherChannelAlone(t *testing.T) {
	f := newFixture(t, time.Hour)
	if err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.interrupt(t)

	if err := f.ctl.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !f.coord.IsActive(previewChannel) {
		t.Errorf("expected preview still active, got %q", f.coord.ActiveChannel())
	}
	if f.engine.State() != queue.StatePlaying {
		t.Errorf("expected preview still playing, got %s", f.engine.State())
	}
}

func TestCompletion(t *testing.T) {
	f := newFixture(t, time.Hour)
	completions := 0
	err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{
		OnComplete: func() { completions++ },
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.ctl.Flush()

	for i := 0; i < 4; i++ {
		f.player.Finish()
	}

	if completions != 1 {
		t.Errorf("expected one completion, got %d", completions)
	}
	st := f.ctl.State()
	if !st.Completed || st.Playing || st.CurrentUnitID != "Y" {
		t.Errorf("unexpected state after completion: %+v", st)
	}
	if f.store.snapshot(t) != nil {
		t.Error("expected snapshot cleared on completion")
	}
	if f.coord.ActiveChannel() != "" {
		t.Errorf("expected channel released, got %q", f.coord.ActiveChannel())
	}

	// Playing a finished session starts it over.
	if err := f.ctl.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if cur, _ := f.engine.Current(); cur.UnitID != "A" {
		t.Errorf("expected restart at A, got %s", cur.UnitID)
	}
}

func TestPersist_Debounced(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	if err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.player.Finish() // X
	f.player.Finish() // X, second track
	f.player.Finish() // Y

	deadline := time.Now().Add(2 * time.Second)
	for f.store.setCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	if n := f.store.setCount(); n != 1 {
		t.Errorf("expected one debounced write, got %d", n)
	}
	snap := f.store.snapshot(t)
	if snap == nil || snap.LastUnitID != "Y" {
		t.Fatalf("expected snapshot at Y, got %+v", snap)
	}
	if snap.Version != snapshotVersion || len(snap.Units) != 4 {
		t.Errorf("unexpected snapshot: version=%d units=%d", snap.Version, len(snap.Units))
	}
}

func TestRestore_CuesWithoutPlaying(t *testing.T) {
	first := newFixture(t, time.Hour)
	if err := first.ctl.Start(context.Background(), units(), settings(), Callbacks{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	first.player.Finish()
	first.ctl.SetSpeed(1.25)
	first.ctl.Flush()

	second := newFixtureWithStore(t, time.Hour, first.store)

	if !second.ctl.Restore(context.Background(), Callbacks{}) {
		t.Fatal("expected session restored")
	}

	if second.engine.State() != queue.StateReady || second.player.Playing() {
		t.Errorf("expected ready and silent, got %s", second.engine.State())
	}
	if cur, _ := second.engine.Current(); cur.UnitID != "X" {
		t.Errorf("expected cued at X, got %s", cur.UnitID)
	}
	if second.engine.Speed() != 1.25 {
		t.Errorf("expected restored speed 1.25, got %v", second.engine.Speed())
	}
	st := second.ctl.State()
	if st.CurrentUnitID != "X" || st.Playing || st.SavedAt == nil {
		t.Errorf("unexpected restored state: %+v", st)
	}

	if err := second.ctl.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if second.player.URI() != queuetest.URI(testVoice, "x1") {
		t.Errorf("expected x1 playing, got %s", second.player.URI())
	}
}

func TestRestore_SkipsUnitWithoutAudio(t *testing.T) {
	f := newFixture(t, time.Hour)
	data, _ := encodeSnapshot(&Snapshot{SessionID: "s1", Units: units(), Settings: settings(), LastUnitID: "C", Speed: 1})
	f.store.Set(SnapshotKey, data)

	if !f.ctl.Restore(context.Background(), Callbacks{}) {
		t.Fatal("expected session restored")
	}
	if cur, _ := f.engine.Current(); cur.UnitID != "Y" {
		t.Errorf("expected nearest later unit Y, got %s", cur.UnitID)
	}
	if id := f.ctl.State().SessionID; id != "s1" {
		t.Errorf("expected session id s1, got %s", id)
	}
}

func TestRestore_NoUsableSnapshot(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*memStore)
	}{
		{"missing", func(*memStore) {}},
		{"garbage", func(m *memStore) { m.Set(SnapshotKey, []byte("{not json")) }},
		{"future version", func(m *memStore) {
			data, _ := json.Marshal(Snapshot{Version: 99, Units: units()})
			m.Set(SnapshotKey, data)
		}},
		{"read error", func(m *memStore) { m.failGet = errors.New("disk gone") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, time.Hour)
			tt.setup(f.store)

			if f.ctl.Restore(context.Background(), Callbacks{}) {
				t.Error("expected no session restored")
			}
			if f.ctl.State().Active {
				t.Error("expected no active session")
			}
		})
	}
}

func TestRemoteCommands(t *testing.T) {
	f := newFixture(t, time.Hour)
	if f.coord.Dispatch(media.CommandPause) {
		t.Error("expected dispatch to fail before the session claims the channel")
	}
	if err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !f.coord.Dispatch(media.CommandPause) {
		t.Fatal("expected pause dispatched")
	}
	if f.engine.State() != queue.StatePaused {
		t.Errorf("expected paused, got %s", f.engine.State())
	}
	if !f.coord.Dispatch(media.CommandPlay) {
		t.Fatal("expected play dispatched")
	}
	if !f.coord.Dispatch(media.CommandNext) {
		t.Fatal("expected next dispatched")
	}
	if cur, _ := f.engine.Current(); cur.UnitID != "X" {
		t.Errorf("expected X after next, got %s", cur.UnitID)
	}
	if !f.coord.Dispatch(media.CommandSeekTo, 2*time.Second) {
		t.Fatal("expected seek dispatched")
	}
	if f.player.Position() != 2*time.Second {
		t.Errorf("expected 2s, got %s", f.player.Position())
	}
	if !f.coord.Dispatch(media.CommandStop) {
		t.Fatal("expected stop dispatched")
	}
	if f.ctl.State().Active {
		t.Error("expected session ended by remote stop")
	}
}

func TestStatePublished(t *testing.T) {
	f := newFixture(t, time.Hour)
	var states []State
	f.coord.Subscribe(EventState, func(p any) { states = append(states, p.(State)) })

	if err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(states) == 0 {
		t.Fatal("expected state published")
	}
	last := states[len(states)-1]
	if last.CurrentUnitID != "A" || last.GroupTitle != "Opening Prayers" {
		t.Errorf("unexpected published state: %+v", last)
	}
}

func TestSetSpeed_WhileInterruptedAppliedOnReclaim(t *testing.T) {
	f := newFixture(t, time.Hour)
	if err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.interrupt(t)

	if err := f.ctl.SetSpeed(1.5); err != nil {
		t.Fatalf("SetSpeed failed: %v", err)
	}
	if f.engine.Speed() != 1 {
		t.Errorf("expected engine speed untouched while interrupted, got %v", f.engine.Speed())
	}
	if err := f.ctl.SetSpeed(3); err == nil {
		t.Error("expected error for speed out of range")
	}

	if err := f.ctl.Resume(context.Background()); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if f.engine.Speed() != 1.5 {
		t.Errorf("expected speed 1.5 after reclaim, got %v", f.engine.Speed())
	}
}

// stopOnReady stops the session the first time the engine reports a built
// queue, landing between the build and playback.
func (f *fixture) stopOnReady(t *testing.T) {
	t.Helper()
	var once sync.Once
	cancel := f.engine.Subscribe(func(ev queue.Event) {
		if ev.Type == queue.EventStateChanged && ev.State == queue.StateReady {
			once.Do(func() { f.ctl.Stop() })
		}
	})
	t.Cleanup(cancel)
}

func TestStart_StoppedDuringBuildDoesNotPlay(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.stopOnReady(t)

	err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{})
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if f.ctl.State().Active {
		t.Error("expected no session")
	}
	if f.coord.ActiveChannel() != "" {
		t.Errorf("expected no active channel, got %q", f.coord.ActiveChannel())
	}
	if f.engine.State() == queue.StatePlaying || f.player.Playing() {
		t.Errorf("expected nothing playing, engine %s", f.engine.State())
	}
}

func TestResume_StoppedDuringReclaimDoesNotPlay(t *testing.T) {
	f := newFixture(t, time.Hour)
	if err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.interrupt(t)
	f.player.Finish()
	f.stopOnReady(t)

	if err := f.ctl.Resume(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if f.coord.ActiveChannel() != "" {
		t.Errorf("expected no active channel, got %q", f.coord.ActiveChannel())
	}
	if f.engine.State() == queue.StatePlaying || f.player.Playing() {
		t.Errorf("expected nothing playing, engine %s", f.engine.State())
	}
}

func TestTrackChanged_DuringRebuildKeepsLastKnown(t *testing.T) {
	f := newFixture(t, time.Hour)
	if err := f.ctl.Start(context.Background(), units(), settings(), Callbacks{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	f.ctl.mu.Lock()
	f.ctl.session.rebuilding = true
	f.ctl.mu.Unlock()

	f.ctl.onEngineEvent(queue.Event{Type: queue.EventTrackChanged, UnitID: "Y", Index: 3})

	st := f.ctl.State()
	if st.CurrentUnitID != "Y" {
		t.Errorf("expected current unit Y, got %s", st.CurrentUnitID)
	}
	if st.LastUnitID != "A" {
		t.Errorf("expected last-known unit to stay A during rebuild, got %s", st.LastUnitID)
	}

	f.ctl.mu.Lock()
	f.ctl.session.rebuilding = false
	f.ctl.mu.Unlock()

	f.ctl.onEngineEvent(queue.Event{Type: queue.EventTrackChanged, UnitID: "Y", Index: 3})

	if st := f.ctl.State(); st.LastUnitID != "Y" {
		t.Errorf("expected last-known unit Y once rebuilt, got %s", st.LastUnitID)
	}
}
