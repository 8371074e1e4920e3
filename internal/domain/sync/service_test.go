package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"tiklay/internal/domain/connectivity"
	"tiklay/internal/domain/offline"
	"tiklay/internal/domain/payload"
	"tiklay/internal/infrastructure/storage/sqlite"
)

type testClock struct {
	mu gosync.Mutex
	t  time.Time
}

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeGateway серверная коллекция в памяти
type fakeGateway struct {
	mu      gosync.Mutex
	records map[string]RemoteEntity
	order   []string
	calls   []string
	nextID  int

	failCreate func(json.RawMessage) error
	failUpdate error
	failDelete error
	getAllErr  error
}

func newFakeGateway(records ...RemoteEntity) *fakeGateway {
	g := &fakeGateway{records: make(map[string]RemoteEntity)}
	for _, r := range records {
		g.put(r)
	}
	return g
}

func (g *fakeGateway) put(r RemoteEntity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.records[r.ID]; !ok {
		g.order = append(g.order, r.ID)
	}
	g.records[r.ID] = r
}

func (g *fakeGateway) Create(_ context.Context, p json.RawMessage) (RemoteEntity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, "create")
	if g.failCreate != nil {
		if err := g.failCreate(p); err != nil {
			return RemoteEntity{}, err
		}
	}

	g.nextID++
	rec := RemoteEntity{ID: fmt.Sprintf("srv-%d", g.nextID), Payload: p}
	g.records[rec.ID] = rec
	g.order = append(g.order, rec.ID)

	return rec, nil
}

func (g *fakeGateway) Update(_ context.Context, id string, p json.RawMessage) (RemoteEntity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, "update:"+id)
	if g.failUpdate != nil {
		return RemoteEntity{}, g.failUpdate
	}

	rec, ok := g.records[id]
	if !ok {
		return RemoteEntity{}, fmt.Errorf("record %s not found", id)
	}
	merged, err := payload.Patch(rec.Payload, p)
	if err != nil {
		return RemoteEntity{}, err
	}
	rec.Payload = merged
	g.records[id] = rec

	return rec, nil
}

func (g *fakeGateway) Delete(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, "delete:"+id)
	if g.failDelete != nil {
		return false, g.failDelete
	}

	_, ok := g.records[id]
	delete(g.records, id)
	for i, rid := range g.order {
		if rid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}

	return ok, nil
}

func (g *fakeGateway) GetAll(_ context.Context) ([]RemoteEntity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.getAllErr != nil {
		return nil, g.getAllErr
	}

	out := make([]RemoteEntity, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.records[id])
	}
	return out, nil
}

func (g *fakeGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) count(prefix string) int {
	n := 0
	for _, c := range g.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Retry = RetryPolicy{InitialInterval: time.Second, MaxInterval: time.Minute, Multiplier: 2}
	cfg.RequestTimeout = 5 * time.Second
	return cfg
}

type testEnv struct {
	svc     *Service
	store   *sqlite.Storage
	clock   *testClock
	monitor *connectivity.Monitor
}

func newTestEnv(t *testing.T, cfg *Config, gateways Gateways, opts ...Option) *testEnv {
	t.Helper()

	clock := &testClock{t: t0}
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "local.db"), slog.Default(), sqlite.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	monitor := connectivity.NewMonitor(slog.Default())
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	svc := NewService(store, gateways, monitor, slog.Default(), cfg, opts...)
	t.Cleanup(svc.StopAutoSync)

	return &testEnv{svc: svc, store: store, clock: clock, monitor: monitor}
}

func raw(s string) json.RawMessage {
	return json.RawMessage(s)
}

func TestService_SyncNow_OfflineCreateScenario(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	env := newTestEnv(t, testConfig(), Gateways{"student": gw})

	env.monitor.Set(false)

	id, err := env.store.SaveEntity(ctx, "student", raw(`{"name":"Ana"}`), "S1")
	require.NoError(t, err)
	assert.Equal(t, "S1", id)

	intents, err := env.store.ListPendingIntents(ctx)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, offline.KindCreate, intents[0].Kind)

	env.svc.tick(ctx, "timer")
	assert.Empty(t, gw.Calls())
	assert.False(t, env.svc.IsSyncing())

	env.monitor.Set(true)

	res, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 1, res.Downloaded)
	assert.Empty(t, res.Errors)

	assert.Equal(t, []string{"create"}, gw.Calls())
	recs, err := gw.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.JSONEq(t, `{"name":"Ana"}`, string(recs[0].Payload))

	intents, err = env.store.ListPendingIntents(ctx)
	require.NoError(t, err)
	assert.Empty(t, intents)

	e, err := env.store.GetEntity(ctx, "student", "S1")
	require.NoError(t, err)
	assert.Equal(t, offline.StatusSynced, e.SyncStatus)
	assert.Equal(t, "srv-1", e.RemoteID)
}

func TestService_SyncNow_DownloadsRemoteRecords(t *testing.T) {
	ctx := context.Background()
	students := newFakeGateway(
		RemoteEntity{ID: "r-1", Payload: raw(`{"name":"Ivan"}`)},
		RemoteEntity{ID: "r-2", Payload: raw(`{"name":"Olga"}`)},
	)
	classes := newFakeGateway()
	classes.getAllErr = errors.New("service unavailable")

	env := newTestEnv(t, testConfig(), Gateways{"student": students, "class": classes})

	res, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)

	// ошибки загрузки не делают прогон неуспешным
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Uploaded)
	assert.Equal(t, 2, res.Downloaded)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, PhaseDownloading, res.Errors[0].Phase)
	assert.Equal(t, "class", res.Errors[0].EntityType)

	list, err := env.store.ListEntities(ctx, "student")
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, e := range list {
		assert.Equal(t, offline.StatusSynced, e.SyncStatus)
		assert.Equal(t, e.ID, e.RemoteID)
	}

	intents, err := env.store.ListPendingIntents(ctx)
	require.NoError(t, err)
	assert.Empty(t, intents)

	t.Run("remote change overwrites synced record", func(t *testing.T) {
		students.put(RemoteEntity{ID: "r-1", Payload: raw(`{"name":"Ivan","grade":5}`)})

		res, err := env.svc.SyncNow(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Downloaded)
		assert.Equal(t, 0, res.ConflictsDetected)

		e, err := env.store.GetEntity(ctx, "student", "r-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Ivan","grade":5}`, string(e.Payload))
		assert.Equal(t, offline.StatusSynced, e.SyncStatus)
	})
}

func TestService_SyncNow_Idempotent(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(RemoteEntity{ID: "r-1", Payload: raw(`{"name":"Ivan"}`)})
	env := newTestEnv(t, testConfig(), Gateways{"student": gw})

	_, err := env.store.SaveEntity(ctx, "student", raw(`{"name":"Ana"}`), "")
	require.NoError(t, err)

	first, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Uploaded)

	second, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.Uploaded)
	assert.Equal(t, 2, second.Downloaded)
	assert.Equal(t, 0, second.ConflictsDetected)
	assert.Equal(t, 1, gw.count("create"))
}

func TestService_SyncNow_PreservesIntentOrder(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	env := newTestEnv(t, testConfig(), Gateways{"student": gw})

	_, err := env.store.SaveEntity(ctx, "student", raw(`{"name":"A"}`), "A")
	require.NoError(t, err)
	_, err = env.store.SaveEntity(ctx, "student", raw(`{"name":"B"}`), "B")
	require.NoError(t, err)
	require.NoError(t, env.store.UpdateEntity(ctx, "student", "A", raw(`{"age":3}`)))
	require.NoError(t, env.store.DeleteEntity(ctx, "student", "B"))

	res, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 4, res.Uploaded)

	// последующие намерения адресуются серверным идентификатором
	assert.Equal(t, []string{"create", "create", "update:srv-1", "delete:srv-2"}, gw.Calls())

	e, err := env.store.GetEntity(ctx, "student", "A")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", e.RemoteID)
	assert.Equal(t, offline.StatusSynced, e.SyncStatus)
	assert.JSONEq(t, `{"name":"A","age":3}`, string(e.Payload))

	_, err = env.store.GetEntity(ctx, "student", "B")
	assert.ErrorIs(t, err, offline.ErrNotFound)
	assert.Equal(t, 1, res.Downloaded)
}

func TestService_SyncNow_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.failCreate = func(p json.RawMessage) error {
		if strings.Contains(string(p), "bad") {
			return errors.New("boom")
		}
		return nil
	}
	env := newTestEnv(t, testConfig(), Gateways{"student": gw})

	_, err := env.store.SaveEntity(ctx, "student", raw(`{"name":"bad"}`), "A")
	require.NoError(t, err)
	require.NoError(t, env.store.UpdateEntity(ctx, "student", "A", raw(`{"age":1}`)))
	_, err = env.store.SaveEntity(ctx, "student", raw(`{"name":"ok"}`), "B")
	require.NoError(t, err)

	res, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Uploaded)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, PhaseUploading, res.Errors[0].Phase)
	assert.Equal(t, "A", res.Errors[0].EntityID)
	assert.Equal(t, "boom", res.Errors[0].Error)
	assert.True(t, res.Errors[0].Retry)

	intents, err := env.store.ListPendingIntents(ctx)
	require.NoError(t, err)
	require.Len(t, intents, 2)
	assert.Equal(t, offline.IntentFailed, intents[0].Status)
	assert.Equal(t, 1, intents[0].RetryCount)
	assert.Equal(t, "boom", intents[0].LastError)
	assert.WithinDuration(t, t0.Add(time.Second), intents[0].NextRetryAt, 0)
	// update той же сущности ждет, пока не уйдет create
	assert.Equal(t, offline.IntentPending, intents[1].Status)
	assert.Equal(t, 0, intents[1].RetryCount)

	t.Run("backoff defers retry", func(t *testing.T) {
		res, err := env.svc.SyncNow(ctx)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 0, res.Uploaded)
		assert.Equal(t, 2, gw.count("create"))
	})

	t.Run("retry after backoff", func(t *testing.T) {
		gw.mu.Lock()
		gw.failCreate = nil
		gw.mu.Unlock()
		env.clock.Advance(2 * time.Second)

		res, err := env.svc.SyncNow(ctx)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 2, res.Uploaded)

		e, err := env.store.GetEntity(ctx, "student", "A")
		require.NoError(t, err)
		assert.Equal(t, offline.StatusSynced, e.SyncStatus)
		assert.JSONEq(t, `{"name":"bad","age":1}`, string(e.Payload))
	})
}

func TestService_SyncNow_RetryLimit(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.failCreate = func(json.RawMessage) error { return errors.New("rejected") }

	cfg := testConfig()
	cfg.MaxRetries = 2
	env := newTestEnv(t, cfg, Gateways{"student": gw})

	_, err := env.store.SaveEntity(ctx, "student", raw(`{"name":"A"}`), "A")
	require.NoError(t, err)

	res, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.True(t, res.Errors[0].Retry)

	env.clock.Advance(time.Hour)
	res, err = env.svc.SyncNow(ctx)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.False(t, res.Errors[0].Retry)

	e, err := env.store.GetEntity(ctx, "student", "A")
	require.NoError(t, err)
	assert.Equal(t, offline.StatusError, e.SyncStatus)

	env.clock.Advance(time.Hour)
	res, err = env.svc.SyncNow(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, gw.count("create"))

	st, err := env.svc.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.PendingIntentCount)
}

func TestService_SyncNow_IgnoresMonitorOnDemand(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	env := newTestEnv(t, testConfig(), Gateways{"student": gw})
	env.monitor.Set(false)

	_, err := env.store.SaveEntity(ctx, "student", raw(`{"name":"Ana"}`), "S1")
	require.NoError(t, err)

	res, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"create"}, gw.Calls())
}

func TestService_SyncNow_ResaveUpdatesRemoteCopy(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	env := newTestEnv(t, testConfig(), Gateways{"student": gw})

	_, err := env.store.SaveEntity(ctx, "student", raw(`{"name":"Ana"}`), "S1")
	require.NoError(t, err)
	_, err = env.svc.SyncNow(ctx)
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	_, err = env.store.SaveEntity(ctx, "student", raw(`{"name":"Ana B"}`), "S1")
	require.NoError(t, err)

	intents, err := env.store.ListPendingIntents(ctx)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, offline.KindCreate, intents[0].Kind)

	for i := 0; i < 2; i++ {
		res, err := env.svc.SyncNow(ctx)
		require.NoError(t, err)
		assert.True(t, res.Success)
	}

	assert.Equal(t, []string{"create", "update:srv-1"}, gw.Calls())

	recs, err := gw.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.JSONEq(t, `{"name":"Ana B"}`, string(recs[0].Payload))

	list, err := env.store.ListEntities(ctx, "student")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "S1", list[0].ID)
	assert.Equal(t, "srv-1", list[0].RemoteID)
	assert.Equal(t, offline.StatusSynced, list[0].SyncStatus)
}

func TestService_SyncNow_ResaveBeforeFirstUpload(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	env := newTestEnv(t, testConfig(), Gateways{"student": gw})

	_, err := env.store.SaveEntity(ctx, "student", raw(`{"name":"Ana"}`), "S1")
	require.NoError(t, err)
	_, err = env.store.SaveEntity(ctx, "student", raw(`{"name":"Ana B"}`), "S1")
	require.NoError(t, err)

	res, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Uploaded)
	assert.Equal(t, []string{"create", "update:srv-1"}, gw.Calls())
}

func TestService_SyncNow_ExhaustedIntentBlocksEntity(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.failCreate = func(json.RawMessage) error { return errors.New("rejected") }

	cfg := testConfig()
	cfg.MaxRetries = 1
	env := newTestEnv(t, cfg, Gateways{"student": gw})

	_, err := env.store.SaveEntity(ctx, "student", raw(`{"name":"A"}`), "A")
	require.NoError(t, err)

	res, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.False(t, res.Errors[0].Retry)

	require.NoError(t, env.store.UpdateEntity(ctx, "student", "A", raw(`{"age":3}`)))
	env.clock.Advance(time.Hour)

	res, err = env.svc.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Uploaded)
	assert.Equal(t, []string{"create"}, gw.Calls(), "update waits behind the dead create")

	stats, err := env.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Abandoned)

	st, err := env.svc.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.PendingIntentCount)
}

func TestService_SyncNow_UnknownEntityType(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testConfig(), Gateways{"student": newFakeGateway()})

	_, err := env.store.SaveEntity(ctx, "ghost", raw(`{}`), "G1")
	require.NoError(t, err)

	res, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error, ErrUnknownEntityType.Error())
}

func TestService_SyncNow_SkipsLocallyDeleted(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(RemoteEntity{ID: "r-1", Payload: raw(`{"name":"Ivan"}`)})
	env := newTestEnv(t, testConfig(), Gateways{"student": gw})

	_, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)

	require.NoError(t, env.store.DeleteEntity(ctx, "student", "r-1"))
	gw.mu.Lock()
	gw.failDelete = errors.New("timeout")
	gw.mu.Unlock()

	res, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Downloaded)

	_, err = env.store.GetEntity(ctx, "student", "r-1")
	assert.ErrorIs(t, err, offline.ErrNotFound)
	assert.Equal(t, []string{"delete:r-1"}, gw.Calls())
}

func TestService_SyncNow_SingleFlight(t *testing.T) {
	ctx := context.Background()
	gw := &blockingGateway{
		fakeGateway: newFakeGateway(),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	env := newTestEnv(t, testConfig(), Gateways{"student": gw})

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.SyncNow(ctx)
		done <- err
	}()

	<-gw.started
	assert.True(t, env.svc.IsSyncing())

	_, err := env.svc.SyncNow(ctx)
	assert.ErrorIs(t, err, ErrAlreadyInProgress)

	close(gw.release)
	require.NoError(t, <-done)
	assert.False(t, env.svc.IsSyncing())

	_, err = env.svc.SyncNow(ctx)
	assert.NoError(t, err)
}

func TestService_SyncNow_LocalWriteDuringRun(t *testing.T) {
	ctx := context.Background()
	gw := &blockingGateway{
		fakeGateway: newFakeGateway(),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	env := newTestEnv(t, testConfig(), Gateways{"student": gw})

	_, err := env.store.SaveEntity(ctx, "student", raw(`{"name":"Ana"}`), "S1")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.SyncNow(ctx)
		done <- err
	}()

	// выгрузка уже прошла, прогон ждет серверную коллекцию
	<-gw.started
	env.clock.Advance(time.Minute)
	require.NoError(t, env.store.UpdateEntity(ctx, "student", "S1", raw(`{"age":8}`)))

	close(gw.release)
	require.NoError(t, <-done)

	e, err := env.store.GetEntity(ctx, "student", "S1")
	require.NoError(t, err)
	assert.Equal(t, offline.StatusPending, e.SyncStatus)
	assert.JSONEq(t, `{"name":"Ana","age":8}`, string(e.Payload))

	intents, err := env.store.ListPendingIntents(ctx)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, offline.KindUpdate, intents[0].Kind)
	assert.Equal(t, "srv-1", intents[0].Target())

	res, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Uploaded)

	e, err = env.store.GetEntity(ctx, "student", "S1")
	require.NoError(t, err)
	assert.Equal(t, offline.StatusSynced, e.SyncStatus)
	assert.Equal(t, []string{"create", "update:srv-1"}, gw.Calls())
}

type blockingGateway struct {
	*fakeGateway
	started chan struct{}
	release chan struct{}
	once    gosync.Once
}

func (g *blockingGateway) GetAll(ctx context.Context) ([]RemoteEntity, error) {
	g.once.Do(func() { close(g.started) })

	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return g.fakeGateway.GetAll(ctx)
}

func TestService_SyncNow_Canceled(t *testing.T) {
	env := newTestEnv(t, testConfig(), Gateways{"student": newFakeGateway()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.svc.SyncNow(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, env.svc.IsSyncing())

	st, err := env.svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.True(t, st.LastSyncTime.IsZero())
	assert.NotEmpty(t, st.LastError)
}

// prepareConflict доводит запись r-1 до расхождения: локальная правка
// в t0+1m не может уйти на сервер, а серверная версия тем временем изменилась.
func prepareConflict(t *testing.T, cfg *Config, seed, local, remote string, remoteModified time.Time) (*testEnv, *Result) {
	t.Helper()
	ctx := context.Background()

	gw := newFakeGateway(RemoteEntity{ID: "r-1", Payload: raw(seed)})
	env := newTestEnv(t, cfg, Gateways{"student": gw})

	_, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	require.NoError(t, env.store.UpdateEntity(ctx, "student", "r-1", raw(local)))

	gw.mu.Lock()
	gw.failUpdate = errors.New("unavailable")
	gw.mu.Unlock()
	gw.put(RemoteEntity{ID: "r-1", Payload: raw(remote), ModifiedAt: remoteModified})

	res, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ConflictsDetected)

	return env, res
}

func TestService_Conflicts_Detection(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Strategy = StrategyManual

	env, res := prepareConflict(t, cfg, `{"name":"Server"}`, `{"name":"Local"}`, `{"name":"Remote"}`, t0.Add(2*time.Minute))
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.ConflictsResolved)

	e, err := env.store.GetEntity(ctx, "student", "r-1")
	require.NoError(t, err)
	assert.Equal(t, offline.StatusConflict, e.SyncStatus)
	assert.JSONEq(t, `{"name":"Local"}`, string(e.Payload))

	conflicts, err := env.svc.Conflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.JSONEq(t, `{"name":"Remote"}`, string(conflicts[0].RemotePayload))

	t.Run("open conflict is not raised again", func(t *testing.T) {
		res, err := env.svc.SyncNow(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, res.ConflictsDetected)

		conflicts, err := env.svc.Conflicts(ctx)
		require.NoError(t, err)
		assert.Len(t, conflicts, 1)

		e, err := env.store.GetEntity(ctx, "student", "r-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Local"}`, string(e.Payload))
	})
}

func TestService_Conflicts_AutoResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("local newer wins", func(t *testing.T) {
		env, res := prepareConflict(t, testConfig(), `{"name":"Server"}`, `{"name":"Local"}`, `{"name":"Remote"}`, t0)
		assert.Equal(t, 1, res.ConflictsResolved)

		e, err := env.store.GetEntity(ctx, "student", "r-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Local"}`, string(e.Payload))
		assert.Equal(t, offline.StatusPending, e.SyncStatus)

		intents, err := env.store.ListPendingIntents(ctx)
		require.NoError(t, err)
		require.Len(t, intents, 2)
		last := intents[len(intents)-1]
		assert.Equal(t, offline.KindUpdate, last.Kind)
		assert.JSONEq(t, `{"name":"Local"}`, string(last.Payload))
	})

	t.Run("remote newer wins", func(t *testing.T) {
		env, res := prepareConflict(t, testConfig(), `{"name":"Server"}`, `{"name":"Local"}`, `{"name":"Remote"}`, t0.Add(2*time.Minute))
		assert.Equal(t, 1, res.ConflictsResolved)

		e, err := env.store.GetEntity(ctx, "student", "r-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Remote"}`, string(e.Payload))
		assert.Equal(t, offline.StatusSynced, e.SyncStatus)

		intents, err := env.store.ListPendingIntents(ctx)
		require.NoError(t, err)
		assert.Empty(t, intents)

		conflicts, err := env.svc.Conflicts(ctx)
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("equal timestamps merge", func(t *testing.T) {
		env, res := prepareConflict(t, testConfig(), `{}`, `{"a":1}`, `{"b":2}`, t0.Add(time.Minute))
		assert.Equal(t, 1, res.ConflictsResolved)

		e, err := env.store.GetEntity(ctx, "student", "r-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1,"b":2}`, string(e.Payload))
		assert.Equal(t, offline.StatusPending, e.SyncStatus)
	})
}

func TestService_ResolveConflictManually(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Strategy = StrategyManual

	env, _ := prepareConflict(t, cfg, `{"name":"Server"}`, `{"name":"Local"}`, `{"name":"Remote"}`, t0)
	conflicts, err := env.svc.Conflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	cid := conflicts[0].ID

	t.Run("unknown conflict", func(t *testing.T) {
		err := env.svc.ResolveConflictManually(ctx, "missing", offline.ResolutionLocal, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("merge without payload", func(t *testing.T) {
		err := env.svc.ResolveConflictManually(ctx, cid, offline.ResolutionMerged, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("unknown resolution", func(t *testing.T) {
		err := env.svc.ResolveConflictManually(ctx, cid, offline.Resolution("both"), nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("merged payload", func(t *testing.T) {
		err := env.svc.ResolveConflictManually(ctx, cid, offline.ResolutionMerged, []byte(`{"name":"Both"}`))
		require.NoError(t, err)

		e, err := env.store.GetEntity(ctx, "student", "r-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Both"}`, string(e.Payload))

		c, err := env.store.GetConflict(ctx, cid)
		require.NoError(t, err)
		assert.True(t, c.Resolved)
		assert.Equal(t, offline.ResolutionMerged, c.Resolution)
	})

	t.Run("already resolved", func(t *testing.T) {
		err := env.svc.ResolveConflictManually(ctx, cid, offline.ResolutionRemote, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestService_Conflicts_LocalWriteKeepsConflictOpen(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Strategy = StrategyManual

	env, _ := prepareConflict(t, cfg, `{"name":"Server"}`, `{"name":"Local"}`, `{"name":"Remote"}`, t0)
	gw := env.svc.gateways["student"].(*fakeGateway)
	gw.mu.Lock()
	gw.failUpdate = nil
	gw.mu.Unlock()

	require.NoError(t, env.store.UpdateEntity(ctx, "student", "r-1", raw(`{"age":3}`)))
	env.clock.Advance(time.Hour)

	_, err := env.svc.SyncNow(ctx)
	require.NoError(t, err)

	e, err := env.store.GetEntity(ctx, "student", "r-1")
	require.NoError(t, err)
	assert.Equal(t, offline.StatusConflict, e.SyncStatus)

	conflicts, err := env.svc.Conflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.JSONEq(t, `{"name":"Local","age":3}`, string(conflicts[0].LocalPayload))

	require.NoError(t, env.svc.ResolveConflictManually(ctx, conflicts[0].ID, offline.ResolutionLocal, nil))
	_, err = env.svc.SyncNow(ctx)
	require.NoError(t, err)

	e, err = env.store.GetEntity(ctx, "student", "r-1")
	require.NoError(t, err)
	assert.Equal(t, offline.StatusSynced, e.SyncStatus)
	assert.JSONEq(t, `{"name":"Local","age":3}`, string(e.Payload))
}

func TestService_Subscribe(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testConfig(), Gateways{"student": newFakeGateway()})

	_, err := env.store.SaveEntity(ctx, "student", raw(`{"name":"Ana"}`), "")
	require.NoError(t, err)

	updates, unsubscribe := env.svc.Subscribe(ctx)

	initial := <-updates
	assert.True(t, initial.IsOnline)
	assert.False(t, initial.IsSyncing)
	assert.Equal(t, PhaseIdle, initial.Phase)
	assert.Equal(t, 1, initial.PendingUploadCount)
	assert.Equal(t, 1, initial.PendingIntentCount)

	_, err = env.svc.SyncNow(ctx)
	require.NoError(t, err)

	phases := map[string]bool{}
	var last Status
drain:
	for {
		select {
		case st := <-updates:
			phases[st.Phase] = true
			last = st
		default:
			break drain
		}
	}

	assert.True(t, phases[PhaseUploading])
	assert.True(t, phases[PhaseDownloading])
	assert.False(t, last.IsSyncing)
	assert.Equal(t, 0, last.PendingIntentCount)
	assert.WithinDuration(t, t0, last.LastSyncTime, 0)

	unsubscribe()
	_, ok := <-updates
	assert.False(t, ok)
	unsubscribe()
}

func TestService_StartAutoSync(t *testing.T) {
	ctx := context.Background()

	t.Run("runs on timer", func(t *testing.T) {
		gw := newFakeGateway()
		env := newTestEnv(t, testConfig(), Gateways{"student": gw})

		_, err := env.store.SaveEntity(ctx, "student", raw(`{"name":"Ana"}`), "")
		require.NoError(t, err)

		env.svc.StartAutoSync(ctx, 10*time.Millisecond)
		assert.Eventually(t, func() bool { return gw.count("create") == 1 }, time.Second, 5*time.Millisecond)
		env.svc.StopAutoSync()
		env.svc.StopAutoSync()
	})

	t.Run("skips while offline", func(t *testing.T) {
		gw := newFakeGateway()
		env := newTestEnv(t, testConfig(), Gateways{"student": gw})
		env.monitor.Set(false)

		_, err := env.store.SaveEntity(ctx, "student", raw(`{"name":"Ana"}`), "")
		require.NoError(t, err)

		env.svc.StartAutoSync(ctx, 5*time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		env.svc.StopAutoSync()

		assert.Empty(t, gw.Calls())
	})
}

type fakeMonitor struct {
	online     atomic.Bool
	events     chan connectivity.Event
	subscribed chan struct{}
}

func (m *fakeMonitor) IsOnline() bool {
	return m.online.Load()
}

func (m *fakeMonitor) Subscribe() (<-chan connectivity.Event, func()) {
	close(m.subscribed)
	return m.events, func() {}
}

func TestService_WatchConnectivity(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := &testClock{t: t0}
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "local.db"), slog.Default(), sqlite.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gw := newFakeGateway()
	monitor := &fakeMonitor{events: make(chan connectivity.Event, 1), subscribed: make(chan struct{})}
	svc := NewService(store, Gateways{"student": gw}, monitor, slog.Default(), testConfig(), WithClock(clock.Now))

	_, err = store.SaveEntity(ctx, "student", raw(`{"name":"Ana"}`), "")
	require.NoError(t, err)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		svc.WatchConnectivity(ctx)
	}()

	<-monitor.subscribed
	monitor.online.Store(true)
	monitor.events <- connectivity.Event{Online: true, At: t0}

	assert.Eventually(t, func() bool { return gw.count("create") == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped
}

func TestService_Cleanup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testConfig(), Gateways{"student": newFakeGateway()})

	_, err := env.store.SaveEntity(ctx, "student", raw(`{"name":"Ana"}`), "")
	require.NoError(t, err)
	_, err = env.svc.SyncNow(ctx)
	require.NoError(t, err)

	stats, err := env.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Intents)

	env.clock.Advance(31 * 24 * time.Hour)
	stats, err = env.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Intents)
}

func TestService_Metrics(t *testing.T) {
	ctx := context.Background()
	m := NewMetrics(prometheus.NewRegistry())
	env := newTestEnv(t, testConfig(), Gateways{"student": newFakeGateway()}, WithMetrics(m))

	_, err := env.store.SaveEntity(ctx, "student", raw(`{"name":"Ana"}`), "")
	require.NoError(t, err)
	_, err = env.svc.SyncNow(ctx)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.intents.WithLabelValues("create", "uploaded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.downloaded))
}
