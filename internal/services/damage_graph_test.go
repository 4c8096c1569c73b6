package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	redisclient "github.com/yungbote/damagegraph-backend/internal/clients/redis"
	"github.com/yungbote/damagegraph-backend/internal/data/graph"
	"github.com/yungbote/damagegraph-backend/internal/domain/ingest"
	"github.com/yungbote/damagegraph-backend/internal/domain/temporal"
	"github.com/yungbote/damagegraph-backend/internal/observability"
	"github.com/yungbote/damagegraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/damagegraph-backend/internal/platform/apierr"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
	"github.com/yungbote/damagegraph-backend/internal/platform/neo4jdb"
)

// stubRunner answers every statement with one generic record.
type stubRunner struct {
	mu    sync.Mutex
	calls []string
	seq   int
	err   error
	rows  []map[string]any
}

func (r *stubRunner) Run(_ context.Context, cypher string, _ map[string]any) ([]map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cypher)
	if r.err != nil {
		return nil, r.err
	}
	if r.rows != nil {
		return r.rows, nil
	}
	r.seq++
	return []map[string]any{{"id": "4:e:" + string(rune('a'+r.seq)), "linked": int64(1), "removed": int64(2)}}, nil
}

type fakeStore struct {
	runner     *stubRunner
	sessions   int
	writes     int
	sessionErr error
}

func (s *fakeStore) WithSession(_ context.Context, _ bool, fn func(neo4jdb.Runner) error) error {
	s.sessions++
	if s.sessionErr != nil {
		return s.sessionErr
	}
	return fn(s.runner)
}

func (s *fakeStore) ExecuteWrite(_ context.Context, fn func(neo4jdb.Runner) error) error {
	s.writes++
	if s.sessionErr != nil {
		return s.sessionErr
	}
	return fn(s.runner)
}

type fakeLocker struct {
	err        error
	releaseErr error
	acquired   [][]string
	released   int
}

func (l *fakeLocker) Acquire(_ context.Context, ids []string) (redisclient.ReleaseFunc, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, ids)
	return func(context.Context) error {
		l.released++
		return l.releaseErr
	}, nil
}

type fakeBus struct {
	err    error
	events []redisclient.DamageEvent
}

func (b *fakeBus) Publish(_ context.Context, ev redisclient.DamageEvent) error {
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, ev)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, func(redisclient.DamageEvent)) error { return nil }

type fakeRunRepo struct {
	runs []*ingest.IngestRun
}

func (r *fakeRunRepo) Create(_ dbctx.Context, run *ingest.IngestRun) (*ingest.IngestRun, error) {
	r.runs = append(r.runs, run)
	return run, nil
}

func (r *fakeRunRepo) GetByID(dbctx.Context, uuid.UUID) (*ingest.IngestRun, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeRunRepo) ListRecent(_ dbctx.Context, _ string, _ int) ([]*ingest.IngestRun, error) {
	return r.runs, nil
}

func (r *fakeRunRepo) CountByStatus(dbctx.Context, string) (map[string]int64, error) {
	return map[string]int64{}, nil
}

const twoDamages = `{
  "Damage_001": {"Metadata": {"Damage_ID": "D1", "DamageType": "Crack"}, "Epochs": [{"Epoch": 1}, {"Epoch": 2}]},
  "Damage_002": {"Metadata": {"DamageType": "Spalling"}}
}`

type harness struct {
	svc     DamageGraphService
	store   *fakeStore
	locker  *fakeLocker
	bus     *fakeBus
	repo    *fakeRunRepo
	metrics *observability.Metrics
}

func newHarness(t *testing.T, cfg DamageGraphConfig) *harness {
	t.Helper()
	log := logger.Nop()
	h := &harness{
		store:   &fakeStore{runner: &stubRunner{}},
		locker:  &fakeLocker{},
		bus:     &fakeBus{},
		repo:    &fakeRunRepo{},
		metrics: observability.New(),
	}
	h.svc = NewDamageGraphService(log, h.store, h.locker, h.bus, NewAuditRecorder(log, h.repo), h.metrics, cfg)
	return h
}

func mustDecode(t *testing.T, src string) *temporal.Document {
	t.Helper()
	doc, err := temporal.DecodeDocument(strings.NewReader(src))
	if err != nil {
		t.Fatalf("DecodeDocument: %v", err)
	}
	return doc
}

func wantAPIError(t *testing.T, err error, status int, code string) *apierr.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("want api error %d/%s, got nil", status, code)
	}
	ae := apierr.As(err)
	if ae.Status != status || ae.Code != code {
		t.Fatalf("api error: want=%d/%s got=%d/%s (%v)", status, code, ae.Status, ae.Code, err)
	}
	return ae
}

func TestIngestAbortReturnsOffendingKey(t *testing.T) {
	h := newHarness(t, DamageGraphConfig{})
	_, err := h.svc.Ingest(context.Background(), IngestRequest{Document: mustDecode(t, twoDamages), Source: "upload"})
	ae := wantAPIError(t, err, http.StatusBadRequest, "invalid_damage_structure")
	if got := ae.Detail["key"]; got != "Damage_002" {
		t.Fatalf("detail key: want=%q got=%v", "Damage_002", got)
	}
	if len(h.store.runner.calls) != 0 {
		t.Fatalf("store calls on abort: want=0 got=%d", len(h.store.runner.calls))
	}
	if len(h.locker.acquired) != 0 {
		t.Fatalf("locks taken on abort: want=0 got=%d", len(h.locker.acquired))
	}
	if len(h.repo.runs) != 1 || h.repo.runs[0].Status != ingest.StatusRejected {
		t.Fatalf("audit: want one rejected run, got %+v", h.repo.runs)
	}
}

func TestIngestSkipWritesValidDamages(t *testing.T) {
	h := newHarness(t, DamageGraphConfig{})
	report, err := h.svc.Ingest(context.Background(), IngestRequest{
		Document: mustDecode(t, twoDamages),
		Policy:   graph.PolicySkip,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if report.DamageNodesMerged != 1 || report.EpochNodesCreated != 2 {
		t.Fatalf("report: want 1 damage/2 epochs got %d/%d", report.DamageNodesMerged, report.EpochNodesCreated)
	}
	if len(report.Invalid) != 1 || report.Invalid[0].Key != "Damage_002" {
		t.Fatalf("invalid: want [Damage_002] got %+v", report.Invalid)
	}
	if len(h.locker.acquired) != 1 || len(h.locker.acquired[0]) != 1 || h.locker.acquired[0][0] != "D1" {
		t.Fatalf("locked ids: want=[[D1]] got=%v", h.locker.acquired)
	}
	if h.locker.released != 1 {
		t.Fatalf("lock releases: want=1 got=%d", h.locker.released)
	}
	if h.store.sessions != 1 || h.store.writes != 0 {
		t.Fatalf("non-atomic ingest: want 1 session 0 tx got %d/%d", h.store.sessions, h.store.writes)
	}
	if len(h.bus.events) != 1 || h.bus.events[0].Kind != "ingest" {
		t.Fatalf("events: want one ingest event got %+v", h.bus.events)
	}
	if len(h.repo.runs) != 1 || h.repo.runs[0].Status != ingest.StatusSucceeded || h.repo.runs[0].Subject != "D1" {
		t.Fatalf("audit: want one succeeded run for D1, got %+v", h.repo.runs)
	}
}

func TestIngestAtomicUsesManagedTransaction(t *testing.T) {
	h := newHarness(t, DamageGraphConfig{Atomic: true, DefaultPolicy: graph.PolicySkip})
	if _, err := h.svc.Ingest(context.Background(), IngestRequest{Document: mustDecode(t, twoDamages)}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if h.store.writes != 1 || h.store.sessions != 0 {
		t.Fatalf("atomic ingest: want 0 session 1 tx got %d/%d", h.store.sessions, h.store.writes)
	}
}

func TestIngestLockContention(t *testing.T) {
	h := newHarness(t, DamageGraphConfig{DefaultPolicy: graph.PolicySkip})
	h.locker.err = redisclient.ErrLocked
	_, err := h.svc.Ingest(context.Background(), IngestRequest{Document: mustDecode(t, twoDamages)})
	wantAPIError(t, err, http.StatusConflict, "damage_locked")
	if len(h.store.runner.calls) != 0 {
		t.Fatalf("store calls under contention: want=0 got=%d", len(h.store.runner.calls))
	}

	h.locker.err = errors.New("dial tcp: refused")
	_, err = h.svc.Ingest(context.Background(), IngestRequest{Document: mustDecode(t, twoDamages)})
	wantAPIError(t, err, http.StatusServiceUnavailable, "lock_unavailable")
}

func TestIngestStoreFailureIsUnavailable(t *testing.T) {
	h := newHarness(t, DamageGraphConfig{DefaultPolicy: graph.PolicySkip})
	h.store.runner.err = errors.New("connection reset")
	_, err := h.svc.Ingest(context.Background(), IngestRequest{Document: mustDecode(t, twoDamages)})
	wantAPIError(t, err, http.StatusServiceUnavailable, "graph_store_unavailable")
	if h.locker.released != 1 {
		t.Fatalf("lock releases after failure: want=1 got=%d", h.locker.released)
	}
	if len(h.repo.runs) != 1 || h.repo.runs[0].Status != ingest.StatusFailed {
		t.Fatalf("audit: want one failed run, got %+v", h.repo.runs)
	}
}

func TestIngestWithoutStore(t *testing.T) {
	svc := NewDamageGraphService(logger.Nop(), nil, nil, nil, nil, nil, DamageGraphConfig{})
	_, err := svc.Ingest(context.Background(), IngestRequest{Document: mustDecode(t, twoDamages)})
	wantAPIError(t, err, http.StatusServiceUnavailable, "graph_unavailable")

	_, err = svc.Ingest(context.Background(), IngestRequest{})
	wantAPIError(t, err, http.StatusBadRequest, "missing_document")
}

func TestTimelineNotFound(t *testing.T) {
	h := newHarness(t, DamageGraphConfig{})
	h.store.runner.rows = []map[string]any{}
	_, err := h.svc.Timeline(context.Background(), "missing")
	wantAPIError(t, err, http.StatusNotFound, "damage_not_found")
}

func TestDeleteTakesLockAndPublishes(t *testing.T) {
	h := newHarness(t, DamageGraphConfig{})
	n, err := h.svc.Delete(context.Background(), "D1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("epochs removed: want=2 got=%d", n)
	}
	if len(h.locker.acquired) != 1 || h.locker.released != 1 {
		t.Fatalf("lock: want one acquire/release got %d/%d", len(h.locker.acquired), h.locker.released)
	}
	if len(h.bus.events) != 1 || h.bus.events[0].Kind != "delete" {
		t.Fatalf("events: want one delete event got %+v", h.bus.events)
	}
}

func TestDeleteLogsReleaseAndPublishFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}
	store := &fakeStore{runner: &stubRunner{}}
	locker := &fakeLocker{releaseErr: errors.New("lock expired")}
	bus := &fakeBus{err: errors.New("redis down")}
	svc := NewDamageGraphService(log, store, locker, bus, nil, nil, DamageGraphConfig{})

	if _, err := svc.Delete(context.Background(), "D1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, msg := range []string{"damage lock release failed", "damage event publish failed"} {
		entries := logs.FilterMessage(msg).All()
		if len(entries) != 1 {
			t.Fatalf("%q: want=1 warning got=%d", msg, len(entries))
		}
		if got := entries[0].ContextMap()["damage_id"]; got != "D1" {
			t.Fatalf("%q damage_id: want=%q got=%v", msg, "D1", got)
		}
	}
}

func TestRelateRejectsUnknownType(t *testing.T) {
	h := newHarness(t, DamageGraphConfig{})
	err := h.svc.Relate(context.Background(), "D1", "D2", graph.RelType("HAS_EPOCH"))
	wantAPIError(t, err, http.StatusBadRequest, "invalid_relationship")
	if len(h.store.runner.calls) != 0 {
		t.Fatalf("store calls: want=0 got=%d", len(h.store.runner.calls))
	}
	if err := h.svc.Relate(context.Background(), "D1", "D2", graph.RelCausedBy); err != nil {
		t.Fatalf("Relate: %v", err)
	}
}

func TestSessionFailureMapsToUnavailable(t *testing.T) {
	h := newHarness(t, DamageGraphConfig{})
	h.store.sessionErr = errors.New("routing table unavailable")
	_, err := h.svc.ClearEpochs(context.Background(), "D1")
	wantAPIError(t, err, http.StatusServiceUnavailable, "graph_store_unavailable")
}
