package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	tdotel "github.com/Strob0t/TaskDealer/internal/adapter/otel"
	"github.com/Strob0t/TaskDealer/internal/adapter/ws"
	"github.com/Strob0t/TaskDealer/internal/domain"
	"github.com/Strob0t/TaskDealer/internal/domain/agent"
	"github.com/Strob0t/TaskDealer/internal/domain/distribution"
	"github.com/Strob0t/TaskDealer/internal/domain/record"
	"github.com/Strob0t/TaskDealer/internal/ingest"
	"github.com/Strob0t/TaskDealer/internal/logger"
	"github.com/Strob0t/TaskDealer/internal/port/broadcast"
	"github.com/Strob0t/TaskDealer/internal/port/cache"
	"github.com/Strob0t/TaskDealer/internal/port/database"
	"github.com/Strob0t/TaskDealer/internal/port/messagequeue"
	"github.com/Strob0t/TaskDealer/internal/resilience"
	"github.com/Strob0t/TaskDealer/internal/upload"
)

// Stage names a step of the upload pipeline. An upload moves through the
// stages in declaration order and never skips one.
type Stage string

const (
	StageReceived      Stage = "received"
	StageParsed        Stage = "parsed"
	StageValidated     Stage = "validated"
	StageAgentsFetched Stage = "agents_fetched"
	StageDistributed   Stage = "distributed"
	StagePersisted     Stage = "persisted"
	StageDone          Stage = "done"
)

// StageError reports the stage an upload failed to reach.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("upload stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Failure kinds used as the outcome label of upload metrics.
const (
	FailureUnsupportedFormat = "unsupported_format"
	FailureNoAgents          = "no_agents"
	FailureParse             = "parse_failure"
	FailureStorage           = "storage_failure"
	FailureValidation        = "invalid_request"
	FailureInternal          = "internal"
)

// FailureKind classifies an upload error.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return FailureUnsupportedFormat
	case errors.Is(err, domain.ErrNoAgentsAvailable):
		return FailureNoAgents
	case errors.Is(err, domain.ErrParse):
		return FailureParse
	case errors.Is(err, domain.ErrStorage):
		return FailureStorage
	case errors.Is(err, domain.ErrValidation):
		return FailureValidation
	default:
		return FailureInternal
	}
}

// UploadResult summarizes a completed upload.
type UploadResult struct {
	BatchID       string               `json:"batch_id"`
	Source        string               `json:"source"`
	Accepted      int                  `json:"accepted"`
	Dropped       int                  `json:"dropped"`
	Distributions []distribution.Entry `json:"distributions"`
}

// DistributionService turns uploaded files into the current distribution
// snapshot and serves it.
type DistributionService struct {
	agents   database.AgentDirectory
	store    database.DistributionStore
	stager   *upload.Stager
	cache    cache.Cache
	cacheTTL time.Duration
	metrics  *tdotel.Metrics
	notify   notifier

	// mu serializes replacements within this process.
	mu sync.Mutex
	// cacheMu orders cache writes against gen. gen counts replacements and
	// invalidations; a fill whose store read predates the current gen is
	// discarded.
	cacheMu sync.Mutex
	gen     atomic.Uint64
	sf      singleflight.Group

	now func() time.Time
}

// NewDistributionService creates a new DistributionService.
func NewDistributionService(agents database.AgentDirectory, store database.DistributionStore, stager *upload.Stager) *DistributionService {
	return &DistributionService{
		agents: agents,
		store:  store,
		stager: stager,
		now:    time.Now,
	}
}

// SetCache attaches a read-through cache for the listed snapshot.
func (s *DistributionService) SetCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	s.cacheTTL = ttl
}

// SetBroadcaster attaches the dashboard event hub.
func (s *DistributionService) SetBroadcaster(hub broadcast.Broadcaster) {
	s.notify.hub = hub
}

// SetQueue attaches a message queue for cross-instance events.
// breaker may be nil.
func (s *DistributionService) SetQueue(q messagequeue.Queue, breaker *resilience.Breaker) {
	s.notify.queue = q
	s.notify.breaker = breaker
}

// SetMetrics attaches upload metric instruments.
func (s *DistributionService) SetMetrics(m *tdotel.Metrics) {
	s.metrics = m
}

// UploadAndDistribute runs the upload pipeline for one file: it stages the
// body, parses and validates the rows, deals the accepted tasks round-robin
// over the current roster and replaces the stored snapshot.
//
// On any failure before the replacement the previous snapshot stays in
// effect. Errors are returned as *StageError wrapping a domain sentinel.
func (s *DistributionService) UploadAndDistribute(ctx context.Context, originalName string, body io.Reader) (*UploadResult, error) {
	start := s.now()
	batchID := uuid.NewString()
	ctx = logger.WithBatchID(ctx, batchID)

	format, err := ingest.FormatOf(originalName)
	if err != nil {
		err = &StageError{Stage: StageReceived, Err: err}
		s.record(ctx, err, nil, start)
		slog.WarnContext(ctx, "upload rejected", "source", originalName, "error", err)
		return nil, err
	}

	ctx, span := tdotel.StartUploadSpan(ctx, originalName, string(format))
	res, err := s.run(ctx, batchID, originalName, format, body)
	tdotel.EndSpan(span, err)
	s.record(ctx, err, res, start)

	if err != nil {
		if errors.Is(err, domain.ErrStorage) {
			slog.ErrorContext(ctx, "upload failed to persist", "source", originalName, "error", err,
				"recovery", "re-upload required")
		} else {
			slog.WarnContext(ctx, "upload failed", "source", originalName, "error", err)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "upload distributed",
		"source", originalName,
		"accepted", res.Accepted,
		"dropped", res.Dropped,
		"agents", len(res.Distributions),
		"elapsed", s.now().Sub(start),
	)
	return res, nil
}

func (s *DistributionService) run(ctx context.Context, batchID, source string, format ingest.Format, body io.Reader) (*UploadResult, error) {
	var staged *upload.File
	err := s.step(ctx, StageReceived, func(context.Context) error {
		var err error
		staged, err = s.stager.Stage(source, format.Ext(), body)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := staged.Release(); err != nil {
			slog.WarnContext(ctx, "release staged upload", "path", staged.Path, "error", err)
		}
	}()

	f, err := staged.Open()
	if err != nil {
		return nil, &StageError{Stage: StageParsed, Err: fmt.Errorf("open staged upload: %w", err)}
	}
	defer f.Close() //nolint:errcheck

	var rows ingest.Rows
	err = s.step(ctx, StageParsed, func(context.Context) error {
		var err error
		rows, err = ingest.Parse(f, format)
		return err
	})
	if err != nil {
		return nil, err
	}

	var valid ingest.Result
	err = s.step(ctx, StageValidated, func(context.Context) error {
		var err error
		valid, err = ingest.Validate(rows)
		return err
	})
	if err != nil {
		// Streaming formats surface corrupt input while rows are consumed.
		var se *StageError
		if errors.As(err, &se) && errors.Is(err, domain.ErrParse) {
			se.Stage = StageParsed
		}
		return nil, err
	}

	var roster []agent.Agent
	err = s.step(ctx, StageAgentsFetched, func(ctx context.Context) error {
		var err error
		roster, err = s.agents.ListAgents(ctx)
		if err != nil {
			return fmt.Errorf("list agents: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var snap distribution.Snapshot
	err = s.step(ctx, StageDistributed, func(context.Context) error {
		var err error
		snap, err = distribution.Distribute(valid.Tasks, agent.IDs(roster))
		return err
	})
	if err != nil {
		return nil, err
	}

	batch := distribution.Batch{
		ID:            batchID,
		Source:        source,
		CreatedAt:     s.now().UTC(),
		Distributions: snap,
	}
	entries := resolve(snap, roster)

	err = s.step(ctx, StagePersisted, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.store.ReplaceSnapshot(ctx, batch); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrStorage, err)
		}

		s.cacheMu.Lock()
		defer s.cacheMu.Unlock()
		s.gen.Add(1)
		s.fill(ctx, entries)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.broadcast(ctx, broadcast.EventDistributionReplaced, ws.DistributionReplacedEvent{
		BatchID: batchID,
		Source:  source,
		Agents:  len(snap),
		Tasks:   snap.TaskCount(),
	})
	s.notify.publish(ctx, messagequeue.SubjectDistributionsReplaced, messagequeue.DistributionsReplacedPayload{
		BatchID:    batchID,
		Source:     source,
		Agents:     len(snap),
		Tasks:      snap.TaskCount(),
		ReplacedAt: batch.CreatedAt,
	})
	slog.DebugContext(ctx, "upload stage", "stage", StageDone)

	return &UploadResult{
		BatchID:       batchID,
		Source:        source,
		Accepted:      len(valid.Tasks),
		Dropped:       valid.Dropped,
		Distributions: entries,
	}, nil
}

// step runs fn inside a stage span. A failure is reported as not having
// reached stage.
func (s *DistributionService) step(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	ctx, span := tdotel.StartStageSpan(ctx, string(stage))
	err := fn(ctx)
	tdotel.EndSpan(span, err)
	if err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	slog.DebugContext(ctx, "upload stage", "stage", stage)
	return nil
}

func (s *DistributionService) record(ctx context.Context, err error, res *UploadResult, start time.Time) {
	if s.metrics == nil {
		return
	}
	elapsed := s.now().Sub(start)
	if err != nil {
		s.metrics.RecordUpload(ctx, FailureKind(err), 0, 0, 0, elapsed)
		return
	}
	tasks := 0
	for i := range res.Distributions {
		tasks += len(res.Distributions[i].Tasks)
	}
	s.metrics.RecordUpload(ctx, tdotel.OutcomeOK, res.Accepted, res.Dropped, tasks, elapsed)
}

// List returns the current snapshot with agent references resolved.
// An empty slice means no upload has produced distributions yet.
func (s *DistributionService) List(ctx context.Context) ([]distribution.Entry, error) {
	if entries, ok := s.cached(ctx); ok {
		return entries, nil
	}

	v, err, _ := s.sf.Do(cache.KeySnapshot, func() (any, error) {
		gen := s.gen.Load()
		entries, err := s.store.ListSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []distribution.Entry{}
		}
		s.fillIfCurrent(ctx, gen, entries)
		return entries, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	return v.([]distribution.Entry), nil
}

// LatestBatch returns metadata of the upload behind the current snapshot.
func (s *DistributionService) LatestBatch(ctx context.Context) (*distribution.Batch, error) {
	return s.store.LatestBatch(ctx)
}

// Invalidate drops the cached snapshot, after an agent was removed or
// another process replaced the snapshot. Fills already in flight are
// discarded.
func (s *DistributionService) Invalidate(ctx context.Context) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.gen.Add(1)
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.KeySnapshot); err != nil {
		slog.WarnContext(ctx, "drop cached snapshot", "error", err)
	}
}

// fillIfCurrent caches entries read from the store while gen was current.
func (s *DistributionService) fillIfCurrent(ctx context.Context, gen uint64, entries []distribution.Entry) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if s.gen.Load() != gen {
		slog.DebugContext(ctx, "discarding stale snapshot read")
		return
	}
	s.fill(ctx, entries)
}

func (s *DistributionService) cached(ctx context.Context) ([]distribution.Entry, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, cache.KeySnapshot)
	if err != nil {
		slog.WarnContext(ctx, "read cached snapshot", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	entries := []distribution.Entry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.WarnContext(ctx, "decode cached snapshot", "error", err)
		return nil, false
	}
	return entries, true
}

func (s *DistributionService) fill(ctx context.Context, entries []distribution.Entry) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(entries)
	if err != nil {
		slog.WarnContext(ctx, "encode snapshot for cache", "error", err)
		return
	}
	if err := s.cache.Set(ctx, cache.KeySnapshot, data, s.cacheTTL); err != nil {
		slog.WarnContext(ctx, "cache snapshot", "error", err)
	}
}

// resolve attaches roster references to snap without another store read.
func resolve(snap distribution.Snapshot, roster []agent.Agent) []distribution.Entry {
	refs := make(map[string]agent.Ref, len(roster))
	for i := range roster {
		refs[roster[i].ID] = agent.RefOf(roster[i])
	}

	entries := make([]distribution.Entry, 0, len(snap))
	for _, d := range snap {
		ref, ok := refs[d.AgentID]
		if !ok {
			ref = agent.UnknownRef(d.AgentID)
		}
		entries = append(entries, distribution.Entry{
			Agent: ref,
			Tasks: append([]record.Task(nil), d.Tasks...),
		})
	}
	return entries
}
