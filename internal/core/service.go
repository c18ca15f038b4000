package core

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultSessionTTL is how long an untouched table is kept.
	DefaultSessionTTL = 30 * time.Minute
	// DefaultMaxTables caps the number of open tables.
	DefaultMaxTables = 64
	// DefaultBlankThreshold is the near-blank threshold used by Diagnose
	// when the caller passes a negative one.
	DefaultBlankThreshold = 1
)

// ServiceParams wires a Service. Zero fields get defaults.
type ServiceParams struct {
	Engine     *Engine
	Inspector  *Inspector
	Journal    Journal
	Limiter    *IngestLimiter
	Logger     *slog.Logger
	SessionTTL time.Duration
	MaxTables  int
}

// Service keeps uploaded tables in memory and runs inspections and repairs
// against them. It is shared by the HTTP layer and the CLI.
type Service struct {
	engine    *Engine
	inspector *Inspector
	journal   Journal
	limiter   *IngestLimiter
	logger    *slog.Logger
	ttl       time.Duration
	maxTables int
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	stopped  chan struct{}
}

// Session is one open table.
type Session struct {
	ID        string
	Name      string
	Table     *Table
	CreatedAt time.Time

	// repairMu serializes repairs so before/after snapshots belong to
	// exactly one call.
	repairMu sync.Mutex
	lastUsed time.Time
}

// SessionInfo describes a session for listings.
type SessionInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Rows      int       `json:"rows"`
	Columns   []string  `json:"columns"`
	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed"`
}

// NewService builds a Service. Call Start to run TTL eviction and Close to
// stop it.
func NewService(p ServiceParams) *Service {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Engine == nil {
		p.Engine = NewEngine(WithLogger(p.Logger))
	}
	if p.Inspector == nil {
		p.Inspector = NewInspector(p.Logger)
	}
	if p.Journal == nil {
		p.Journal = NopJournal{}
	}
	if p.Limiter == nil {
		p.Limiter = NewIngestLimiter(0, 0)
	}
	if p.SessionTTL <= 0 {
		p.SessionTTL = DefaultSessionTTL
	}
	if p.MaxTables <= 0 {
		p.MaxTables = DefaultMaxTables
	}

	return &Service{
		engine:    p.Engine,
		inspector: p.Inspector,
		journal:   p.Journal,
		limiter:   p.Limiter,
		logger:    p.Logger,
		ttl:       p.SessionTTL,
		maxTables: p.MaxTables,
		now:       time.Now,
		sessions:  make(map[string]*Session),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Inspector returns the service's inspector.
func (s *Service) Inspector() *Inspector { return s.inspector }

// Limiter returns the ingest limiter.
func (s *Service) Limiter() *IngestLimiter { return s.limiter }

// ============================================================================
// Sessions
// ============================================================================

// Open runs load under an ingest slot and registers the resulting table.
func (s *Service) Open(ctx context.Context, name string, load func(context.Context) (*Table, error)) (*Session, error) {
	s.mu.RLock()
	full := len(s.sessions) >= s.maxTables
	s.mu.RUnlock()
	if full {
		return nil, ErrTooManyTables
	}

	var t *Table
	err := s.limiter.Do(ctx, func() error {
		var err error
		t, err = load(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return s.Add(name, t)
}

// Add registers an already loaded table under a fresh ID.
func (s *Service) Add(name string, t *Table) (*Session, error) {
	return s.AddWithID(uuid.NewString(), name, t)
}

// AddWithID registers an already loaded table under a caller-chosen ID, so
// journal history can be tied to something stable such as a file path.
func (s *Service) AddWithID(id, name string, t *Table) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:        id,
		Name:      name,
		Table:     t,
		CreatedAt: now,
		lastUsed:  now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		return nil, newError(ErrInvalidRequest, "table %s is already open", id)
	}
	if len(s.sessions) >= s.maxTables {
		return nil, ErrTooManyTables
	}
	s.sessions[sess.ID] = sess

	s.logger.Info("table opened", "table_id", sess.ID, "name", name,
		"rows", t.Len(), "columns", t.NumColumns())
	return sess, nil
}

// Get returns the session and marks it as used.
func (s *Service) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", id, ErrTableNotFound)
	}
	sess.lastUsed = s.now()
	return sess, nil
}

// Delete closes a session.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("table %s: %w", id, ErrTableNotFound)
	}
	delete(s.sessions, id)
	s.logger.Info("table closed", "table_id", id)
	return nil
}

// List describes all open sessions, oldest first.
func (s *Service) List() []SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Info describes the session.
func (s *Service) Info(sess *Session) SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sess.info()
}

// info reads lastUsed; caller holds s.mu.
func (sess *Session) info() SessionInfo {
	return SessionInfo{
		ID:        sess.ID,
		Name:      sess.Name,
		Rows:      sess.Table.Len(),
		Columns:   sess.Table.Columns(),
		CreatedAt: sess.CreatedAt,
		LastUsed:  sess.lastUsed,
	}
}

// Start runs the eviction janitor every interval until Close.
func (s *Service) Start(interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl / 2
	}
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if n := s.EvictExpired(); n > 0 {
					s.logger.Info("expired tables evicted", "count", n)
				}
			}
		}
	}()
}

// Close stops the janitor, if running, and waits for it to exit.
func (s *Service) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	if s.started.Load() {
		<-s.stopped
	}
}

// EvictExpired removes sessions unused for longer than the TTL.
func (s *Service) EvictExpired() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// ============================================================================
// Inspection
// ============================================================================

// Diagnostics is the full read-only report on a table.
type Diagnostics struct {
	Summary       Summary     `json:"summary"`
	TrailingNulls map[int]int `json:"trailingNulls"`
	NearBlank     []int       `json:"nearBlank"`
}

// Diagnose runs every detector over the session's table. A negative
// threshold uses DefaultBlankThreshold.
func (s *Service) Diagnose(id string, threshold int) (*Diagnostics, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return Diagnose(s.inspector, sess.Table, threshold), nil
}

// Diagnose runs every detector of in over t.
func Diagnose(in *Inspector, t *Table, threshold int) *Diagnostics {
	if threshold < 0 {
		threshold = DefaultBlankThreshold
	}
	return &Diagnostics{
		Summary:       in.Summary(t, threshold),
		TrailingNulls: in.FindTrailingNullRuns(t),
		NearBlank:     in.FindNearBlankRows(t, threshold),
	}
}

// Extraction modes for ExtractRequest.By.
const (
	ExtractIndex   = "index"
	ExtractValue   = "value"
	ExtractPattern = "pattern"
)

// ExtractRequest selects a subset of rows.
type ExtractRequest struct {
	By       string    `json:"by" yaml:"by"`
	Indices  []int     `json:"indices,omitempty" yaml:"indices,omitempty"`
	Values   []string  `json:"values,omitempty" yaml:"values,omitempty"`
	Column   string    `json:"column,omitempty" yaml:"column,omitempty"`
	Patterns []string  `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	Columns  []string  `json:"columns,omitempty" yaml:"columns,omitempty"`
	Mode     MatchMode `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// ExtractResult is the extracted table plus any per-column scan errors.
type ExtractResult struct {
	Table  *Table        `json:"table"`
	Errors []ColumnError `json:"errors,omitempty"`
}

// Extract runs req against the session's table.
func (s *Service) Extract(id string, req ExtractRequest) (*ExtractResult, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return Extract(s.inspector, sess.Table, req)
}

// Extract runs req against t.
func Extract(in *Inspector, t *Table, req ExtractRequest) (*ExtractResult, error) {
	switch req.By {
	case ExtractIndex:
		out, err := in.ExtractByIndex(t, req.Indices)
		if err != nil {
			return nil, err
		}
		return &ExtractResult{Table: out}, nil
	case ExtractValue:
		out, err := in.ExtractByValue(t, req.Values, req.Column)
		if err != nil {
			return nil, err
		}
		return &ExtractResult{Table: out}, nil
	case ExtractPattern:
		r := in.ExtractByPattern(t, req.Patterns, req.Columns, req.Mode)
		return &ExtractResult{Table: r.Table, Errors: r.Errors}, nil
	default:
		return nil, newError(ErrInvalidRequest, "unknown extract mode %q", req.By)
	}
}

// ============================================================================
// Repair
// ============================================================================

// Repair runs req against the session's table and journals one entry per
// targeted row. A single-row operation that fails returns its error after
// the failure has been journaled. Journal write errors are logged and do
// not undo the repair.
func (s *Service) Repair(ctx context.Context, id string, req RepairRequest) (*BatchReport, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sess.repairMu.Lock()
	defer sess.repairMu.Unlock()

	t := sess.Table
	if req.Op == OpAutoStretch && req.Detect && len(req.Indices) == 0 {
		req.Indices = CandidateIndices(s.inspector.FindTrailingNullRuns(t))
	}

	targets := req.targets()
	beforeOrder := t.Indices()
	before := snapshot(t, targets)

	report, opErr := Apply(ctx, s.engine, t, req)

	after := t.Rows()
	entries := journalEntries(id, req.Op, targets, beforeOrder, before, after, report, opErr, s.now())
	if len(entries) > 0 {
		if err := s.journal.Record(ctx, entries); err != nil {
			s.logger.Error("journal write failed", "table_id", id, "op", req.Op, "error", err)
		}
	}

	if opErr != nil {
		return nil, opErr
	}
	return report, nil
}

// History returns the newest journal entries for the session's table.
func (s *Service) History(ctx context.Context, id string, limit int) ([]JournalEntry, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	entries, err := s.journal.List(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("journal list: %w", err)
	}
	return entries, nil
}

// Apply runs req against t with e. Single-row operations are wrapped in a
// report with one repaired row.
func Apply(ctx context.Context, e *Engine, t *Table, req RepairRequest) (*BatchReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	single := func(err error, row RepairedRow) (*BatchReport, error) {
		if err != nil {
			return nil, err
		}
		r := newReport(req.Op)
		r.Repaired = append(r.Repaired, row)
		r.Duration = time.Since(start)
		return r, nil
	}

	plan := ShiftPlan{
		Index:           req.Index,
		BreakdownColumn: req.BreakdownColumn,
		Delimiter:       req.Delimiter,
		Steps:           req.Steps,
		Drops:           req.Drops,
	}

	switch req.Op {
	case OpMergeAdjacent:
		err := e.MergeAdjacent(t, req.Index, req.ColumnA, req.ColumnB, req.Delimiter, req.StripQuotes)
		return single(err, RepairedRow{Index: req.Index, BreakdownColumn: req.ColumnB})
	case OpMergeNoShift:
		err := e.MergeNoShift(t, req.Index, req.ColumnA, req.ColumnB, req.Delimiter, req.StripQuotes)
		return single(err, RepairedRow{Index: req.Index, BreakdownColumn: req.ColumnB})
	case OpSplitRight:
		err := e.SplitRight(t, req.Columns, plan)
		return single(err, RepairedRow{Index: req.Index, BreakdownColumn: req.BreakdownColumn, Steps: req.Steps})
	case OpStretchByIndex:
		err := e.StretchByIndex(t, plan)
		return single(err, RepairedRow{Index: req.Index, BreakdownColumn: req.BreakdownColumn, Steps: req.Steps})
	case OpShareLeft:
		return e.ShareLeft(ctx, t, req.Indices, req.BreakdownColumn, req.LeftColumn, req.Delimiter, req.Drops)
	case OpAutoStretch:
		return e.AutoStretch(ctx, t, req.Indices, req.Delimiter, req.Drops)
	}
	return nil, newError(ErrInvalidRequest, "unknown operation %q", req.Op)
}

// snapshot copies the rows at indices. Missing rows are left out.
func snapshot(t *Table, indices []int) map[int][]Cell {
	out := make(map[int][]Cell, len(indices))
	for _, i := range indices {
		if row, err := t.Row(i); err == nil {
			out[i] = row
		}
	}
	return out
}

func journalEntries(tableID string, op RepairOp, targets, order []int, before map[int][]Cell,
	after [][]Cell, report *BatchReport, opErr error, now time.Time) []JournalEntry {

	batchID := uuid.New()
	entry := func(index int, outcome Outcome, err error) JournalEntry {
		e := JournalEntry{
			ID:        uuid.New(),
			BatchID:   batchID,
			TableID:   tableID,
			Operation: op,
			RowIndex:  index,
			Outcome:   outcome,
			Before:    before[index],
			CreatedAt: now,
		}
		if err != nil {
			e.ErrorKind = KindName(err)
			e.Error = err.Error()
		}
		if outcome == OutcomeRepaired {
			if pos := slices.Index(order, index); pos >= 0 && pos < len(after) {
				e.After = after[pos]
			}
		}
		return e
	}

	if opErr != nil {
		out := make([]JournalEntry, 0, len(targets))
		for _, i := range targets {
			out = append(out, entry(i, OutcomeFailed, opErr))
		}
		return out
	}

	out := make([]JournalEntry, 0, len(report.Repaired)+len(report.Skipped)+len(report.Failed))
	for _, r := range report.Repaired {
		out = append(out, entry(r.Index, OutcomeRepaired, nil))
	}
	for _, r := range report.Skipped {
		out = append(out, entry(r.Index, OutcomeSkipped, nil))
	}
	for _, f := range report.Failed {
		out = append(out, entry(f.Index, OutcomeFailed, f.Err))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RowIndex < out[j].RowIndex })
	return out
}
