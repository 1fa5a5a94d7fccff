package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
	"github.com/CosmoTheDev/ctrlnotify/internal/database"
	"github.com/CosmoTheDev/ctrlnotify/models"
)

// ErrUnknownQuery is returned for query names that were never registered.
var ErrUnknownQuery = errors.New("unknown scheduled query")

// Query is a registered scheduled query as stored in scheduled_queries.
type Query struct {
	ID        int64  `db:"id"          json:"id"`
	Name      string `db:"name"        json:"name"`
	Query     string `db:"query"       json:"query"`
	EventType string `db:"event_type"  json:"event_type"`
	Schedule  string `db:"schedule"    json:"schedule"`
	// Params is a JSON array bound to the query's placeholders.
	Params    string `db:"params"      json:"params"`
	Enabled   bool   `db:"enabled"     json:"enabled"`
	LastRunAt string `db:"last_run_at" json:"last_run_at,omitempty"`
	CreatedAt string `db:"created_at"  json:"created_at"`
	UpdatedAt string `db:"updated_at"  json:"updated_at"`
}

type runRecord struct {
	QueryName    string `db:"query_name"`
	RowsReturned int    `db:"rows_returned"`
	Error        string `db:"error"`
	StartedAt    string `db:"started_at"`
	FinishedAt   string `db:"finished_at"`
}

type lastRun struct {
	LastRunAt string `db:"last_run_at"`
}

const querySelect = `SELECT id, name, query, event_type, schedule, params, enabled, last_run_at, created_at, updated_at FROM scheduled_queries`

// Scheduled turns SQL query results into events. Each row becomes one event
// whose data is the row's columns. Queries are persisted with their last run
// time so "daily" means at most once per 24h across restarts.
type Scheduled struct {
	db  database.DB
	now func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	handler Handler
	entries map[string]cron.EntryID
}

// NewScheduled returns a scheduled source backed by db. db must be migrated.
func NewScheduled(db database.DB) *Scheduled {
	return &Scheduled{
		db:      db,
		now:     time.Now,
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

func (s *Scheduled) Name() string { return "scheduled" }

// CronSpec maps the shorthand schedules to robfig/cron specs.
// Anything else is passed through as a cron expression.
func CronSpec(schedule string) string {
	switch strings.ToLower(strings.TrimSpace(schedule)) {
	case "", "daily":
		return "@every 24h"
	case "hourly":
		return "@every 1h"
	case "weekly":
		return "@every 168h"
	default:
		return strings.TrimSpace(schedule)
	}
}

// validate checks that the schedule parses without registering it anywhere.
func validate(schedule string) (cron.Schedule, error) {
	return cron.ParseStandard(CronSpec(schedule))
}

// Register stores or replaces a query definition. The last run time of an
// existing query is kept.
func (s *Scheduled) Register(ctx context.Context, qc config.ScheduledQueryConfig) error {
	if qc.Name == "" || qc.Query == "" || qc.EventType == "" {
		return fmt.Errorf("scheduled query requires name, query and event_type")
	}
	if _, err := validate(qc.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q for query %s: %w", qc.Schedule, qc.Name, err)
	}
	params := qc.Params
	if params == nil {
		params = []any{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding params for query %s: %w", qc.Name, err)
	}

	now := s.now().UTC().Format(time.RFC3339)
	q := Query{
		Name:      qc.Name,
		Query:     qc.Query,
		EventType: qc.EventType,
		Schedule:  qc.Schedule,
		Params:    string(encoded),
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, err := s.Get(ctx, qc.Name); err == nil {
		q.CreatedAt = existing.CreatedAt
		q.LastRunAt = existing.LastRunAt
	} else if !errors.Is(err, ErrUnknownQuery) {
		return err
	}
	if err := s.db.Upsert(ctx, "scheduled_queries", q, []string{"name"}); err != nil {
		return fmt.Errorf("saving scheduled query %s: %w", qc.Name, err)
	}

	s.mu.Lock()
	running := s.handler != nil
	s.mu.Unlock()
	if running {
		return s.schedule(q)
	}
	return nil
}

// Get loads one query by name.
func (s *Scheduled) Get(ctx context.Context, name string) (Query, error) {
	var q Query
	err := s.db.Get(ctx, &q, querySelect+` WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return Query{}, fmt.Errorf("%w: %s", ErrUnknownQuery, name)
	}
	if err != nil {
		return Query{}, fmt.Errorf("loading scheduled query %s: %w", name, err)
	}
	return q, nil
}

// List returns every registered query ordered by name.
func (s *Scheduled) List(ctx context.Context) ([]Query, error) {
	var out []Query
	if err := s.db.Select(ctx, &out, querySelect+` ORDER BY name`); err != nil {
		return nil, fmt.Errorf("listing scheduled queries: %w", err)
	}
	return out, nil
}

// Remove deletes a query and unschedules it.
func (s *Scheduled) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	s.mu.Unlock()
	return s.db.Exec(ctx, `DELETE FROM scheduled_queries WHERE name = ?`, name)
}

// Due reports whether q should run at now.
func (s *Scheduled) Due(q Query, now time.Time) bool {
	if q.LastRunAt == "" {
		return true
	}
	last, err := time.Parse(time.RFC3339, q.LastRunAt)
	if err != nil {
		return true
	}
	sched, err := validate(q.Schedule)
	if err != nil {
		return false
	}
	return !now.Before(sched.Next(last))
}

// Events runs every due query (or just p.QueryName) and returns the
// resulting events, filtered by p.EventType. A failing query is skipped; its
// error is joined into the returned error alongside the other queries' events.
func (s *Scheduled) Events(ctx context.Context, p Params) ([]models.NotificationEvent, error) {
	var queries []Query
	if p.QueryName != "" {
		q, err := s.Get(ctx, p.QueryName)
		if errors.Is(err, ErrUnknownQuery) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		queries = []Query{q}
	} else {
		all, err := s.List(ctx)
		if err != nil {
			return nil, err
		}
		queries = all
	}

	now := s.now()
	var out []models.NotificationEvent
	var errs []error
	for _, q := range queries {
		if !q.Enabled || (!p.Force && !s.Due(q, now)) {
			continue
		}
		evts, err := s.run(ctx, q)
		if err != nil {
			slog.Warn("scheduled: query failed", "query", q.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		out = append(out, evts...)
	}
	return filterType(out, p.EventType), errors.Join(errs...)
}

// RunQuery executes one query immediately, regardless of its schedule.
func (s *Scheduled) RunQuery(ctx context.Context, name string) ([]models.NotificationEvent, error) {
	q, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, q)
}

func (s *Scheduled) run(ctx context.Context, q Query) ([]models.NotificationEvent, error) {
	started := s.now().UTC()

	var args []any
	if q.Params != "" {
		if err := json.Unmarshal([]byte(q.Params), &args); err != nil {
			return nil, fmt.Errorf("%w: decoding params for %s: %v", ErrSource, q.Name, err)
		}
	}

	rows, qerr := s.db.QueryRows(ctx, q.Query, args...)
	finished := s.now().UTC()

	rec := runRecord{
		QueryName:    q.Name,
		RowsReturned: len(rows),
		StartedAt:    started.Format(time.RFC3339),
		FinishedAt:   finished.Format(time.RFC3339),
	}
	if qerr != nil {
		rec.Error = qerr.Error()
	}
	if _, err := s.db.Insert(ctx, "scheduled_runs", rec); err != nil {
		slog.Warn("scheduled: recording run failed", "query", q.Name, "error", err)
	}
	if qerr != nil {
		return nil, fmt.Errorf("%w: running query %s: %v", ErrSource, q.Name, qerr)
	}

	if err := s.db.Update(ctx, "scheduled_queries", lastRun{LastRunAt: started.Format(time.RFC3339)},
		"id = ?", q.ID); err != nil {
		return nil, fmt.Errorf("updating last run for %s: %w", q.Name, err)
	}

	out := make([]models.NotificationEvent, 0, len(rows))
	for i, row := range rows {
		id := fmt.Sprintf("%s_%d_%d", q.Name, started.Unix(), i)
		if v, ok := row["id"]; ok && v != nil {
			id = fmt.Sprintf("%s_%v", q.Name, v)
		}
		out = append(out, models.NewEvent(q.EventType, row, id, s.Name()))
	}
	slog.Debug("scheduled: query ran", "query", q.Name, "rows", len(rows))
	return out, nil
}

// Start schedules every enabled query with cron and passes produced events to
// handler. Queries registered later are scheduled as they arrive.
func (s *Scheduled) Start(ctx context.Context, handler Handler) error {
	queries, err := s.List(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()

	for _, q := range queries {
		if !q.Enabled {
			continue
		}
		if err := s.schedule(q); err != nil {
			slog.Warn("scheduled: skipping query with invalid schedule",
				"query", q.Name, "schedule", q.Schedule, "error", err)
		}
	}
	s.cron.Start()
	slog.Info("scheduled: cron started", "queries", len(queries))
	return nil
}

// Stop halts the cron runner and waits for running jobs.
func (s *Scheduled) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduled) schedule(q Query) error {
	name := q.Name
	id, err := s.cron.AddFunc(CronSpec(q.Schedule), func() {
		s.fire(context.Background(), name)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old)
	}
	s.entries[name] = id
	s.mu.Unlock()
	return nil
}

func (s *Scheduled) fire(ctx context.Context, name string) {
	evts, err := s.RunQuery(ctx, name)
	if err != nil {
		slog.Warn("scheduled: query failed", "query", name, "error", err)
		return
	}
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil && len(evts) > 0 {
		h(ctx, evts)
	}
}
