package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"dataresource/internal/domain"
	"dataresource/internal/resource"
)

// ─────────────────────────────────────────────────────────────
// Catalog Service — registered resources and their inference runs
// ─────────────────────────────────────────────────────────────

// Options configure how catalog paths are resolved.
type Options struct {
	Basepath       string        // relative entry paths resolve here
	Trusted        bool          // allow absolute and parent-escaping paths
	RefreshTimeout time.Duration // per inference pass, default 5m
}

// CatalogService registers resources, re-infers them on demand, on a cron
// schedule or when their file changes, and logs every run.
type CatalogService struct {
	store   domain.CatalogStore
	emitter EventEmitter
	opts    Options
	running runningGuard

	// watcher / cron lifecycle
	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

func NewCatalogService(store domain.CatalogStore, emitter EventEmitter, opts Options) *CatalogService {
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 5 * time.Minute
	}
	return &CatalogService{store: store, emitter: emitter, opts: opts}
}

// ── Entry CRUD ─────────────────────────────────────────────

type RegisterInput struct {
	Name          string             `json:"name"`
	Path          string             `json:"path"`
	TriggerType   domain.TriggerType `json:"triggerType"`
	TriggerConfig string             `json:"triggerConfig"`
	Enabled       bool               `json:"enabled"`
}

// Register adds a resource to the catalog and runs the first inference.
// The entry stays registered when that inference fails; the run log and
// entry status carry the error.
func (s *CatalogService) Register(ctx context.Context, input RegisterInput) (*domain.CatalogEntry, *domain.InferenceRun, error) {
	if err := validateTrigger(input.TriggerType, input.TriggerConfig); err != nil {
		return nil, nil, err
	}
	r, err := s.newResource(input.Path)
	if err != nil {
		return nil, nil, err
	}
	name := input.Name
	if name == "" {
		name = r.Name()
	}

	entry := &domain.CatalogEntry{
		Name:          name,
		Path:          input.Path,
		TriggerType:   input.TriggerType,
		TriggerConfig: input.TriggerConfig,
		Enabled:       input.Enabled,
	}
	if err := s.store.CreateEntry(entry); err != nil {
		return nil, nil, fmt.Errorf("create catalog entry: %w", err)
	}

	run, runErr := s.Refresh(ctx, entry.ID)
	if fresh, err := s.store.GetEntry(entry.ID); err == nil {
		entry = fresh
	}
	if entry.TriggerType != domain.TriggerManual {
		s.RestartWatchers(ctx)
	}
	return entry, run, runErr
}

// Get resolves an entry by id, then by name.
func (s *CatalogService) Get(idOrName string) (*domain.CatalogEntry, error) {
	e, err := s.store.GetEntry(idOrName)
	if err == nil {
		return e, nil
	}
	if e, nerr := s.store.GetEntryByName(idOrName); nerr == nil {
		return e, nil
	}
	return nil, err
}

func (s *CatalogService) List() ([]domain.CatalogEntry, error) {
	return s.store.ListEntries()
}

func (s *CatalogService) Delete(ctx context.Context, idOrName string) error {
	e, err := s.Get(idOrName)
	if err != nil {
		return err
	}
	if err := s.store.DeleteEntry(e.ID); err != nil {
		return err
	}
	s.RestartWatchers(ctx)
	return nil
}

// ListRuns returns the last 50 inference runs of an entry.
func (s *CatalogService) ListRuns(idOrName string) ([]domain.InferenceRun, error) {
	e, err := s.Get(idOrName)
	if err != nil {
		return nil, err
	}
	return s.store.ListRuns(e.ID, 50)
}

// ── Run ────────────────────────────────────────────────────

// Refresh re-infers an entry with stats, stores the new descriptor and logs
// the run.
func (s *CatalogService) Refresh(ctx context.Context, id string) (*domain.InferenceRun, error) {
	// Prevent concurrent inference of the same entry.
	if !s.running.TryLock(id) {
		return nil, fmt.Errorf("entry %s is already running", id)
	}
	defer s.running.Unlock(id)

	entry, err := s.store.GetEntry(id)
	if err != nil {
		return nil, err
	}
	_ = s.store.UpdateEntryStatus(id, domain.StatusRunning, "")

	runCtx, cancel := context.WithTimeout(ctx, s.opts.RefreshTimeout)
	defer cancel()

	run := &domain.InferenceRun{EntryID: id, StartedAt: time.Now().UTC()}
	runErr := s.infer(runCtx, entry, run)
	run.FinishedAt = time.Now().UTC()
	run.Status = domain.StatusSuccess
	if runErr != nil {
		run.Status = domain.StatusError
		run.Error = runErr.Error()
	}
	if err := s.store.CreateRun(run); err != nil {
		log.Warn().Err(err).Str("entry", id).Msg("catalog: failed to log run")
	}
	_ = s.store.UpdateEntryStatus(id, run.Status, run.Error)

	if runErr == nil {
		s.emitter.Emit(ctx, "catalog:refreshed", map[string]string{
			"entryId": id,
			"name":    entry.Name,
		})
	}
	return run, runErr
}

func (s *CatalogService) infer(ctx context.Context, entry *domain.CatalogEntry, run *domain.InferenceRun) error {
	r, err := s.newResource(entry.Path)
	if err != nil {
		return err
	}
	if err := r.SetName(entry.Name); err != nil {
		log.Debug().Str("entry", entry.ID).Str("name", entry.Name).Msg("catalog: keeping derived resource name")
	}
	if err := r.Infer(ctx, resource.InferOptions{Stats: true}); err != nil {
		return err
	}
	if st := r.Stats(); st != nil {
		run.Rows, run.Bytes, run.SHA256 = st.Rows, st.Bytes, st.SHA256
	}

	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	entry.Descriptor = string(b)
	return s.store.UpdateEntry(entry)
}

// Resource rebuilds the entry's resource from its stored descriptor.
func (s *CatalogService) Resource(idOrName string) (*resource.Resource, error) {
	e, err := s.Get(idOrName)
	if err != nil {
		return nil, err
	}
	var desc map[string]any
	if err := json.Unmarshal([]byte(e.Descriptor), &desc); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	if _, ok := desc["path"]; !ok {
		return s.newResource(e.Path)
	}
	return resource.New(desc, s.resourceOptions()...)
}

// Preview reads up to n typed rows of an entry.
func (s *CatalogService) Preview(ctx context.Context, idOrName string, n int) ([]string, []*resource.Row, error) {
	r, err := s.Resource(idOrName)
	if err != nil {
		return nil, nil, err
	}
	if err := r.Open(ctx); err != nil {
		return nil, nil, err
	}
	defer r.Close()

	rs, err := r.RowStream()
	if err != nil {
		return nil, nil, err
	}
	var rows []*resource.Row
	for len(rows) < n && rs.Next() {
		rows = append(rows, rs.Row())
	}
	return r.Header(), rows, rs.Err()
}

func (s *CatalogService) newResource(path string) (*resource.Resource, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	return resource.New(path, s.resourceOptions()...)
}

func (s *CatalogService) resourceOptions() []resource.Option {
	opts := []resource.Option{resource.WithTrusted(s.opts.Trusted)}
	if s.opts.Basepath != "" {
		opts = append(opts, resource.WithBasepath(s.opts.Basepath))
	}
	return opts
}

func validateTrigger(typ domain.TriggerType, cfg string) error {
	switch typ {
	case "", domain.TriggerManual:
		return nil
	case domain.TriggerSchedule:
		if _, err := cron.ParseStandard(cfg); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", cfg, err)
		}
		return nil
	case domain.TriggerFileWatch:
		if cfg == "" {
			return errors.New("file_watch trigger needs a path")
		}
		return nil
	default:
		return fmt.Errorf("unknown trigger type %q", typ)
	}
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher/cron and rebuilds them from
// the enabled triggered entries.
func (s *CatalogService) RestartWatchers(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()

	entries, err := s.store.ListTriggeredEntries()
	if err != nil {
		log.Error().Err(err).Msg("catalog watcher: failed to list entries")
		return
	}

	// ── Cron schedules ──
	var c *cron.Cron
	for _, e := range entries {
		if e.TriggerType != domain.TriggerSchedule || e.TriggerConfig == "" {
			continue
		}
		if c == nil {
			c = cron.New()
		}
		id := e.ID
		if _, err := c.AddFunc(e.TriggerConfig, func() {
			log.Info().Str("entry", id).Msg("catalog cron: refreshing entry")
			if _, err := s.Refresh(ctx, id); err != nil {
				log.Error().Err(err).Str("entry", id).Msg("catalog cron: refresh failed")
			}
		}); err != nil {
			log.Error().Err(err).Str("entry", id).Str("expr", e.TriggerConfig).Msg("catalog cron: invalid expression")
		}
	}
	if c != nil {
		c.Start()
		s.cronSched = c
		log.Info().Int("entries", len(c.Entries())).Msg("catalog cron: scheduled")
	}

	// ── File watchers ──
	pathToEntry := make(map[string]string)
	for _, e := range entries {
		if e.TriggerType != domain.TriggerFileWatch || e.TriggerConfig == "" {
			continue
		}
		p := e.TriggerConfig
		if !filepath.IsAbs(p) && s.opts.Basepath != "" {
			p = filepath.Join(s.opts.Basepath, p)
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			log.Error().Err(err).Str("path", p).Msg("catalog watcher: bad path")
			continue
		}
		pathToEntry[abs] = e.ID
	}
	if len(pathToEntry) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error().Err(err).Msg("catalog watcher: failed to create watcher")
		return
	}
	s.watcher = watcher

	watchedDirs := make(map[string]bool)
	for abs := range pathToEntry {
		dir := filepath.Dir(abs)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.Error().Err(err).Str("dir", dir).Msg("catalog watcher: failed to watch dir")
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	go s.watchLoop(ctx, watchCtx, watcher, pathToEntry)

	log.Info().Int("files", len(pathToEntry)).Msg("catalog watcher: watching")
}

// watchLoop debounces file events per entry and refreshes after 500ms of
// quiet.
func (s *CatalogService) watchLoop(ctx, watchCtx context.Context, watcher *fsnotify.Watcher, pathToEntry map[string]string) {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	for {
		select {
		case <-watchCtx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			id, ok := pathToEntry[abs]
			if !ok {
				continue
			}
			if t, exists := timers[id]; exists {
				t.Stop()
			}
			timers[id] = time.AfterFunc(500*time.Millisecond, func() {
				log.Info().Str("path", abs).Str("entry", id).Msg("catalog watcher: file changed")
				if _, err := s.Refresh(ctx, id); err != nil {
					log.Error().Err(err).Str("entry", id).Msg("catalog watcher: refresh failed")
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("catalog watcher: error")
		}
	}
}

// WaitRunning blocks until all running refreshes finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *CatalogService) WaitRunning(ctx context.Context) {
	s.running.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *CatalogService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()
}

func (s *CatalogService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
