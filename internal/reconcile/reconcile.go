// Package reconcile implements C10: syncing vault markdown files into
// the graph store, either as a one-shot startup/full scan or as a
// real-time filesystem watch. Grounded on the teacher's
// internal/core/mangle_watcher.go (fsnotify + in-memory debounce map
// drained by a ticker) and spec.md §4.10.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"secondbrain/internal/graphstore"
	"secondbrain/internal/logging"
	"secondbrain/internal/model"
	"secondbrain/internal/sqlstore"
	"secondbrain/internal/vault"
)

var log = logging.Get(logging.CategoryReconcile)

const lastSyncMetaKey = "vault_reconciler.last_sync_time"

// Status reports the progress of the single in-flight full or
// reconciliation run, if any (spec.md §4.10 "module-level status
// object").
type Status struct {
	IsRunning bool
	SyncType  string // "startup" | "full"
	StartedAt time.Time
	Processed int
	Synced    int
	Failed    int
	LastError string
}

// Reconciler syncs vault notes into the graph store.
type Reconciler struct {
	Vault *vault.Manager
	Graph graphstore.Store
	SQL   *sqlstore.Store

	mu      sync.Mutex
	status  Status
	watcher *fsnotify.Watcher

	debounceMu  sync.Mutex
	debounceMap map[string]time.Time
	debounceDur time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Reconciler over the given vault, graph store, and SQL
// store (used only to persist last_sync_time).
func New(v *vault.Manager, graph graphstore.Store, sql *sqlstore.Store) *Reconciler {
	return &Reconciler{
		Vault:       v,
		Graph:       graph,
		SQL:         sql,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
	}
}

// Status returns a snapshot of the current run's progress.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// tryStart claims the single-run slot, returning false if a run is
// already in progress (spec.md §4.10: "a second call while running
// returns already in progress").
func (r *Reconciler) tryStart(syncType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.IsRunning {
		return false
	}
	r.status = Status{IsRunning: true, SyncType: syncType, StartedAt: time.Now().UTC()}
	return true
}

func (r *Reconciler) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.IsRunning = false
	if err != nil {
		r.status.LastError = err.Error()
	}
}

func (r *Reconciler) recordProcessed(synced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Processed++
	if synced {
		r.status.Synced++
	} else {
		r.status.Failed++
	}
}

// SyncNote implements spec.md §4.10's 4-step sync_note(path): parse
// frontmatter/body, determine node_id, extract wikilinks and tags,
// then merge_note_node + sync_note_links. path is relative to the
// vault root.
func (r *Reconciler) SyncNote(ctx context.Context, path string) error {
	raw, err := r.Vault.ReadNote(path)
	if err != nil {
		return fmt.Errorf("reconcile: read note %s: %w", path, err)
	}

	fm, body, err := vault.ParseNote(raw)
	if err != nil {
		return fmt.Errorf("reconcile: parse note %s: %w", path, err)
	}

	nodeID := fm.ID
	rewriteFrontmatter := false
	if nodeID == "" {
		abs := r.Vault.AbsPath(path)
		nodeID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(abs)).String()
		fm.ID = nodeID
		rewriteFrontmatter = true
	}

	wikilinks := vault.ExtractWikilinks(body)
	tags := mergeTags(fm.Tags, vault.ExtractTags(body))
	fm.Tags = tags

	title := fm.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	note := model.NoteNode{
		ID:           nodeID,
		Title:        title,
		NoteType:     fm.Type,
		Tags:         tags,
		FilePath:     path,
		LastSyncedAt: time.Now().UTC(),
	}
	if url, ok := fm.Extra["source_url"].(string); ok {
		note.SourceURL = url
	}

	if err := r.Graph.MergeNoteNode(ctx, note); err != nil {
		return fmt.Errorf("reconcile: merge note node %s: %w", path, err)
	}
	if err := r.Graph.SyncNoteLinks(ctx, nodeID, wikilinks); err != nil {
		return fmt.Errorf("reconcile: sync note links %s: %w", path, err)
	}
	if err := r.Graph.LinkContentToNoteByPath(ctx, path); err != nil {
		log.Warn("link content to note by path %s: %v", path, err)
	}

	if rewriteFrontmatter {
		rendered, err := vault.RenderNote(fm, body)
		if err != nil {
			log.Warn("render frontmatter for %s: %v", path, err)
		} else if err := r.Vault.WriteNote(path, rendered); err != nil {
			log.Warn("write back generated id for %s: %v", path, err)
		}
	}

	return nil
}

func mergeTags(frontmatterTags, inlineTags []string) []string {
	seen := make(map[string]bool, len(frontmatterTags)+len(inlineTags))
	out := make([]string, 0, len(frontmatterTags)+len(inlineTags))
	for _, t := range frontmatterTags {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range inlineTags {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// walkMarkdown walks the vault root, returning vault-relative paths of
// every *.md file, excluding .obsidian/.
func (r *Reconciler) walkMarkdown(since time.Time) ([]string, error) {
	root := r.Vault.Root()
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".obsidian" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".md") {
			return nil
		}
		if !since.IsZero() {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if !info.ModTime().After(since) {
				return nil
			}
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile: walk vault: %w", err)
	}
	return paths, nil
}

// Reconcile runs startup reconciliation: syncs every *.md file whose
// mtime is after the persisted last_sync_time (all files on first
// run), then advances last_sync_time to now.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	return r.runScan(ctx, "startup")
}

// FullSync is a superset of Reconcile triggered explicitly (spec.md
// §4.10: "a superset of startup reconciliation"); it ignores
// last_sync_time and syncs every *.md file.
func (r *Reconciler) FullSync(ctx context.Context) error {
	return r.runScan(ctx, "full")
}

func (r *Reconciler) runScan(ctx context.Context, syncType string) error {
	if !r.tryStart(syncType) {
		return fmt.Errorf("reconcile: %s sync already in progress", syncType)
	}
	var runErr error
	defer r.finish(runErr)

	since := time.Time{}
	if syncType == "startup" {
		since = r.lastSyncTime(ctx)
	}

	paths, err := r.walkMarkdown(since)
	if err != nil {
		runErr = err
		return err
	}

	for _, path := range paths {
		if err := r.SyncNote(ctx, path); err != nil {
			log.Error("sync note %s: %v", path, err)
			r.recordProcessed(false)
			continue
		}
		r.recordProcessed(true)
	}

	now := time.Now().UTC()
	if err := r.setLastSyncTime(ctx, now); err != nil {
		log.Warn("persist last_sync_time: %v", err)
	}
	return nil
}

func (r *Reconciler) lastSyncTime(ctx context.Context) time.Time {
	raw, found, err := r.SQL.GetMeta(ctx, lastSyncMetaKey)
	if err != nil || !found {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (r *Reconciler) setLastSyncTime(ctx context.Context, t time.Time) error {
	return r.SQL.SetMeta(ctx, lastSyncMetaKey, t.Format(time.RFC3339Nano))
}

// --- Real-time watcher ---

// Watch starts a filesystem watcher over the vault root, invoking
// SyncNote on create/write events after debouncing rapid saves
// (spec.md §4.10 "real-time" mode). Non-blocking; runs until ctx is
// cancelled or Stop is called.
func (r *Reconciler) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("reconcile: create watcher: %w", err)
	}

	root := r.Vault.Root()
	if err := addWatchRecursive(watcher, root); err != nil {
		log.Warn("watch vault root %s: %v", root, err)
	}

	r.mu.Lock()
	r.watcher = watcher
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.watchLoop(ctx)
	return nil
}

func addWatchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".obsidian" {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
}

// Stop halts the watcher started by Watch.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	watcher, stopCh, doneCh := r.watcher, r.stopCh, r.doneCh
	r.watcher = nil
	r.mu.Unlock()

	if watcher == nil {
		return
	}
	close(stopCh)
	<-doneCh
	if err := watcher.Close(); err != nil {
		log.Error("close watcher: %v", err)
	}
}

func (r *Reconciler) watchLoop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			r.handleEvent(event)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			log.Error("watcher error: %v", err)
		case <-ticker.C:
			r.processDebounced(ctx)
		}
	}
}

func (r *Reconciler) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".md") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	r.debounceMu.Lock()
	r.debounceMap[event.Name] = time.Now()
	r.debounceMu.Unlock()
}

func (r *Reconciler) processDebounced(ctx context.Context) {
	r.debounceMu.Lock()
	now := time.Now()
	var settled []string
	for path, t := range r.debounceMap {
		if now.Sub(t) >= r.debounceDur {
			settled = append(settled, path)
			delete(r.debounceMap, path)
		}
	}
	r.debounceMu.Unlock()

	root := r.Vault.Root()
	for _, abs := range settled {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if err := r.SyncNote(ctx, rel); err != nil {
			log.Error("real-time sync %s: %v", rel, err)
		}
	}
}
