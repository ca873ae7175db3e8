// Package daemon runs the background session: it watches the local mirror
// for edits, pushes changes through the syncer, runs the notification
// scheduler, and relays state to the status server.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/richardjkendall/todoapp/internal/localfile"
	"github.com/richardjkendall/todoapp/internal/notify"
	"github.com/richardjkendall/todoapp/internal/status"
	"github.com/richardjkendall/todoapp/internal/syncer"
)

// Config holds daemon configuration.
type Config struct {
	// DebounceInterval is how long a file change sits in the queue before
	// it is processed. Batches rapid editor writes together.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 100 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon coordinates the mirror watcher, syncer, and notification scheduler.
type Daemon struct {
	sy         *syncer.Syncer
	scheduler  *notify.Scheduler
	statusSrv  *status.Server
	mirrorPath string
	config     *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon. scheduler and statusSrv may be nil; the mirror
// watcher and syncer are always required.
func New(sy *syncer.Syncer, scheduler *notify.Scheduler, statusSrv *status.Server, mirrorPath string, config *Config) (*Daemon, error) {
	if sy == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if mirrorPath == "" {
		return nil, fmt.Errorf("mirrorPath cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 100 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		sy:          sy,
		scheduler:   scheduler,
		statusSrv:   statusSrv,
		mirrorPath:  mirrorPath,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins watching and blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	dir := filepath.Dir(d.mirrorPath)
	if err := d.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	d.config.Logger.Printf("Watching: %s", d.mirrorPath)

	d.sy.OnStatusChange = d.onSyncStatus

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()

	if d.scheduler != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.scheduler.Run(d.ctx)
		}()
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop flushes pending writes and shuts the daemon down.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}
	d.wg.Wait()

	// Push anything the debounce was still holding.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.sy.Flush(flushCtx); err != nil {
		d.config.Logger.Printf("Final flush failed: %v", err)
	}

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// onSyncStatus relays sync state transitions to the status server.
func (d *Daemon) onSyncStatus(st syncer.Status) {
	if d.statusSrv == nil {
		return
	}
	d.statusSrv.BroadcastSyncStatus(d.sy)
	if st == syncer.StatusConflict {
		d.statusSrv.BroadcastConflict(d.sy.ConflictInfo())
	}
}

// watchFileEvents queues mirror changes for debounced processing.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(d.mirrorPath) {
				continue
			}
			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges reloads the mirror once its change has settled and
// hands the collection to the syncer. A save the syncer itself just
// committed round-trips here with an unchanged fingerprint and is dropped
// by the syncer, so the watch loop terminates.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	now := time.Now()
	var ready []string
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	if len(ready) == 0 {
		return
	}

	col, err := localfile.Load(d.mirrorPath)
	if err != nil {
		d.config.Logger.Printf("Error reloading mirror: %v", err)
		return
	}
	d.sy.Save(col, syncer.SaveOptions{})
}
