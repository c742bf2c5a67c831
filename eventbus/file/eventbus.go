// Package file implements a directory-backed publisher for local development
// and testing. Each subscriber owns a spool directory; publishing drops one
// JSON record per subscriber, and a watcher delivers and deletes it once the
// handler succeeds. Files that fail to handle stay on disk for the next run.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	cqrs "github.com/vantage-obs/eventsourcing"
)

type subscriber struct {
	name    string
	handler cqrs.EventHandler
	filter  map[string]struct{}
	cancel  context.CancelFunc
}

// FileBus publishes committed events as files under a root directory.
type FileBus struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	root   string
	closed bool
	errs   chan error
	wg     sync.WaitGroup
}

var _ cqrs.Publisher = (*FileBus)(nil)

// NewFileBus constructs the bus rooted at dir.
func NewFileBus(root string) (*FileBus, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}

	return &FileBus{
		root: root,
		subs: make(map[string]*subscriber),
		errs: make(chan error, 64),
	}, nil
}

// Subscribe registers a handler with optional event-type filters. An empty
// filter list receives every event. The subscription is removed when ctx
// finishes.
func (b *FileBus) Subscribe(
	ctx context.Context,
	name string,
	handler cqrs.EventHandler,
	filteredEvents ...string,
) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return cqrs.ErrPublisherClosed
	}

	if _, exists := b.subs[name]; exists {
		return fmt.Errorf("subscriber %q already exists", name)
	}

	filter := make(map[string]struct{})
	for _, ev := range filteredEvents {
		filter[ev] = struct{}{}
	}

	subDir := filepath.Join(b.root, name)
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		return err
	}

	workerCtx, cancel := context.WithCancel(context.Background())

	s := &subscriber{
		name:    name,
		handler: handler,
		filter:  filter,
		cancel:  cancel,
	}

	b.subs[name] = s

	b.wg.Add(1)
	go b.runSubscriber(workerCtx, s, subDir)

	go func() {
		<-ctx.Done()
		b.removeSubscriber(name)
	}()

	return nil
}

// Publish writes the envelope's record to all matching subscriber
// directories. Writes go through a temp file and rename so watchers never see
// a partial record.
func (b *FileBus) Publish(ctx context.Context, envlp *cqrs.Envelope, source string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return cqrs.ErrPublisherClosed
	}

	rec, err := cqrs.EncodeRecord(envlp)
	if err != nil {
		b.reportError(err)
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		b.reportError(err)
		return err
	}

	for name, s := range b.subs {
		if len(s.filter) > 0 {
			if _, ok := s.filter[cqrs.TypeName(envlp.Event)]; !ok {
				continue
			}
		}

		dir := filepath.Join(b.root, name)
		filename := fmt.Sprintf("%020d.json", time.Now().UnixNano())
		path := filepath.Join(dir, filename)

		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			b.reportError(fmt.Errorf("subscriber %q: write event %s: %w", name, envlp.EventID, err))
			continue
		}
		if err := os.Rename(tmp, path); err != nil {
			b.reportError(fmt.Errorf("subscriber %q: publish event %s: %w", name, envlp.EventID, err))
		}
	}

	return nil
}

// Errors returns the channel where delivery failures are sent.
func (b *FileBus) Errors() <-chan error {
	return b.errs
}

// Close shuts down the bus and waits for workers.
func (b *FileBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, s := range b.subs {
		s.cancel()
	}
	b.subs = nil
	b.mu.Unlock()

	b.wg.Wait()
	close(b.errs)
	return nil
}

// runSubscriber watches the subscriber directory for new events.
func (b *FileBus) runSubscriber(ctx context.Context, s *subscriber, dir string) {
	defer b.wg.Done()

	// Crash-recovery: process any files left from a previous run.
	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			b.processFile(ctx, s, filepath.Join(dir, e.Name()))
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		b.reportError(fmt.Errorf("subscriber %q: %w", s.name, err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		b.reportError(fmt.Errorf("subscriber %q: watch %s: %w", s.name, dir, err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-watcher.Events:
			if ev.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) != 0 {
				if strings.HasSuffix(ev.Name, ".tmp") {
					continue
				}
				b.processFile(ctx, s, ev.Name)
			}

		case err := <-watcher.Errors:
			if err != nil {
				b.reportError(fmt.Errorf("subscriber %q: %w", s.name, err))
			}
		}
	}
}

// processFile reads and handles a single event file, then deletes on success.
func (b *FileBus) processFile(ctx context.Context, s *subscriber, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var rec cqrs.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		b.reportError(fmt.Errorf("subscriber %q: decode %s: %w", s.name, path, err))
		return
	}

	envlp, err := cqrs.DecodeRecord(rec)
	if err != nil {
		b.reportError(fmt.Errorf("subscriber %q: decode %s: %w", s.name, path, err))
		return
	}

	handlerCtx := cqrs.WithEnvelope(ctx, envlp)
	if err := s.handler.Handle(handlerCtx, envlp); err != nil {
		var skipped *cqrs.ErrSkippedEvent
		if !errors.As(err, &skipped) {
			b.reportError(fmt.Errorf("subscriber %q: handle %s: %w", s.name, path, err))
			return // retry on next run
		}
	}

	_ = os.Remove(path)
}

// removeSubscriber cancels and removes a subscriber.
func (b *FileBus) removeSubscriber(name string) {
	b.mu.Lock()
	s, ok := b.subs[name]
	if ok {
		delete(b.subs, name)
	}
	b.mu.Unlock()

	if ok {
		s.cancel()
	}
}

func (b *FileBus) reportError(err error) {
	select {
	case b.errs <- err:
	default:
		// Drop error if channel full
	}
}
