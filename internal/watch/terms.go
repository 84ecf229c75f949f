package watch

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/zhouzirui/emergency-hub/backend/internal/analysis/category"
	"github.com/zhouzirui/emergency-hub/backend/internal/config"
)

// TermsWatcher reloads the routing term file into a router whenever it
// changes on disk.
type TermsWatcher struct {
	path   string
	router *category.Router
	load   func(path string) (*category.Terms, error)
}

func NewTermsWatcher(path string, router *category.Router) *TermsWatcher {
	return &TermsWatcher{path: path, router: router, load: config.LoadTerms}
}

// Start watches the file's directory so editors that replace the file by
// rename are still seen. The goroutine exits with ctx.
func (w *TermsWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	target := filepath.Clean(w.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
					w.Reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[watch] terms watcher error: %v", err)
			}
		}
	}()
	return nil
}

// Reload reads the file once. A broken file keeps the current table.
func (w *TermsWatcher) Reload() bool {
	terms, err := w.load(w.path)
	if err != nil {
		log.Printf("[watch] keep current routing terms, reload of %s failed: %v", w.path, err)
		return false
	}
	w.router.Replace(terms)
	log.Printf("[watch] routing terms reloaded from %s", w.path)
	return true
}
