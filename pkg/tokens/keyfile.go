package tokens

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// KeyFile loads HMAC key material from a file and reloads it when the file
// changes, so keys can be rotated without a restart. Editors and secret
// managers typically replace the file atomically (write + rename), so the
// watcher is added on the parent directory and events are debounced.
type KeyFile struct {
	path    string
	watcher *fsnotify.Watcher

	mu  sync.RWMutex
	key []byte
}

// WatchKeyFile reads path and starts watching it for changes. Close the
// returned KeyFile to stop the watcher.
func WatchKeyFile(path string) (*KeyFile, error) {
	key, err := readKey(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}
	kf := &KeyFile{path: path, watcher: w, key: key}
	go kf.watch()
	return kf, nil
}

// Key returns the current key material; safe for concurrent use.
func (kf *KeyFile) Key() []byte {
	kf.mu.RLock()
	defer kf.mu.RUnlock()
	return kf.key
}

// Func adapts the KeyFile to the codec's KeyFunc.
func (kf *KeyFile) Func() KeyFunc {
	return kf.Key
}

// Close stops the watcher.
func (kf *KeyFile) Close() error {
	return kf.watcher.Close()
}

func (kf *KeyFile) watch() {
	// simple debounce: remember the last relevant event, reload once stable
	var pending time.Time
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	base := filepath.Base(kf.path)
	for {
		select {
		case ev, ok := <-kf.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.Now()
			}
		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < 300*time.Millisecond {
				continue
			}
			pending = time.Time{}
			kf.reload()
		case err, ok := <-kf.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[KEYFILE] watch error: %v", err)
		}
	}
}

func (kf *KeyFile) reload() {
	key, err := readKey(kf.path)
	if err != nil {
		log.Printf("[KEYFILE] reload failed, keeping previous key: %v", err)
		return
	}
	kf.mu.Lock()
	changed := !bytes.Equal(kf.key, key)
	kf.key = key
	kf.mu.Unlock()
	if changed {
		log.Printf("[KEYFILE] signing key rotated from %s", kf.path)
	}
}

func readKey(path string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	if len(b) < 32 {
		return nil, fmt.Errorf("key file %s too short: need at least 32 bytes", path)
	}
	return b, nil
}
