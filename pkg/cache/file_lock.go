package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileLocker is a lease lock shared by every process that sees the same
// directory. Each key is one file holding the owner token and the expiry. A
// lease file appears complete or not at all, and an expired lease is taken over.
type FileLocker struct {
	dir string

	mu     sync.Mutex
	tokens map[string]string
	token  func() string
	now    func() time.Time
}

type fileLease struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewFileLocker keeps lease files under dir, creating it on first use.
func NewFileLocker(dir string) *FileLocker {
	return &FileLocker{
		dir:    dir,
		tokens: make(map[string]string),
		token:  uuid.NewString,
		now:    time.Now,
	}
}

var lockFileName = strings.NewReplacer(":", "_", "/", "_", string(filepath.Separator), "_")

func (l *FileLocker) path(key string) string {
	return filepath.Join(l.dir, lockFileName.Replace(key)+".lock")
}

func (l *FileLocker) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return false, fmt.Errorf("lock dir %s: %w", l.dir, err)
	}
	token := l.token()
	path := l.path(key)

	acquired, err := l.create(path, fileLease{Owner: token, ExpiresAt: l.now().Add(ttl)})
	if err != nil || acquired {
		return l.remember(key, token, acquired, err)
	}

	cur, err := readLease(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Released between our attempt and the read.
	case err == nil && l.now().Before(cur.ExpiresAt):
		return false, nil
	default:
		if terr := l.takeOver(path, token, cur); terr != nil {
			return false, terr
		}
	}

	acquired, err = l.create(path, fileLease{Owner: token, ExpiresAt: l.now().Add(ttl)})
	return l.remember(key, token, acquired, err)
}

func (l *FileLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !ok {
		return ErrLockNotHeld
	}

	path := l.path(key)
	cur, err := readLease(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrLockNotHeld
	}
	if err != nil {
		return fmt.Errorf("unlock %s: %w", key, err)
	}
	if cur.Owner != token {
		return ErrLockNotHeld
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unlock %s: %w", key, err)
	}
	return nil
}

// create publishes the lease with a hard link from a complete temp file, which
// fails when path already exists.
func (l *FileLocker) create(path string, lease fileLease) (bool, error) {
	data, err := json.Marshal(lease)
	if err != nil {
		return false, err
	}
	tmp, err := os.CreateTemp(l.dir, ".lease.*.tmp")
	if err != nil {
		return false, fmt.Errorf("lease temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, werr := tmp.Write(data)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return false, fmt.Errorf("lease temp: %w", werr)
	}

	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("lease %s: %w", path, err)
	}
	return true, nil
}

// takeOver moves a stale lease aside. If another process replaced the lease in
// the meantime, the fresh one is moved back and left alone.
func (l *FileLocker) takeOver(path, token string, stale fileLease) error {
	aside := path + "." + token + ".stale"
	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("take over %s: %w", path, err)
	}
	defer os.Remove(aside)

	moved, err := readLease(aside)
	if err == nil && moved.Owner != stale.Owner && l.now().Before(moved.ExpiresAt) {
		_ = os.Link(aside, path)
	}
	return nil
}

func (l *FileLocker) remember(key, token string, acquired bool, err error) (bool, error) {
	if err != nil || !acquired {
		return false, err
	}
	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

func readLease(path string) (fileLease, error) {
	var lease fileLease
	data, err := os.ReadFile(path)
	if err != nil {
		return lease, err
	}
	if err := json.Unmarshal(data, &lease); err != nil {
		return lease, fmt.Errorf("lease %s: %w", path, err)
	}
	return lease, nil
}
