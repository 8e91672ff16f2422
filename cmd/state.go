package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	stateDirName  = ".ragchat"
	stateFileName = "current_session"
)

// stateFilePath returns the path of the current-session state file,
// creating ~/.ragchat if it does not exist.
func stateFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}

	dir := filepath.Join(home, stateDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}
	return filepath.Join(dir, stateFileName), nil
}

// loadCurrentSessionID reads the persisted session ID. A missing or
// empty state file returns "", not an error.
func loadCurrentSessionID() (string, error) {
	path, err := stateFilePath()
	if err != nil {
		return "", err
	}

	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return "", fmt.Errorf("locking state file: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading state file: %w", err)
	}

	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid session ID in %s: %w", path, err)
	}
	return id, nil
}

// saveCurrentSessionID writes the session ID to a temp file and renames
// it over the state file while holding the file lock. Concurrent ragchat
// processes never observe a partial write.
func saveCurrentSessionID(id string) error {
	path, err := stateFilePath()
	if err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking state file: %w", err)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), stateFileName+"-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	if _, err := tmp.WriteString(id); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// currentOrNewSession resumes the persisted session or starts a new one,
// reporting whether an existing session was resumed. A failed save keeps
// the new session for this process only.
func currentOrNewSession() (string, bool, error) {
	id, err := loadCurrentSessionID()
	if err != nil {
		return "", false, err
	}
	if id != "" {
		return id, true, nil
	}

	id = uuid.NewString()
	if err := saveCurrentSessionID(id); err != nil {
		slog.Warn("failed to save session state", "error", err)
	}
	return id, false, nil
}
