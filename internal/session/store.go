// Package session persists per-user session documents on disk.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/oaiwrapper/oaiwrapper/internal/model"
	"github.com/oaiwrapper/oaiwrapper/pkg/logger"
)

const documentName = "sessions.json"

var (
	// ErrInvalidUserID is returned for IDs that cannot name a directory.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrCorruptDocument is returned when a document cannot be parsed in any
	// known shape.
	ErrCorruptDocument = errors.New("corrupt session document")
)

// FileStore keeps one JSON document per user under basePath/<user>/.
type FileStore struct {
	basePath string
	logger   *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath string, log *logger.Logger) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("session base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{
		basePath: basePath,
		logger:   log,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// Path returns the document path for userID.
func (f *FileStore) Path(userID string) (string, error) {
	if err := validateUserID(userID); err != nil {
		return "", err
	}
	return filepath.Join(f.basePath, userID, documentName), nil
}

// Load reads the user's document. A missing file yields an empty document;
// legacy layouts are upgraded in memory.
func (f *FileStore) Load(ctx context.Context, userID string) (*model.SessionDocument, error) {
	path, err := f.Path(userID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := f.userLock(userID)
	lock.Lock()
	data, err := os.ReadFile(path)
	lock.Unlock()

	if errors.Is(err, os.ErrNotExist) {
		return model.NewSessionDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session document: %w", err)
	}

	dec, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	if dec.legacy != "" {
		f.logger.Warn("upgraded legacy session document",
			zap.String("username", userID),
			zap.String("shape", dec.legacy),
		)
	}
	if len(dec.dropped) > 0 {
		f.logger.Warn("dropped malformed session document fields",
			zap.String("username", userID),
			zap.Strings("fields", dec.dropped),
		)
	}
	return dec.doc, nil
}

// Save replaces the user's document. The new content is written to a
// temporary file in the same directory and renamed over the old one.
func (f *FileStore) Save(ctx context.Context, userID string, doc *model.SessionDocument) error {
	path, err := f.Path(userID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc.Version = model.DocumentVersion
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode session document: %w", err)
	}

	lock := f.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create user dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, documentName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace session document: %w", err)
	}
	committed = true

	f.logger.Debug("session document saved",
		zap.String("username", userID),
		zap.Int("conversations", len(doc.Conversations)),
		zap.String("model", doc.SelectedModel),
	)
	return nil
}

func (f *FileStore) userLock(userID string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	lock, ok := f.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		f.locks[userID] = lock
	}
	return lock
}

func validateUserID(userID string) error {
	if userID == "" || userID == "." || userID == ".." ||
		strings.ContainsAny(userID, `/\`) || strings.ContainsRune(userID, 0) {
		return ErrInvalidUserID
	}
	return nil
}
