// Package session_store is the local persistence layer of the widget: a
// key-value store scoped by session id, holding the persisted identity and
// contact fields plus cached per-category document option lists. It is the
// only persistence layer; keys are cleared on session end.
package session_store

import (
	"fmt"
	"github.com/P4ST4S/session-sdk-demo-sub000/common_models"
	"github.com/P4ST4S/session-sdk-demo-sub000/utils"
	"github.com/ztrue/tracerr"
	"strings"
	"sync"
)

var (
	// ErrorStorageClosed is returned when trying to use a storage which is not open
	ErrorStorageClosed = utils.NewVerifError("STORAGE_CLOSED", "storage closed")
	// ErrorStorageAlreadyInitialized is returned when trying to initialize a storage which has already been initialized
	ErrorStorageAlreadyInitialized = utils.NewVerifError("STORAGE_ALREADY_INITIALIZED", "storage already initialized")
	// ErrorStorageNotInitialized is returned when trying to use a storage before initializing it
	ErrorStorageNotInitialized = utils.NewVerifError("STORAGE_NOT_INITIALIZED", "storage not initialized")
)

// Database is the interface that must be implemented by the storage backends.
type Database interface {
	Initialize() error
	Close() error
	// Read returns nil with no error when the key is absent.
	Read(key string) ([]byte, error)
	Write(key string, value []byte) error
	Delete(key string) error
	// ClearSession removes every key scoped to the given session id.
	ClearSession(sessionId string) error
}

func KeyUserInput(sessionId string) string {
	return "userInput_" + sessionId
}

func KeyContactInfo(sessionId string) string {
	return "contactInfo_" + sessionId
}

func KeyCategoryOptions(category common_models.DocumentCategory, sessionId string) string {
	return fmt.Sprintf("%sOptions_%s", category, sessionId)
}

// keyBelongsToSession matches the exact set of key shapes this package
// builds. Session ids are opaque backend-issued strings and may themselves
// contain underscores, so a plain suffix match could capture another
// session's keys.
func keyBelongsToSession(key string, sessionId string) bool {
	if key == KeyUserInput(sessionId) || key == KeyContactInfo(sessionId) {
		return true
	}
	category, found := strings.CutSuffix(key, "Options_"+sessionId)
	return found && common_models.KnownCategory(common_models.DocumentCategory(category))
}

// MemoryStorage is an implementation of Database which keeps the data in
// memory only. Useful for tests and for hosts that manage persistence
// themselves.
type MemoryStorage struct {
	initialized bool
	closed      bool
	records     map[string][]byte
	lock        sync.RWMutex
}

func (storage *MemoryStorage) Initialize() error {
	storage.lock.Lock()
	defer storage.lock.Unlock()
	if storage.initialized {
		return tracerr.Wrap(ErrorStorageAlreadyInitialized)
	}
	storage.initialized = true
	storage.records = make(map[string][]byte)
	return nil
}

func (storage *MemoryStorage) Close() error {
	storage.lock.Lock()
	defer storage.lock.Unlock()
	storage.closed = true
	return nil
}

func (storage *MemoryStorage) check() error {
	if !storage.initialized {
		return tracerr.Wrap(ErrorStorageNotInitialized)
	}
	if storage.closed {
		return tracerr.Wrap(ErrorStorageClosed)
	}
	return nil
}

func (storage *MemoryStorage) Read(key string) ([]byte, error) {
	storage.lock.RLock()
	defer storage.lock.RUnlock()
	if err := storage.check(); err != nil {
		return nil, err
	}
	value, ok := storage.records[key]
	if !ok {
		return nil, nil
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, nil
}

func (storage *MemoryStorage) Write(key string, value []byte) error {
	storage.lock.Lock()
	defer storage.lock.Unlock()
	if err := storage.check(); err != nil {
		return err
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	storage.records[key] = copied
	return nil
}

func (storage *MemoryStorage) Delete(key string) error {
	storage.lock.Lock()
	defer storage.lock.Unlock()
	if err := storage.check(); err != nil {
		return err
	}
	delete(storage.records, key)
	return nil
}

func (storage *MemoryStorage) ClearSession(sessionId string) error {
	storage.lock.Lock()
	defer storage.lock.Unlock()
	if err := storage.check(); err != nil {
		return err
	}
	for key := range storage.records {
		if keyBelongsToSession(key, sessionId) {
			delete(storage.records, key)
		}
	}
	return nil
}
