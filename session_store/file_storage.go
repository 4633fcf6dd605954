package session_store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"github.com/P4ST4S/session-sdk-demo-sub000/utils"
	"github.com/allan-simon/go-singleinstance"
	"github.com/ztrue/tracerr"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/scrypt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

var (
	// ErrorStorageLocked is returned when another widget instance is already using this storage directory
	ErrorStorageLocked = utils.NewVerifError("STORAGE_LOCKED", "another instance is already using this storage directory")
	// ErrorStorageNoSecret is returned when no session secret is given to derive the storage key
	ErrorStorageNoSecret = utils.NewVerifError("STORAGE_NO_SECRET", "a session secret is required to encrypt the storage")
	// ErrorStorageCorrupted is returned when the storage file cannot be decrypted or decoded
	ErrorStorageCorrupted = utils.NewVerifError("STORAGE_CORRUPTED", "storage file cannot be decrypted")
)

const storageFileName = "session_storage"
const gcmNonceSize = 12

type storageRecords struct {
	Records map[string][]byte `bson:"records"`
}

// FileStorage is an implementation of Database which persists records on the
// file system, encrypted at rest. The encryption key is derived from the
// session secret with scrypt; only one instance may hold a storage directory
// at a time.
type FileStorage struct {
	StorageDir    string
	SessionSecret string

	storageLock *os.File
	key         []byte
	records     map[string][]byte
	fileLock    sync.Mutex
}

func (f *FileStorage) Initialize() error {
	f.fileLock.Lock()
	defer f.fileLock.Unlock()
	if f.storageLock != nil {
		return tracerr.Wrap(ErrorStorageAlreadyInitialized)
	}
	if f.SessionSecret == "" {
		return tracerr.Wrap(ErrorStorageNoSecret)
	}

	err := os.MkdirAll(f.StorageDir, 0700)
	if err != nil {
		return tracerr.Wrap(err)
	}
	lockPath := filepath.Join(f.StorageDir, "lock")
	storageLock, err := singleinstance.CreateLockFile(lockPath)
	if err != nil {
		if (runtime.GOOS == "windows" && err.Error() == "remove "+lockPath+": The process cannot access the file because it is being used by another process.") ||
			err.Error() == "resource temporarily unavailable" {
			return tracerr.Wrap(ErrorStorageLocked)
		} else {
			return tracerr.Wrap(err)
		}
	}
	f.storageLock = storageLock

	err = f.deriveKey()
	if err != nil {
		return tracerr.Wrap(err)
	}
	err = f.load()
	if err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}

func (f *FileStorage) Close() error {
	// ensure any write which is already in flight finishes before closing
	f.fileLock.Lock()
	defer f.fileLock.Unlock()
	if f.storageLock == nil {
		return nil
	}
	err := f.storageLock.Close()
	if err != nil {
		return tracerr.Wrap(err)
	}
	f.storageLock = nil
	f.records = nil
	return nil
}

func (f *FileStorage) deriveKey() error {
	saltPath := filepath.Join(f.StorageDir, "salt")
	salt, err := os.ReadFile(saltPath)
	if os.IsNotExist(err) {
		salt = make([]byte, 16)
		_, err = rand.Read(salt)
		if err != nil {
			return tracerr.Wrap(err)
		}
		err = os.WriteFile(saltPath, salt, 0600)
	}
	if err != nil {
		return tracerr.Wrap(err)
	}
	key, err := scrypt.Key([]byte(f.SessionSecret), salt, 16384, 8, 1, 32)
	if err != nil {
		return tracerr.Wrap(err)
	}
	f.key = key
	return nil
}

func (f *FileStorage) load() error {
	f.records = make(map[string][]byte)
	encrypted, err := os.ReadFile(filepath.Join(f.StorageDir, storageFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return tracerr.Wrap(err)
	}
	if len(encrypted) == 0 {
		return nil
	}
	decrypted, err := f.decrypt(encrypted)
	if err != nil {
		return tracerr.Wrap(ErrorStorageCorrupted.AddDetails(err.Error()))
	}
	var decoded storageRecords
	err = bson.Unmarshal(decrypted, &decoded)
	if err != nil {
		return tracerr.Wrap(ErrorStorageCorrupted.AddDetails(err.Error()))
	}
	if decoded.Records != nil {
		f.records = decoded.Records
	}
	return nil
}

func (f *FileStorage) persist() error {
	encoded, err := bson.Marshal(storageRecords{Records: f.records})
	if err != nil {
		return tracerr.Wrap(err)
	}
	encrypted, err := f.encrypt(encoded)
	if err != nil {
		return tracerr.Wrap(err)
	}

	fileName := filepath.Join(f.StorageDir, storageFileName)
	now := strings.Replace(time.Now().Format("20060102150405.000"), ".", "", 1)
	tempFileName := fileName + "_temp_" + now

	// write in 2 steps for atomic write
	err = os.WriteFile(tempFileName, encrypted, 0600)
	if err != nil {
		return tracerr.Wrap(err)
	}
	err = os.Rename(tempFileName, fileName)
	if err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}

func (f *FileStorage) encrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(f.key)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	nonce := make([]byte, gcmNonceSize)
	_, err = rand.Read(nonce)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return gcm.Seal(nonce, nonce, data, nil), nil
}

func (f *FileStorage) decrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(f.key)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if len(data) < gcmNonceSize {
		return nil, tracerr.Wrap(ErrorStorageCorrupted)
	}
	plain, err := gcm.Open(nil, data[:gcmNonceSize], data[gcmNonceSize:], nil)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return plain, nil
}

func (f *FileStorage) Read(key string) ([]byte, error) {
	f.fileLock.Lock()
	defer f.fileLock.Unlock()
	if f.storageLock == nil {
		return nil, tracerr.Wrap(ErrorStorageClosed)
	}
	value, ok := f.records[key]
	if !ok {
		return nil, nil
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, nil
}

func (f *FileStorage) Write(key string, value []byte) error {
	f.fileLock.Lock()
	defer f.fileLock.Unlock()
	if f.storageLock == nil {
		return tracerr.Wrap(ErrorStorageClosed)
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	f.records[key] = copied
	return f.persist()
}

func (f *FileStorage) Delete(key string) error {
	f.fileLock.Lock()
	defer f.fileLock.Unlock()
	if f.storageLock == nil {
		return tracerr.Wrap(ErrorStorageClosed)
	}
	delete(f.records, key)
	return f.persist()
}

func (f *FileStorage) ClearSession(sessionId string) error {
	f.fileLock.Lock()
	defer f.fileLock.Unlock()
	if f.storageLock == nil {
		return tracerr.Wrap(ErrorStorageClosed)
	}
	for key := range f.records {
		if keyBelongsToSession(key, sessionId) {
			delete(f.records, key)
		}
	}
	return f.persist()
}
