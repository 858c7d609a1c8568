package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileStore keeps encrypted credential fields in a single JSON file.
type FileStore struct {
	Accounts map[string]map[string]string `json:"accounts"`
	mu       sync.Mutex
	path     string
	observers
}

// NewFileStore loads the store from path, starting empty if the file does
// not exist yet.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		Accounts: make(map[string]map[string]string),
		path:     path,
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(fs); err != nil {
		return nil, fmt.Errorf("decode credential store: %w", err)
	}
	if fs.Accounts == nil {
		fs.Accounts = make(map[string]map[string]string)
	}
	return fs, nil
}

// save writes the store back to disk. Callers must hold fs.mu.
func (fs *FileStore) save() error {
	f, err := os.Create(fs.path)
	if err != nil {
		return fmt.Errorf("write credential store: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(fs)
}

func (fs *FileStore) Get(_ context.Context, accountID, field string) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fields, ok := fs.Accounts[accountID]
	if !ok {
		return "", ErrAccountNotFound
	}
	ct, ok := fields[field]
	if !ok {
		return "", ErrFieldNotFound
	}
	return ct, nil
}

func (fs *FileStore) Put(_ context.Context, accountID, field, ciphertext string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fields, ok := fs.Accounts[accountID]
	if !ok {
		fields = make(map[string]string)
		fs.Accounts[accountID] = fields
	}
	fields[field] = ciphertext
	return fs.save()
}

func (fs *FileStore) Fields(_ context.Context, accountID string) (map[string]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fields, ok := fs.Accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

func (fs *FileStore) PutAll(_ context.Context, accountID string, fields map[string]string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	replacement := make(map[string]string, len(fields))
	for k, v := range fields {
		replacement[k] = v
	}
	fs.Accounts[accountID] = replacement
	return fs.save()
}

func (fs *FileStore) Remove(_ context.Context, accountID string) error {
	fs.mu.Lock()
	_, existed := fs.Accounts[accountID]
	delete(fs.Accounts, accountID)
	err := fs.save()
	fs.mu.Unlock()
	if err != nil {
		return err
	}
	if existed {
		fs.notifyRemoved(accountID)
	}
	return nil
}
