package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// FileStore keeps the ledger as JSON lines in a local file
type FileStore struct {
	path string

	mu   sync.Mutex
	tail *Entry
	n    int64
	read bool
}

// NewFileStore creates a store backed by path. The file is created on first append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type fileLine struct {
	Entry
	Details json.RawMessage `json:"details"`
}

func (s *FileStore) load() error {
	if s.read {
		return nil
	}
	var last *Entry
	var n int64
	err := s.scan(func(e Entry) bool {
		entry := e
		last = &entry
		n++
		return true
	})
	if err != nil {
		return err
	}
	s.tail, s.n, s.read = last, n, true
	return nil
}

func (s *FileStore) scan(fn func(Entry) bool) error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var raw fileLine
		if err := json.Unmarshal(scanner.Bytes(), &raw); err != nil {
			return fmt.Errorf("corrupt audit line %d: %w", line, err)
		}
		details, err := DecodeDetails(raw.Details)
		if err != nil {
			return fmt.Errorf("corrupt audit line %d: %w", line, err)
		}
		e := raw.Entry
		e.Details = details
		if !fn(e) {
			return nil
		}
	}
	return scanner.Err()
}

func (s *FileStore) Tail(_ context.Context) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	if s.tail == nil {
		return nil, nil
	}
	t := *s.tail
	return &t, nil
}

func (s *FileStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}

	details, err := CanonicalDetails(entry.Details)
	if err != nil {
		return err
	}
	data, err := json.Marshal(fileLine{Entry: *entry, Details: details})
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit file: %w", err)
	}

	t := *entry
	s.tail = &t
	s.n++
	return nil
}

func (s *FileStore) List(_ context.Context, offset, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0)
	idx := 0
	err := s.scan(func(e Entry) bool {
		if idx >= offset {
			entries = append(entries, e)
		}
		idx++
		return limit <= 0 || len(entries) < limit
	})
	return entries, err
}

func (s *FileStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return 0, err
	}
	return s.n, nil
}
