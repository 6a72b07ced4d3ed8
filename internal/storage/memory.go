package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "eventsched/pkg/logx"
)

const journalCompactEvery = 1000

// memStore keeps documents in maps. With the file driver it also persists:
//   - <prefix>.snapshot.json (periodic snapshot)
//   - <prefix>.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type memStore struct {
	log logx.Logger

	mu     sync.Mutex
	data   map[string]map[string]json.RawMessage
	closed bool

	snapshotPath string
	journal      *os.File
	writes       int
}

type journalRecord struct {
	Op         string          `json:"op"` // "put" | "del"
	Collection string          `json:"c"`
	ID         string          `json:"id"`
	Doc        json.RawMessage `json:"doc,omitempty"`
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memStore{log: logx.Nop(), data: map[string]map[string]json.RawMessage{}}
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &memStore{
		log:          log,
		data:         map[string]map[string]json.RawMessage{},
		snapshotPath: prefix + ".snapshot.json",
	}
	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	journalPath := prefix + ".journal.jsonl"
	if err := s.replayJournal(journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("replay journal: %w", err)
	}
	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	return s, nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *memStore) Create(ctx context.Context, collection, id string, record any) error {
	_ = ctx
	if err := checkKey(collection, id); err != nil {
		return err
	}
	doc, err := encodeRecord(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	coll := s.coll(collection)
	if _, ok := coll[id]; ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrExists)
	}
	coll[id] = doc
	return s.appendLocked(journalRecord{Op: "put", Collection: collection, ID: id, Doc: doc})
}

func (s *memStore) Update(ctx context.Context, collection, id string, patch Patch) error {
	_ = ctx
	if err := checkKey(collection, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	coll := s.coll(collection)
	cur, ok := coll[id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	doc, err := mergePatch(cur, patch)
	if err != nil {
		return err
	}
	coll[id] = doc
	return s.appendLocked(journalRecord{Op: "put", Collection: collection, ID: id, Doc: doc})
}

func (s *memStore) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	doc, ok := s.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return append(json.RawMessage(nil), doc...), nil
}

func (s *memStore) Delete(ctx context.Context, collection, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	coll := s.data[collection]
	if _, ok := coll[id]; !ok {
		return nil
	}
	delete(coll, id)
	return s.appendLocked(journalRecord{Op: "del", Collection: collection, ID: id})
}

func (s *memStore) Query(ctx context.Context, collection string, pred Predicate) ([]json.RawMessage, error) {
	_ = ctx
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	coll := s.data[collection]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	docs := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, append(json.RawMessage(nil), coll[id]...))
	}
	s.mu.Unlock()

	// filter outside the lock so slow predicates don't block writers
	return filterDocs(docs, pred), nil
}

func filterDocs(docs []json.RawMessage, pred Predicate) []json.RawMessage {
	if pred == nil {
		return docs
	}
	n := 0
	for _, d := range docs {
		if pred(d) {
			docs[n] = d
			n++
		}
	}
	return docs[:n]
}

func (s *memStore) coll(name string) map[string]json.RawMessage {
	c, ok := s.data[name]
	if !ok {
		c = map[string]json.RawMessage{}
		s.data[name] = c
	}
	return c
}

// ---- file persistence ----

func (s *memStore) appendLocked(r journalRecord) error {
	if s.journal == nil {
		return nil
	}
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.writes%journalCompactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *memStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *memStore) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]map[string]json.RawMessage
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for c, docs := range m {
		if docs == nil {
			continue
		}
		s.data[c] = docs
	}
	return nil
}

func (s *memStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// torn tail write; skip
			continue
		}
		switch r.Op {
		case "put":
			s.coll(r.Collection)[r.ID] = r.Doc
		case "del":
			delete(s.coll(r.Collection), r.ID)
		}
	}
	return sc.Err()
}
