package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	memoriesFile = "memories.jsonl"
	indexFile    = "index.json"
)

// Store is the Memory Store: memories.jsonl is the source of truth (appended
// on Store, rewritten whole by Delete and ApplyRetentionPolicy), index.json
// is a derived, rebuildable tag/keyword lookup. All
// mutations serialize on a single lock — the store does not support
// concurrent mutators across processes (§4.9).
type Store struct {
	dir               string
	defaultExpiryDays int
	embedder          Embedder

	mu sync.Mutex
}

// New builds a Store rooted at dir. defaultExpiryDays is used for store
// calls that omit an explicit expires_in_days; 0 means "never expires".
func New(dir string, defaultExpiryDays int, embedder Embedder) *Store {
	return &Store{dir: dir, defaultExpiryDays: defaultExpiryDays, embedder: embedder}
}

func (s *Store) memoriesPath() string { return filepath.Join(s.dir, memoriesFile) }
func (s *Store) indexPath() string    { return filepath.Join(s.dir, indexFile) }

// Store appends a new memory record and refreshes the index.
func (s *Store) Store(memoryType, content string, metadata map[string]any, tags []string, expiresInDays *int) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{
		ID:        uuid.NewString(),
		Type:      memoryType,
		Content:   content,
		Metadata:  metadata,
		Tags:      tags,
		CreatedAt: time.Now().UTC(),
	}
	days := s.defaultExpiryDays
	if expiresInDays != nil {
		days = *expiresInDays
	}
	if days > 0 {
		exp := rec.CreatedAt.AddDate(0, 0, days)
		rec.ExpiresAt = &exp
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Record{}, fmt.Errorf("creating memory directory: %w", err)
	}
	f, err := os.OpenFile(s.memoriesPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Record{}, fmt.Errorf("opening memories file: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("marshaling memory record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return Record{}, fmt.Errorf("appending memory record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return Record{}, fmt.Errorf("fsyncing memories file: %w", err)
	}

	if err := s.rebuildIndexLocked(); err != nil {
		slog.Warn("memory: failed to rebuild index after store", "error", err)
	}
	return rec, nil
}

// loadLocked streams memories.jsonl, skipping malformed lines.
func (s *Store) loadLocked() ([]Record, error) {
	f, err := os.Open(s.memoriesPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening memories file: %w", err)
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			slog.Warn("memory: skipping malformed record", "error", err)
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("scanning memories file: %w", err)
	}
	return out, nil
}

func (s *Store) rebuildIndexLocked() error {
	records, err := s.loadLocked()
	if err != nil {
		return err
	}
	idx := newIndex()
	for _, r := range records {
		for _, tag := range r.Tags {
			idx.Tags[tag] = append(idx.Tags[tag], r.ID)
		}
		for _, kw := range tokenize(r.Content) {
			idx.Keywords[kw] = append(idx.Keywords[kw], r.ID)
		}
	}
	return writeJSONAtomic(s.indexPath(), idx)
}

func writeJSONAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// Retrieve filters by non-expired, then explicit type/tag filters, then
// case-insensitive keyword containment in content+metadata, sorted by
// created_at desc and truncated to limit (§4.9).
func (s *Store) Retrieve(q Query) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var out []Record
	for _, r := range records {
		if r.expired(now) {
			continue
		}
		if q.Type != "" && r.Type != q.Type {
			continue
		}
		if len(q.Tags) > 0 && !hasAnyTag(r.Tags, q.Tags) {
			continue
		}
		if q.Text != "" && !containsKeyword(r, q.Text) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func hasAnyTag(recordTags, wanted []string) bool {
	set := toSet(recordTags)
	for _, w := range wanted {
		if set[w] {
			return true
		}
	}
	return false
}

func containsKeyword(r Record, text string) bool {
	needle := strings.ToLower(text)
	if strings.Contains(strings.ToLower(r.Content), needle) {
		return true
	}
	for _, v := range r.Metadata {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

type scored struct {
	rec   Record
	score float64
}

// RetrieveBySimilarity ranks non-expired records against queryText, either
// by Jaccard over tokenized content with a small per-tag boost (default),
// or by cosine similarity over an embedding fetched through s.embedder
// (use_embeddings); results below threshold are dropped, the rest sorted
// desc and truncated to limit (§4.9).
func (s *Store) RetrieveBySimilarity(ctx context.Context, queryText string, limit int, threshold float64, useEmbeddings bool) ([]Record, error) {
	s.mu.Lock()
	records, err := s.loadLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var queryVec []float64
	if useEmbeddings && s.embedder != nil {
		queryVec, err = s.embedder.Embed(ctx, queryText)
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
	}
	queryWords := tokenize(queryText)

	var candidates []scored
	for _, r := range records {
		if r.expired(now) {
			continue
		}
		var sim float64
		if useEmbeddings && s.embedder != nil {
			vec, err := s.embedder.Embed(ctx, r.Content)
			if err != nil {
				slog.Warn("memory: failed to embed candidate, skipping", "memory_id", r.ID, "error", err)
				continue
			}
			sim = cosineSimilarity(queryVec, vec)
		} else {
			sim = jaccardSimilarity(queryText, r.Content) + tagBoost(queryWords, r.Tags)
		}
		if sim < threshold {
			continue
		}
		candidates = append(candidates, scored{rec: r, score: sim})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]Record, len(candidates))
	for i, c := range candidates {
		out[i] = c.rec
	}
	return out, nil
}

// Delete rewrites memories.jsonl without the given id and rebuilds the index.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.loadLocked()
	if err != nil {
		return err
	}
	kept := records[:0:0]
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if err := s.rewriteLocked(kept); err != nil {
		return err
	}
	return s.rebuildIndexLocked()
}

// ApplyRetentionPolicy rewrites memories.jsonl keeping only non-expired
// entries, returning how many were dropped.
func (s *Store) ApplyRetentionPolicy() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.loadLocked()
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	kept := records[:0:0]
	dropped := 0
	for _, r := range records {
		if r.expired(now) {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	if dropped == 0 {
		return 0, nil
	}
	if err := s.rewriteLocked(kept); err != nil {
		return 0, err
	}
	return dropped, s.rebuildIndexLocked()
}

func (s *Store) rewriteLocked(records []Record) error {
	dir := filepath.Dir(s.memoriesPath())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating memory directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".memories-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	w := bufio.NewWriter(tmp)
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("marshaling memory record: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("writing memory record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flushing memories file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing memories file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing memories file: %w", err)
	}
	return os.Rename(tmpPath, s.memoriesPath())
}
