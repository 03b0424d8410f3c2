package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"docket/internal/document/models"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/sentinel"
)

type relKey struct {
	from, to uuid.UUID
	kind     string
}

type memoryState struct {
	docs   map[uuid.UUID]*models.Document
	byPath map[string]uuid.UUID
	rels   map[relKey]models.Relationship
	audit  []models.AuditEntry
}

// InMemoryStore is a process-local catalog. RunInTx serializes transactions
// on a single mutex and restores a snapshot when fn fails.
type InMemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   memoryState
}

// NewInMemory constructs an empty store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{st: memoryState{
		docs:   make(map[uuid.UUID]*models.Document),
		byPath: make(map[string]uuid.UUID),
		rels:   make(map[relKey]models.Relationship),
	}}
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.snapshot()
	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *InMemoryStore) snapshot() memoryState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := memoryState{
		docs:   make(map[uuid.UUID]*models.Document, len(s.st.docs)),
		byPath: make(map[string]uuid.UUID, len(s.st.byPath)),
		rels:   make(map[relKey]models.Relationship, len(s.st.rels)),
		audit:  append([]models.AuditEntry(nil), s.st.audit...),
	}
	for id, doc := range s.st.docs {
		out.docs[id] = doc.Clone()
	}
	for p, id := range s.st.byPath {
		out.byPath[p] = id
	}
	for k, rel := range s.st.rels {
		out.rels[k] = rel
	}
	return out
}

func (s *InMemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *InMemoryStore) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.st.byPath[doc.Path]; taken {
		return sentinel.ErrAlreadyExists
	}
	if _, taken := s.st.docs[doc.ID]; taken {
		return sentinel.ErrAlreadyExists
	}
	s.st.docs[doc.ID] = doc.Clone()
	s.st.byPath[doc.Path] = doc.ID
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.st.docs[doc.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Path != doc.Path {
		return sentinel.ErrConflict
	}
	s.st.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.st.docs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return doc.Clone(), nil
}

// LockByID is FindByID; RunInTx already holds the transaction mutex.
func (s *InMemoryStore) LockByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return s.FindByID(ctx, id)
}

// LockScope is a no-op: RunInTx already holds the transaction mutex.
func (s *InMemoryStore) LockScope(ctx context.Context, _, _ string) error {
	return ctx.Err()
}

func (s *InMemoryStore) FindByPath(_ context.Context, path string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.st.byPath[path]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.st.docs[id].Clone(), nil
}

func (s *InMemoryStore) ListByState(_ context.Context, state models.State, docType string) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Document
	for _, doc := range s.st.docs {
		if doc.State != state {
			continue
		}
		if docType != "" && doc.Type != docType {
			continue
		}
		out = append(out, doc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *InMemoryStore) Query(_ context.Context, f models.Filter) (*models.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := searchTerms(f.Text)
	type hit struct {
		doc  *models.Document
		rank int
	}
	var hits []hit
	for _, doc := range s.st.docs {
		if !matchesFilter(doc, f) {
			continue
		}
		rank := 0
		if len(terms) > 0 {
			rank = textRank(doc, terms)
			if rank == 0 {
				continue
			}
		}
		hits = append(hits, hit{doc: doc, rank: rank})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank > hits[j].rank
		}
		if !hits[i].doc.ModifiedAt.Equal(hits[j].doc.ModifiedAt) {
			return hits[i].doc.ModifiedAt.After(hits[j].doc.ModifiedAt)
		}
		return hits[i].doc.Path < hits[j].doc.Path
	})

	page := &models.Page{Total: len(hits), Limit: f.Limit, Offset: f.Offset, Documents: []*models.Document{}}
	for i := f.Offset; i < len(hits) && len(page.Documents) < f.Limit; i++ {
		page.Documents = append(page.Documents, hits[i].doc.Clone())
	}
	return page, nil
}

func matchesFilter(doc *models.Document, f models.Filter) bool {
	if len(f.Types) > 0 && !containsString(f.Types, doc.Type) {
		return false
	}
	if len(f.States) > 0 {
		found := false
		for _, st := range f.States {
			if st == doc.State {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Owner != "" && !strings.EqualFold(f.Owner, doc.Owner) {
		return false
	}
	if f.Tag != "" && !doc.Metadata.HasTag(f.Tag) {
		return false
	}
	if f.ModifiedAfter != nil && doc.ModifiedAt.Before(*f.ModifiedAfter) {
		return false
	}
	if f.ModifiedBefore != nil && doc.ModifiedAt.After(*f.ModifiedBefore) {
		return false
	}
	return true
}

// textRank counts term occurrences across the indexed fields. Every term
// must occur at least once.
func textRank(doc *models.Document, terms []string) int {
	haystack := strings.ToLower(ftsFieldsOf(doc).joined())
	total := 0
	for _, term := range terms {
		n := strings.Count(haystack, term)
		if n == 0 {
			return 0
		}
		total += n
	}
	return total
}

func searchTerms(text string) []string {
	var terms []string
	for _, field := range strings.Fields(strings.ToLower(text)) {
		field = strings.Trim(field, `"'`)
		if field != "" {
			terms = append(terms, field)
		}
	}
	return terms
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func (s *InMemoryStore) AddRelationship(_ context.Context, rel models.Relationship) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.docs[rel.FromID]; !ok {
		return false, sentinel.ErrNotFound
	}
	if _, ok := s.st.docs[rel.ToID]; !ok {
		return false, sentinel.ErrNotFound
	}
	key := relKey{from: rel.FromID, to: rel.ToID, kind: rel.Kind}
	if _, exists := s.st.rels[key]; exists {
		return false, nil
	}
	s.st.rels[key] = rel
	return true, nil
}

func (s *InMemoryStore) Outgoing(_ context.Context, id uuid.UUID) ([]models.Relationship, error) {
	return s.edges(func(rel models.Relationship) bool { return rel.FromID == id }), nil
}

func (s *InMemoryStore) Incoming(_ context.Context, id uuid.UUID) ([]models.Relationship, error) {
	return s.edges(func(rel models.Relationship) bool { return rel.ToID == id }), nil
}

func (s *InMemoryStore) edges(match func(models.Relationship) bool) []models.Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Relationship
	for _, rel := range s.st.rels {
		if match(rel) {
			out = append(out, rel)
		}
	}
	sortRelationships(out)
	return out
}

func (s *InMemoryStore) AppendAudit(_ context.Context, entries ...models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.audit = append(s.st.audit, entries...)
	return nil
}

func (s *InMemoryStore) AuditTrail(_ context.Context, entityID string) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AuditEntry
	for _, entry := range s.st.audit {
		if entry.EntityID == entityID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func sortRelationships(rels []models.Relationship) {
	sort.Slice(rels, func(i, j int) bool {
		if !rels[i].CreatedAt.Equal(rels[j].CreatedAt) {
			return rels[i].CreatedAt.Before(rels[j].CreatedAt)
		}
		if rels[i].FromID != rels[j].FromID {
			return rels[i].FromID.String() < rels[j].FromID.String()
		}
		if rels[i].ToID != rels[j].ToID {
			return rels[i].ToID.String() < rels[j].ToID.String()
		}
		return rels[i].Kind < rels[j].Kind
	})
}
