// Package knowledge manages knowledge-base metadata and a file-backed
// document index used for retrieval.
package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lyzr/chatflow/cmd/chatflow/models"
	"github.com/lyzr/chatflow/cmd/chatflow/storage"
	"github.com/lyzr/chatflow/common/logger"
)

// Service stores knowledge bases under the blob store and their documents as
// plain files in per-kb directories. Search is keyword scoring over document
// passages; a vector backend can replace it behind the same interface.
type Service struct {
	stores *storage.Stores
	log    *logger.Logger
}

// NewService creates a knowledge service
func NewService(stores *storage.Stores, log *logger.Logger) *Service {
	return &Service{stores: stores, log: log}
}

// Create registers a knowledge base
func (s *Service) Create(name, description string) (*models.KnowledgeBase, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("knowledge base name is required")
	}

	kb := models.NewKnowledgeBase(name, description)
	kb.VectorDir = s.stores.VectorDir(kb.ID)
	if err := os.MkdirAll(kb.VectorDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vector dir: %w", err)
	}
	if err := s.stores.Knowledge.Save(kb.ID, kb); err != nil {
		return nil, err
	}

	s.log.Info("knowledge base created", "kb_id", kb.ID, "name", name)
	return kb, nil
}

// Get loads one knowledge base
func (s *Service) Get(id string) (*models.KnowledgeBase, error) {
	return s.stores.Knowledge.Load(id)
}

// List returns all knowledge bases
func (s *Service) List(ctx context.Context) ([]*models.KnowledgeBase, error) {
	all, err := s.stores.Knowledge.LoadAll()
	if err != nil {
		return nil, err
	}

	out := make([]*models.KnowledgeBase, 0, len(all))
	for _, kb := range all {
		out = append(out, kb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Delete removes a knowledge base and its documents
func (s *Service) Delete(id string) error {
	kb, err := s.stores.Knowledge.Load(id)
	if err != nil {
		return err
	}
	if err := s.stores.Knowledge.Delete(id); err != nil {
		return err
	}
	if kb.VectorDir != "" {
		if err := os.RemoveAll(kb.VectorDir); err != nil {
			s.log.Warn("failed to remove vector dir", "kb_id", id, "error", err)
		}
	}
	return nil
}

// AddDocument stores a document in the knowledge base
func (s *Service) AddDocument(kbID, name, content string) (*models.KnowledgeBase, error) {
	kb, err := s.stores.Knowledge.Load(kbID)
	if err != nil {
		return nil, err
	}

	docID := fmt.Sprintf("%d-%s", time.Now().UnixNano(), sanitize(name))
	path := filepath.Join(kb.VectorDir, docID+".txt")
	if err := os.MkdirAll(kb.VectorDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vector dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}

	kb.DocumentIDs = append(kb.DocumentIDs, docID)
	kb.UpdatedAt = time.Now().UTC()
	if err := s.stores.Knowledge.Save(kb.ID, kb); err != nil {
		return nil, err
	}
	return kb, nil
}

// Search scores document passages by query term overlap and returns the top
// k, best first.
func (s *Service) Search(ctx context.Context, query, kbID string, topK int) ([]string, error) {
	kb, err := s.stores.Knowledge.Load(kbID)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, fmt.Errorf("query is required")
	}

	type scored struct {
		passage string
		score   int
	}
	var results []scored

	for _, docID := range kb.DocumentIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(kb.VectorDir, docID+".txt"))
		if err != nil {
			s.log.Warn("missing document", "kb_id", kbID, "doc_id", docID)
			continue
		}
		for _, passage := range splitPassages(string(data)) {
			lower := strings.ToLower(passage)
			score := 0
			for _, term := range terms {
				score += strings.Count(lower, term)
			}
			if score > 0 {
				results = append(results, scored{passage: passage, score: score})
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > topK {
		results = results[:topK]
	}

	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.passage
	}
	return out, nil
}

// splitPassages breaks a document on blank lines
func splitPassages(text string) []string {
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			out = append(out, block)
		}
	}
	return out
}

func sanitize(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "doc"
	}
	return b.String()
}
