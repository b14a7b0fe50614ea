package storage

import (
	"path/filepath"

	"github.com/lyzr/chatflow/cmd/chatflow/models"
	"github.com/lyzr/chatflow/cmd/chatflow/workflow"
	"github.com/lyzr/chatflow/common/logger"
)

// Stores bundles the on-disk blob stores under one root directory:
// workflows/, conversations/, prompts/ hold one JSON file per id, and
// knowledge/ holds the knowledge-base metadata plus vector directories.
type Stores struct {
	Workflows     *Store[*workflow.Workflow]
	Conversations *Store[*models.Conversation]
	Prompts       *Store[*models.PromptTemplate]
	Knowledge     *Store[*models.KnowledgeBase]

	root string
}

// NewStores creates all blob stores under root
func NewStores(root string, log *logger.Logger) (*Stores, error) {
	workflows, err := NewStore[*workflow.Workflow](filepath.Join(root, "workflows"), log)
	if err != nil {
		return nil, err
	}
	conversations, err := NewStore[*models.Conversation](filepath.Join(root, "conversations"), log)
	if err != nil {
		return nil, err
	}
	prompts, err := NewStore[*models.PromptTemplate](filepath.Join(root, "prompts"), log)
	if err != nil {
		return nil, err
	}
	knowledge, err := NewStore[*models.KnowledgeBase](filepath.Join(root, "knowledge"), log)
	if err != nil {
		return nil, err
	}

	return &Stores{
		Workflows:     workflows,
		Conversations: conversations,
		Prompts:       prompts,
		Knowledge:     knowledge,
		root:          root,
	}, nil
}

// VectorDir returns the per-knowledge-base vector directory
func (s *Stores) VectorDir(kbID string) string {
	return filepath.Join(s.root, "knowledge", "vectors", kbID)
}

// Root returns the storage root directory
func (s *Stores) Root() string { return s.root }
