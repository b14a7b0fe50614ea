package models

import (
	"time"

	"github.com/google/uuid"
)

// PromptTemplate is a named system prompt with substitutable placeholders
type PromptTemplate struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Template    string         `json:"template"`
	Variables   map[string]any `json:"variables,omitempty"`
	UsageCount  int            `json:"usage_count"`
	LastUsedAt  *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// RecordUsage bumps the usage counter
func (p *PromptTemplate) RecordUsage() {
	now := time.Now().UTC()
	p.UsageCount++
	p.LastUsedAt = &now
}

// NewPromptTemplate creates a prompt template with a fresh id
func NewPromptTemplate(name, description, template string) *PromptTemplate {
	now := time.Now().UTC()
	return &PromptTemplate{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Template:    template,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// KnowledgeBase is metadata for one retrieval index
type KnowledgeBase struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	VectorDir   string    `json:"vector_dir,omitempty"`
	DocumentIDs []string  `json:"document_ids,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewKnowledgeBase creates knowledge-base metadata with a fresh id
func NewKnowledgeBase(name, description string) *KnowledgeBase {
	now := time.Now().UTC()
	return &KnowledgeBase{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
