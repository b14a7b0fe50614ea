package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/chatflow/cmd/chatflow/storage"
	"github.com/lyzr/chatflow/common/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	stores, err := storage.NewStores(t.TempDir(), logger.New("error", "text"))
	require.NoError(t, err)
	return NewService(stores, logger.New("error", "text"))
}

func TestCreateAndList(t *testing.T) {
	s := newTestService(t)

	kb, err := s.Create("docs", "product docs")
	require.NoError(t, err)
	assert.NotEmpty(t, kb.ID)
	assert.NotEmpty(t, kb.VectorDir)

	all, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "docs", all[0].Name)
}

func TestCreateRequiresName(t *testing.T) {
	s := newTestService(t)
	_, err := s.Create("  ", "")
	assert.Error(t, err)
}

func TestSearchRanksByTermOverlap(t *testing.T) {
	s := newTestService(t)
	kb, err := s.Create("docs", "")
	require.NoError(t, err)

	_, err = s.AddDocument(kb.ID, "billing", "Invoices are sent monthly.\n\nRefunds take five business days.\n\nInvoices and refunds are handled by billing.")
	require.NoError(t, err)

	passages, err := s.Search(context.Background(), "invoices refunds", kb.ID, 2)
	require.NoError(t, err)
	require.Len(t, passages, 2)
	assert.Contains(t, passages[0], "handled by billing")
}

func TestSearchUnknownKB(t *testing.T) {
	s := newTestService(t)
	_, err := s.Search(context.Background(), "anything", "ghost", 3)
	assert.Error(t, err)
}

func TestDeleteRemovesKB(t *testing.T) {
	s := newTestService(t)
	kb, err := s.Create("temp", "")
	require.NoError(t, err)

	require.NoError(t, s.Delete(kb.ID))
	_, err = s.Get(kb.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
