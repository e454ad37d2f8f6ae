package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/store"
)

// mockDBTX implements store.DBTX for testing
type mockDBTX struct{}

func (m *mockDBTX) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}

func (m *mockDBTX) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return nil, nil
}

func (m *mockDBTX) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, nil
}

func (m *mockDBTX) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func TestNewPostgresNoteStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		db          store.DBTX
		logger      *slog.Logger
		expectPanic bool
	}{
		{
			name:        "valid db and logger",
			db:          &mockDBTX{},
			logger:      slog.Default(),
			expectPanic: false,
		},
		{
			name:        "nil logger falls back to default",
			db:          &mockDBTX{},
			logger:      nil,
			expectPanic: false,
		},
		{
			name:        "nil db panics",
			db:          nil,
			logger:      slog.Default(),
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if tt.expectPanic {
				assert.Panics(t, func() {
					NewPostgresNoteStore(tt.db, tt.logger)
				})
				return
			}

			s := NewPostgresNoteStore(tt.db, tt.logger)
			assert.NotNil(t, s)
			assert.NotNil(t, s.logger)
		})
	}
}

func TestNoteStoreWithTx(t *testing.T) {
	t.Parallel()

	s := NewPostgresNoteStore(&mockDBTX{}, slog.Default())
	tx := &sql.Tx{}

	result := s.WithTx(tx)
	assert.NotNil(t, result)

	txStore, ok := result.(*PostgresNoteStore)
	assert.True(t, ok, "WithTx should return a PostgresNoteStore instance")
	assert.Equal(t, tx, txStore.db, "WithTx store should use the provided transaction")
	assert.Equal(t, s.logger, txStore.logger, "WithTx store should preserve the logger")
}

func TestMarshalAnalysis(t *testing.T) {
	t.Parallel()

	t.Run("nil analysis maps to NULL", func(t *testing.T) {
		t.Parallel()

		value, err := marshalAnalysis(nil)
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("round trip preserves fields", func(t *testing.T) {
		t.Parallel()

		analysis := &domain.NoteAnalysis{
			Summary:     "weekly standup recap",
			Sentiment:   "neutral",
			Topics:      []string{"planning", "deadlines"},
			ActionItems: []string{"send the agenda"},
		}

		value, err := marshalAnalysis(analysis)
		require.NoError(t, err)

		data, ok := value.([]byte)
		require.True(t, ok)

		var decoded domain.NoteAnalysis
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, *analysis, decoded)
	})
}
