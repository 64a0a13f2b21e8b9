package querysafe

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/querysafe/ai/mock"
	"github.com/poiesic/querysafe/chat"
	"github.com/poiesic/querysafe/config"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/extract"
	"github.com/poiesic/querysafe/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestEngine(t *testing.T, dir string, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{
		WithProvider(mock.NewMockProvider()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithIngestionOptions(ingestion.WithRetry(1, time.Millisecond)),
	}, opts...)
	e, err := Open(dir, opts...)
	require.NoError(t, err)
	return e
}

func waitReady(t *testing.T, e *Engine, tenant core.TenantID) *core.TenantState {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.Coordinator().Wait(ctx, tenant))
	state, err := e.Coordinator().State(ctx, tenant)
	require.NoError(t, err)
	return state
}

func TestOpen(t *testing.T) {
	t.Run("creates layout", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "data")
		e := openTestEngine(t, dir)
		defer e.Close()

		assert.NotNil(t, e.Coordinator())
		assert.NotNil(t, e.Retriever())
		assert.NotNil(t, e.Chat())
		assert.NotNil(t, e.Provider())
		for _, sub := range []string{"db", "uploads", "artifacts"} {
			assert.DirExists(t, filepath.Join(dir, sub))
		}
	})

	t.Run("close releases provider", func(t *testing.T) {
		provider := mock.NewMockProvider()
		e := openTestEngine(t, t.TempDir(), WithProvider(provider))
		require.NoError(t, e.Close())
		assert.True(t, provider.(*mock.MockProvider).Closed())
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0o644))

		e, err := Open(tmpFile, WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, e)
	})
}

// A readable document next to a corrupt one still produces a ready tenant.
func TestEngine_PartialFailureStillPublishes(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t, t.TempDir())
	defer e.Close()

	docs, err := e.Upload(ctx, "T1",
		Upload{Name: "doc_a.pdf", Data: extract.BuildTestPDF(
			"Our support line is open from nine to five on weekdays.",
			"Orders ship within two business days.",
			"Returns are accepted for thirty days.",
		)},
		Upload{Name: "doc_b.pdf", Data: []byte("%PDF-1.4 this is not really a pdf")},
	)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	state := waitReady(t, e, "T1")
	assert.Equal(t, core.StatusReady, state.Status)
	assert.Equal(t, 3, state.ChunkCount)
	assert.Equal(t, []string{"doc_b.pdf"}, state.FailedDocuments)

	resp, err := e.Answer(ctx, chat.Request{Tenant: "T1", Query: "When is support open?"})
	require.NoError(t, err)
	require.Len(t, resp.Retrieved, 3)
	var texts []string
	for _, r := range resp.Retrieved {
		texts = append(texts, r.Text)
	}
	assert.Contains(t, strings.Join(texts, "\n"), "support line")
}

func TestEngine_TenantWithoutDocumentsIsNotIndexed(t *testing.T) {
	e := openTestEngine(t, t.TempDir())
	defer e.Close()

	_, err := e.Answer(context.Background(), chat.Request{Tenant: "T2", Query: "hello"})
	assert.True(t, core.IsNotIndexed(err))

	status, err := e.Status(context.Background(), "T2")
	require.NoError(t, err)
	assert.Equal(t, core.StatusTraining, status)
}

func TestEngine_AddDocumentDeduplicates(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t, t.TempDir())
	defer e.Close()

	data := []byte("Same bytes twice.")
	first, created, err := e.AddDocument(ctx, "acme", Upload{Name: "My Notes (v1).txt", Data: data})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "My_Notes_v1.txt", first.Name)

	second, created, err := e.AddDocument(ctx, "acme", Upload{Name: "copy.txt", Data: data})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Id, second.Id)

	// Another tenant stores its own copy.
	_, created, err = e.AddDocument(ctx, "globex", Upload{Name: "copy.txt", Data: data})
	require.NoError(t, err)
	assert.True(t, created)

	docs, err := e.Documents(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestEngine_UploadValidation(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t, t.TempDir())
	defer e.Close()

	_, err := e.Upload(ctx, "acme")
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = e.Upload(ctx, "acme", Upload{Name: "empty.txt"})
	assert.ErrorIs(t, err, core.ErrEmptyContent)

	_, err = e.Upload(ctx, "../acme", Upload{Name: "a.txt", Data: []byte("x")})
	assert.ErrorIs(t, err, core.ErrInvalidTenant)
}

func TestEngine_DeleteDocumentRebuilds(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t, t.TempDir())
	defer e.Close()

	docs, err := e.Upload(ctx, "acme",
		Upload{Name: "keep.txt", Data: []byte("Returns are accepted within thirty days.")},
		Upload{Name: "drop.txt", Data: []byte("The old warehouse address is retired.")},
	)
	require.NoError(t, err)
	state := waitReady(t, e, "acme")
	require.Equal(t, uint64(1), state.Generation)
	require.Equal(t, 2, state.ChunkCount)

	require.NoError(t, e.DeleteDocument(ctx, "acme", docs[1].Id))
	state = waitReady(t, e, "acme")
	assert.Equal(t, core.StatusReady, state.Status)
	assert.Equal(t, uint64(2), state.Generation)
	assert.Equal(t, 1, state.ChunkCount)

	result, err := e.Retriever().Retrieve(ctx, "acme", "warehouse address", 5)
	require.NoError(t, err)
	for _, c := range result.Chunks {
		assert.NotContains(t, c.Text, "warehouse")
	}

	remaining, err := e.Documents(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "keep.txt", remaining[0].Name)
}

func TestEngine_ReopenServesPublishedGeneration(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	e := openTestEngine(t, dir)
	_, err := e.Upload(ctx, "acme", Upload{Name: "hours.txt", Data: []byte("We open at nine every morning.")})
	require.NoError(t, err)
	waitReady(t, e, "acme")
	first, err := e.Answer(ctx, chat.Request{Tenant: "acme", Query: "When do you open?"})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	e = openTestEngine(t, dir)
	defer e.Close()

	scheduled, err := e.Coordinator().Recover(ctx)
	require.NoError(t, err)
	assert.Empty(t, scheduled)

	resp, err := e.Answer(ctx, chat.Request{Tenant: "acme", Query: "And on Sunday?", ConversationID: first.ConversationID})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, resp.ConversationID)
	assert.Equal(t, uint64(1), resp.Generation)

	history, err := e.History(ctx, "acme", first.ConversationID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestEngine_Conversations(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t, t.TempDir())
	defer e.Close()

	_, err := e.Upload(ctx, "acme", Upload{Name: "hours.txt", Data: []byte("We open at nine every morning.")})
	require.NoError(t, err)
	waitReady(t, e, "acme")
	resp, err := e.Answer(ctx, chat.Request{Tenant: "acme", Query: "When do you open?"})
	require.NoError(t, err)

	convs, err := e.Conversations(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, resp.ConversationID, convs[0].Id)

	require.NoError(t, e.DeleteConversation(ctx, "acme", resp.ConversationID))
	convs, err = e.Conversations(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestEngine_DeleteChatbot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := openTestEngine(t, dir)
	defer e.Close()

	_, err := e.Upload(ctx, "acme", Upload{Name: "hours.txt", Data: []byte("We open at nine every morning.")})
	require.NoError(t, err)
	waitReady(t, e, "acme")
	_, err = e.Answer(ctx, chat.Request{Tenant: "acme", Query: "When do you open?"})
	require.NoError(t, err)

	require.NoError(t, e.DeleteChatbot(ctx, "acme"))

	_, err = e.Answer(ctx, chat.Request{Tenant: "acme", Query: "When do you open?"})
	assert.True(t, core.IsNotIndexed(err))
	docs, err := e.Documents(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, docs)
	convs, err := e.Conversations(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, convs)
	states, err := e.Coordinator().Tenants(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)

	entries, err := os.ReadDir(filepath.Join(dir, "artifacts"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Ingestion.ChunkSize = 40
	cfg.Ingestion.ChunkOverlap = 5
	cfg.Chat.TopK = 1

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	e := openTestEngine(t, t.TempDir(), opts...)
	defer e.Close()

	text := strings.Repeat("Small chunks keep answers focused. ", 6)
	_, err = e.Upload(ctx, "acme", Upload{Name: "long.txt", Data: []byte(text)})
	require.NoError(t, err)
	state := waitReady(t, e, "acme")
	assert.Greater(t, state.ChunkCount, 1)

	resp, err := e.Answer(ctx, chat.Request{Tenant: "acme", Query: "answers"})
	require.NoError(t, err)
	assert.Len(t, resp.Retrieved, 1)

	cfg.Ingestion.ChunkOverlap = cfg.Ingestion.ChunkSize
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}
