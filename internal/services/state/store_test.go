package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/auditmysite/internal/common"
	"github.com/ternarybob/auditmysite/internal/interfaces"
	"github.com/ternarybob/auditmysite/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), common.GetLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleState(id string, createdAt time.Time) *interfaces.RunState {
	return &interfaces.RunState{
		ID:            id,
		SitemapURL:    "https://example.com/sitemap.xml",
		CreatedAt:     createdAt,
		Options:       models.DefaultAuditOptions(),
		PendingURLs:   []string{"https://example.com/a", "https://example.com/b"},
		CompletedURLs: []string{"https://example.com/"},
		Pages: []*models.PageResult{
			{URL: "https://example.com/", Status: models.PageStatusPassed},
		},
	}
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	saved := sampleState("run-1", time.Now())
	require.NoError(t, store.Save(saved))

	loaded, err := store.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, saved.SitemapURL, loaded.SitemapURL)
	assert.Equal(t, saved.PendingURLs, loaded.PendingURLs)
	assert.Equal(t, saved.CompletedURLs, loaded.CompletedURLs)
	require.Len(t, loaded.Pages, 1)
	assert.Equal(t, models.PageStatusPassed, loaded.Pages[0].Status)
}

func TestSaveUpserts(t *testing.T) {
	store := newTestStore(t)

	state := sampleState("run-1", time.Now())
	require.NoError(t, store.Save(state))

	state.PendingURLs = []string{"https://example.com/b"}
	state.CompletedURLs = append(state.CompletedURLs, "https://example.com/a")
	require.NoError(t, store.Save(state))

	loaded, err := store.Load("run-1")
	require.NoError(t, err)
	assert.Len(t, loaded.PendingURLs, 1)
	assert.Len(t, loaded.CompletedURLs, 2)
}

func TestSaveRequiresID(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.Save(&interfaces.RunState{}))
}

func TestLoadUnknownID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)

	base := time.Now()
	require.NoError(t, store.Save(sampleState("run-old", base.Add(-2*time.Hour))))
	require.NoError(t, store.Save(sampleState("run-mid", base.Add(-time.Hour))))
	require.NoError(t, store.Save(sampleState("run-new", base)))

	states, err := store.List()
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, "run-new", states[0].ID)
	assert.Equal(t, "run-old", states[2].ID)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(sampleState("run-1", time.Now())))
	require.NoError(t, store.Delete("run-1"))

	_, err := store.Load("run-1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.Delete("run-1"), "deleting twice is fine")
}
