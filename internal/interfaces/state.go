package interfaces

import (
	"time"

	"github.com/ternarybob/auditmysite/internal/models"
)

// RunState is a resumable snapshot of an interrupted run
type RunState struct {
	ID            string               `json:"id" badgerhold:"key"`
	SitemapURL    string               `json:"sitemap_url"`
	CreatedAt     time.Time            `json:"created_at"`
	Options       models.AuditOptions  `json:"options"`
	PendingURLs   []string             `json:"pending_urls"`
	CompletedURLs []string             `json:"completed_urls"`
	Pages         []*models.PageResult `json:"pages"`
}

// StateStore persists run state between processes
type StateStore interface {
	Save(state *RunState) error
	Load(id string) (*RunState, error)
	List() ([]*RunState, error)
	Delete(id string) error
	Close() error
}
