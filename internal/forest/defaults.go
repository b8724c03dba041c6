package forest

import (
	"time"

	"github.com/docforest/docforest/internal/models"
)

// Default builds the built-in forest used on first run, when no persisted
// snapshot exists yet.
func Default() []*models.Node {
	now := time.Now()
	welcome := &models.Node{
		ID:          models.NewID(),
		Name:        "Welcome",
		Description: "A sample document slot. Upload a file here to try things out.",
		Kind:        models.KindLeaf,
		Created:     now,
	}
	return []*models.Node{
		{
			ID:          models.NewID(),
			Name:        "GETTING STARTED",
			Description: "Your first topic. Add subtopics or rename it.",
			Kind:        models.KindContainer,
			Expanded:    true,
			Children:    []*models.Node{welcome},
			Created:     now,
		},
		{
			ID:          models.NewID(),
			Name:        "ARCHIVE",
			Description: models.DefaultDescription,
			Kind:        models.KindContainer,
			Created:     now,
		},
	}
}
