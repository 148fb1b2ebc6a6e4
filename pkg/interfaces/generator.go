package interfaces

import (
	"context"

	"github.com/m3-org/ainews/pkg/model"
)

// TextGenerator turns a prompt into response text
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// MediaLookup provides media references to splice into prompts
type MediaLookup interface {
	Stats(ctx context.Context) (*model.MediaStats, error)
	MediaForDate(ctx context.Context, date string) ([]*model.MediaItem, error)
}
