package instagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

// ErrEmptyBatch is returned when a batch carries no content.
var ErrEmptyBatch = errors.New("empty ingest batch")

// Writer is the persistence ingestion writes to.
type Writer interface {
	UpsertPosts(ctx context.Context, posts []model.InstagramPost) error
	UpsertComments(ctx context.Context, comments []model.InstagramComment) error
	UpsertStories(ctx context.Context, stories []model.InstagramStory) error
}

// Batch is a scraper delivery.
type Batch struct {
	Posts    []model.InstagramPost    `json:"posts" validate:"dive"`
	Comments []model.InstagramComment `json:"comments" validate:"dive"`
	Stories  []model.InstagramStory   `json:"stories" validate:"dive"`
}

// IngestResult counts what a batch wrote.
type IngestResult struct {
	Posts    int `json:"posts"`
	Comments int `json:"comments"`
	Stories  int `json:"stories"`
}

// Ingester validates and stores scraper deliveries.
type Ingester struct {
	store    Writer
	validate *validator.Validate
	log      *slog.Logger
}

// NewIngester creates an Ingester.
func NewIngester(store Writer, log *slog.Logger) *Ingester {
	return &Ingester{store: store, validate: validator.New(), log: log}
}

// Ingest validates the whole batch and then writes posts before comments so
// comments can reference posts of the same batch.
func (i *Ingester) Ingest(ctx context.Context, b Batch) (IngestResult, error) {
	if len(b.Posts)+len(b.Comments)+len(b.Stories) == 0 {
		return IngestResult{}, ErrEmptyBatch
	}
	if err := i.validate.Struct(b); err != nil {
		return IngestResult{}, fmt.Errorf("validate batch: %w", err)
	}

	if len(b.Posts) > 0 {
		if err := i.store.UpsertPosts(ctx, b.Posts); err != nil {
			return IngestResult{}, fmt.Errorf("ingest posts: %w", err)
		}
	}
	if len(b.Comments) > 0 {
		if err := i.store.UpsertComments(ctx, b.Comments); err != nil {
			return IngestResult{Posts: len(b.Posts)}, fmt.Errorf("ingest comments: %w", err)
		}
	}
	if len(b.Stories) > 0 {
		if err := i.store.UpsertStories(ctx, b.Stories); err != nil {
			return IngestResult{Posts: len(b.Posts), Comments: len(b.Comments)}, fmt.Errorf("ingest stories: %w", err)
		}
	}

	res := IngestResult{Posts: len(b.Posts), Comments: len(b.Comments), Stories: len(b.Stories)}
	i.log.Info("ingested instagram batch", "posts", res.Posts, "comments", res.Comments, "stories", res.Stories)
	return res, nil
}
