package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hakwonsoft/kinderbook-api/pkg/jobs"
)

// Stylizer runs the asynchronous image pipeline. The real model is not
// wired yet, so after the configured processing delay the original
// drawing is published as the stylized result.
// TODO: call the image model endpoint once it is available.
type Stylizer struct {
	stories *StoryService
	delay   time.Duration
	logger  *zap.Logger
}

// NewStylizer constructs a Stylizer.
func NewStylizer(stories *StoryService, delay time.Duration, logger *zap.Logger) *Stylizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Stylizer{stories: stories, delay: delay, logger: logger}
}

// Handle processes one queued stylize job.
func (s *Stylizer) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(StylizePayload)
	if !ok {
		return fmt.Errorf("unexpected stylize payload %T", job.Payload)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.delay):
	}

	story, err := s.stories.Get(ctx, payload.StoryID)
	if err != nil {
		return fmt.Errorf("load story %s: %w", payload.StoryID, err)
	}

	if err := s.stories.MarkStylized(ctx, story.ID, story.OriginalURL, story.OriginalPath); err != nil {
		return fmt.Errorf("mark story %s stylized: %w", story.ID, err)
	}

	s.logger.Info("story stylized", zap.String("story_id", story.ID))
	return nil
}
