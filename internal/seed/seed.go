// ABOUTME: Idempotent creation of the demo "Tutorial" box with sample content
// ABOUTME: Run at server startup so a fresh deployment has something to show

package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/boxdrop/boxdrop/internal/store"
)

// TutorialBoxName identifies the demo box. Seeding is idempotent on this
// name, so the box reappears after the retention sweep removes it.
const TutorialBoxName = "Tutorial"

var tutorialTexts = []string{
	`🎉 Welcome to Box!

This is your Tutorial box - a demonstration of how Box works.

Box is a simple, temporary sharing platform where you can:
• Share text notes and ideas
• Upload and share images
• Collaborate without accounts
• Set passwords for privacy`,
	`📝 How to Add Content

To add content to any box:
1. Click the "+" button
2. Type your text or paste from clipboard
3. Or upload an image by clicking "Choose Image"
4. Submit to add it to the box

All content is displayed in a beautiful masonry layout!`,
	`🔒 Privacy & Security

Boxes can be:
• Public (like this one) - anyone with the link can view
• Password protected - requires a password to access

⏰ Auto-Cleanup
All boxes automatically expire after 24 hours to keep the platform clean and private.`,
	`🚀 Getting Started

1. Create your own box at the homepage
2. Share the link with others
3. Start collaborating!

Remember: This tutorial box will be recreated daily, so feel free to experiment and add your own content here!`,
}

// TutorialBox ensures the demo box exists. When a box with the tutorial
// name is already present it is left untouched and created is false.
// A failed text insert is logged and skipped; the box itself is still
// considered seeded.
func TutorialBox(ctx context.Context, s store.Store, logger *slog.Logger) (box *store.Box, created bool, err error) {
	logger = logger.With("component", "seed")

	existing, err := s.SearchBoxes(ctx, TutorialBoxName)
	if err != nil {
		return nil, false, fmt.Errorf("checking for tutorial box: %w", err)
	}
	for _, b := range existing {
		if b.Name == TutorialBoxName {
			return b, false, nil
		}
	}

	now := time.Now().UTC()
	box = &store.Box{
		ID:        uuid.NewString(),
		Name:      TutorialBoxName,
		CreatedAt: now,
	}
	if err := s.CreateBox(ctx, box); err != nil {
		return nil, false, fmt.Errorf("creating tutorial box: %w", err)
	}

	for i, text := range tutorialTexts {
		item := &store.ContentItem{
			ID:    uuid.NewString(),
			BoxID: box.ID,
			Type:  store.ContentTypeText,
			// Stagger timestamps so the listing keeps the tutorial order
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
			Content:   text,
		}
		if err := s.InsertContent(ctx, item); err != nil {
			logger.Warn("inserting tutorial content", "box_id", box.ID, "error", err)
		}
	}

	logger.Info("tutorial box seeded", "box_id", box.ID)
	return box, true, nil
}
