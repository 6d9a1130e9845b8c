package catalog

import (
	"context"
	"errors"
	"fmt"

	"uspguard.org/internal/compliance"
)

// Loader is the subset of the compliance engine needed to install a catalog.
type Loader interface {
	CreateChapter(ctx context.Context, in compliance.NewChapter) (compliance.Chapter, error)
	CreateRequirement(ctx context.Context, in compliance.NewRequirement) (compliance.Requirement, error)
}

// Result reports what Apply installed.
type Result struct {
	Chapters     int
	Requirements int
	Skipped      int
}

// Apply creates the catalog's chapters and their requirements. Chapters the
// engine rejects as already present are skipped along with their
// requirements, so Apply can run against an engine that was partially
// loaded before, or concurrently with another loader.
func Apply(ctx context.Context, l Loader, c *Catalog) (Result, error) {
	var res Result
	for _, ch := range c.Chapters {
		created, err := l.CreateChapter(ctx, compliance.NewChapter{
			Number:      ch.Number,
			Title:       ch.Title,
			Description: ch.Description,
		})
		if errors.Is(err, compliance.ErrConflict) {
			res.Skipped++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("create chapter %s: %w", ch.Number, err)
		}
		res.Chapters++
		for _, req := range ch.Requirements {
			if _, err := l.CreateRequirement(ctx, compliance.NewRequirement{
				ChapterID:   created.ID,
				Section:     req.Section,
				Title:       req.Title,
				Description: req.Description,
				Criticality: req.Criticality,
			}); err != nil {
				return res, fmt.Errorf("create requirement %s %s: %w", ch.Number, req.Section, err)
			}
			res.Requirements++
		}
	}
	return res, nil
}
