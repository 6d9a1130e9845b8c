package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"uspguard.org/internal/compliance"
)

const (
	chaptersQuery = `select id, number, title, coalesce(description, '')
		from usp_chapters order by number`
	requirementsQuery = `select chapter_id, section, title, coalesce(description, ''), criticality
		from usp_requirements order by chapter_id, section, id`
)

// LoadSQL reads a catalog from the usp_chapters and usp_requirements tables
// created by the migrations in this repository.
func LoadSQL(ctx context.Context, db *sql.DB) (*Catalog, error) {
	rows, err := db.QueryContext(ctx, chaptersQuery)
	if err != nil {
		return nil, fmt.Errorf("catalog: query chapters: %w", err)
	}
	var (
		c     Catalog
		index = make(map[int64]int)
	)
	for rows.Next() {
		var (
			id int64
			ch Chapter
		)
		if err := rows.Scan(&id, &ch.Number, &ch.Title, &ch.Description); err != nil {
			rows.Close()
			return nil, fmt.Errorf("catalog: scan chapter: %w", err)
		}
		index[id] = len(c.Chapters)
		c.Chapters = append(c.Chapters, ch)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = db.QueryContext(ctx, requirementsQuery)
	if err != nil {
		return nil, fmt.Errorf("catalog: query requirements: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			chapterID int64
			req       Requirement
			crit      string
		)
		if err := rows.Scan(&chapterID, &req.Section, &req.Title, &req.Description, &crit); err != nil {
			return nil, fmt.Errorf("catalog: scan requirement: %w", err)
		}
		pos, ok := index[chapterID]
		if !ok {
			return nil, fmt.Errorf("catalog: requirement %q references unknown chapter %d", req.Title, chapterID)
		}
		req.Criticality = compliance.Criticality(crit)
		c.Chapters[pos].Requirements = append(c.Chapters[pos].Requirements, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
