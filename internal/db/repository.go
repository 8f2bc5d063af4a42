package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// BooksByID loads catalog records for the given book IDs.
func (c *Client) BooksByID(ctx context.Context, ids []int64) (map[int64]Book, error) {
	if len(ids) == 0 {
		return map[int64]Book{}, nil
	}
	var rows []Book
	err := c.execute(ctx, func() error {
		return c.db.SelectContext(ctx, &rows, `
			SELECT b.id, b.title_arabic, COALESCE(b.title_latin, '') AS title_latin,
			       b.author_id, COALESCE(a.name_arabic, '') AS author_name
			FROM books b
			LEFT JOIN authors a ON a.id = b.author_id
			WHERE b.id = ANY($1)
		`, pq.Array(ids))
	})
	if err != nil {
		return nil, fmt.Errorf("load books: %w", err)
	}
	out := make(map[int64]Book, len(rows))
	for _, b := range rows {
		out[b.ID] = b
	}
	return out, nil
}

// SearchAuthorsLike is the SQL fallback behind the author lookup when
// the lexical engine is unavailable.
func (c *Client) SearchAuthorsLike(ctx context.Context, name string, limit int) ([]Author, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return []Author{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	var rows []Author
	err := c.execute(ctx, func() error {
		return c.db.SelectContext(ctx, &rows, `
			SELECT id, name_arabic, COALESCE(name_latin, '') AS name_latin,
			       COALESCE(death_year, 0) AS death_year
			FROM authors
			WHERE name_arabic LIKE '%' || $1 || '%'
			   OR name_latin ILIKE '%' || $1 || '%'
			ORDER BY id
			LIMIT $2
		`, name, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("search authors: %w", err)
	}
	if rows == nil {
		rows = []Author{}
	}
	return rows, nil
}

// PageCountsByBook returns the authoritative page count per book. The
// indexed-set refresher compares engine counts against these.
func (c *Client) PageCountsByBook(ctx context.Context) (map[int64]int64, error) {
	type row struct {
		BookID int64 `db:"book_id"`
		Pages  int64 `db:"pages"`
	}
	var rows []row
	err := c.execute(ctx, func() error {
		return c.db.SelectContext(ctx, &rows, `
			SELECT book_id, COUNT(*) AS pages
			FROM pages
			GROUP BY book_id
		`)
	})
	if err != nil {
		return nil, fmt.Errorf("page counts: %w", err)
	}
	out := make(map[int64]int64, len(rows))
	for _, r := range rows {
		out[r.BookID] = r.Pages
	}
	return out, nil
}

// AyahTranslations loads the stored translations for the given verses in
// one batched call. Missing verses are simply absent from the map.
func (c *Client) AyahTranslations(ctx context.Context, refs []AyahRef, edition string) (map[AyahRef]string, error) {
	if len(refs) == 0 {
		return map[AyahRef]string{}, nil
	}
	placeholders, args := pairPlaceholders(len(refs), 1)
	for _, r := range refs {
		args = append(args, r.Surah, r.Ayah)
	}
	args = append(args, edition)

	type row struct {
		Surah int    `db:"surah_number"`
		Ayah  int    `db:"ayah_number"`
		Text  string `db:"translation"`
	}
	var rows []row
	query := fmt.Sprintf(`
		SELECT surah_number, ayah_number, translation
		FROM ayah_translations
		WHERE (surah_number, ayah_number) IN (%s) AND edition = $%d
	`, placeholders, len(refs)*2+1)
	err := c.execute(ctx, func() error {
		return c.db.SelectContext(ctx, &rows, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("ayah translations: %w", err)
	}
	out := make(map[AyahRef]string, len(rows))
	for _, r := range rows {
		out[AyahRef{Surah: r.Surah, Ayah: r.Ayah}] = r.Text
	}
	return out, nil
}

// HadithTranslations loads the stored translations for the given hadiths
// in one batched call, keyed by (source book, hadith number).
func (c *Client) HadithTranslations(ctx context.Context, refs []HadithRef, language string) (map[HadithRef]string, error) {
	if len(refs) == 0 {
		return map[HadithRef]string{}, nil
	}
	placeholders, args := pairPlaceholders(len(refs), 1)
	for _, r := range refs {
		args = append(args, r.BookID, r.HadithNumber)
	}
	args = append(args, language)

	type row struct {
		BookID       int64  `db:"book_id"`
		HadithNumber int64  `db:"hadith_number"`
		Text         string `db:"translation"`
	}
	var rows []row
	query := fmt.Sprintf(`
		SELECT book_id, hadith_number, translation
		FROM hadith_translations
		WHERE (book_id, hadith_number) IN (%s) AND language = $%d
	`, placeholders, len(refs)*2+1)
	err := c.execute(ctx, func() error {
		return c.db.SelectContext(ctx, &rows, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("hadith translations: %w", err)
	}
	out := make(map[HadithRef]string, len(rows))
	for _, r := range rows {
		out[HadithRef{BookID: r.BookID, HadithNumber: r.HadithNumber}] = r.Text
	}
	return out, nil
}

// PageTranslationFor loads one page's stored translation, or nil when
// none exists in that language.
func (c *Client) PageTranslationFor(ctx context.Context, bookID int64, page int, language string) (*PageTranslation, error) {
	var raw []byte
	err := c.execute(ctx, func() error {
		return c.db.GetContext(ctx, &raw, `
			SELECT paragraphs
			FROM page_translations
			WHERE book_id = $1 AND page_number = $2 AND language = $3
		`, bookID, page, language)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("page translation: %w", err)
	}
	var paragraphs []ParagraphTranslation
	if err := json.Unmarshal(raw, &paragraphs); err != nil {
		return nil, fmt.Errorf("page translation paragraphs: %w", err)
	}
	return &PageTranslation{
		BookID:     bookID,
		PageNumber: page,
		Language:   language,
		Paragraphs: paragraphs,
	}, nil
}

// PageHTML loads the stored HTML of one page; the merger extracts
// paragraphs from it to match a ranked snippet to its translation.
func (c *Client) PageHTML(ctx context.Context, bookID int64, page int) (string, error) {
	var html string
	err := c.execute(ctx, func() error {
		return c.db.GetContext(ctx, &html, `
			SELECT html_content
			FROM pages
			WHERE book_id = $1 AND page_number = $2
		`, bookID, page)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("page html: %w", err)
	}
	return html, nil
}

// pairPlaceholders builds "($1,$2),($3,$4),…" for n pairs starting at
// placeholder index start.
func pairPlaceholders(n, start int) (string, []interface{}) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "($%d,$%d)", start+i*2, start+i*2+1)
	}
	return b.String(), make([]interface{}, 0, n*2+1)
}
