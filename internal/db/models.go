package db

// Book is the catalog record joined onto ranked page results.
type Book struct {
	ID          int64  `db:"id"`
	TitleArabic string `db:"title_arabic"`
	TitleLatin  string `db:"title_latin"`
	AuthorID    int64  `db:"author_id"`
	AuthorName  string `db:"author_name"`
}

// Author is an author-catalog record.
type Author struct {
	ID         int64  `db:"id"`
	NameArabic string `db:"name_arabic"`
	NameLatin  string `db:"name_latin"`
	DeathYear  int    `db:"death_year"`
}

// AyahRef identifies one verse.
type AyahRef struct {
	Surah int
	Ayah  int
}

// HadithRef identifies one hadith inside its source book.
type HadithRef struct {
	BookID       int64
	HadithNumber int64
}

// ParagraphTranslation is one stored per-paragraph translation record.
// Index is the paragraph's position in the original page HTML.
type ParagraphTranslation struct {
	Index       int    `json:"index"`
	Translation string `json:"translation"`
}

// PageTranslation is the stored translation of one book page in one
// language, as an ordered paragraph list.
type PageTranslation struct {
	BookID     int64
	PageNumber int
	Language   string
	Paragraphs []ParagraphTranslation
}
