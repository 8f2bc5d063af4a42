package arabic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFoldsVariants(t *testing.T) {
	// alef madda, alef hamza above/below, wasla -> bare alef
	assert.Equal(t, "اااا", Normalize("آأإٱ"))
	// alef maqsura -> yeh, teh marbuta -> heh
	assert.Equal(t, "ي", Normalize("ى"))
	assert.Equal(t, "ه", Normalize("ة"))
	// standalone hamza dropped
	assert.Equal(t, "", Normalize("ء"))
}

func TestNormalizeStripsDiacritics(t *testing.T) {
	// الصَّلاةُ with shadda, fatha, damma
	in := "الصَّلاةُ"
	out := Normalize(in)
	for _, r := range out {
		assert.False(t, r >= 0x064B && r <= 0x065F, "diacritic %U survived", r)
		assert.NotEqual(t, rune(0x0670), r)
	}
	assert.Equal(t, "الصلاه", out)
}

func TestNormalizeIdempotent(t *testing.T) {
	cases := []string{
		"  الصَّلاة  ",
		"hello   world",
		"آمنة",
		"",
		"1681",
	}
	for _, c := range cases {
		once := Normalize(c)
		require.Equal(t, once, Normalize(once), "not idempotent for %q", c)
	}
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  a\t b \n c "))
}

func TestDetectScript(t *testing.T) {
	assert.Equal(t, ScriptArabic, DetectScript("الصلاة"))
	assert.Equal(t, ScriptArabic, DetectScript("book كتاب"))
	assert.Equal(t, ScriptNumeric, DetectScript("1681"))
	assert.Equal(t, ScriptLatin, DetectScript("patience in Islam"))
	assert.Equal(t, ScriptLatin, DetectScript("1681a"))
	assert.Equal(t, ScriptLatin, DetectScript(""))
}

func TestQuotedPhrases(t *testing.T) {
	got := QuotedPhrases(`"بسم الله الرحمن الرحيم"`)
	require.Len(t, got, 1)
	assert.Equal(t, "بسم الله الرحمن الرحيم", got[0])

	// guillemets
	got = QuotedPhrases("«dar al hikma»")
	require.Len(t, got, 1)

	// single-word quote is not a phrase
	assert.Empty(t, QuotedPhrases(`"الصلاة"`))
	// unmatched quote is ignored
	assert.Empty(t, QuotedPhrases(`"بسم الله`))
}

func TestParseQuery(t *testing.T) {
	q := ParseQuery(`"بسم الله" الرحمن`)
	assert.True(t, q.HasQuotedPhrase)
	assert.Equal(t, ScriptArabic, q.Script)
	assert.Len(t, q.Tokens, 3)
}

func TestSimilarityThreshold(t *testing.T) {
	base := 0.2
	// 2 chars -> 0.55 band
	assert.InDelta(t, 0.55, SimilarityThreshold(base, "ال"), 1e-9)
	// single long word is capped at 6 effective chars -> 0.40 band
	assert.InDelta(t, 0.40, SimilarityThreshold(base, "استغفاركم"), 1e-9)
	// two words, 11 non-space chars -> 0.30 band
	assert.InDelta(t, 0.30, SimilarityThreshold(base, "أحكام الصيام"), 1e-9)
	// long multi-word query falls back to base
	assert.InDelta(t, base, SimilarityThreshold(base, "one two three four five six"), 1e-9)
	// base is a floor
	assert.InDelta(t, 0.6, SimilarityThreshold(0.6, "ال"), 1e-9)
}

func TestSkipSemantic(t *testing.T) {
	assert.True(t, SkipSemantic(ParseQuery(`"بسم الله الرحمن الرحيم"`)))
	assert.True(t, SkipSemantic(ParseQuery("ال"))) // 2 chars
	assert.False(t, SkipSemantic(ParseQuery("الصلاة")))
}
