package htmltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParagraphTagsWin(t *testing.T) {
	fragment := `<div><p>الفقرة الأولى</p><p>الفقرة الثانية</p></div>`
	ps := Paragraphs(fragment)
	require.Len(t, ps, 2)
	assert.Equal(t, Paragraph{Index: 0, Text: "الفقرة الأولى"}, ps[0])
	assert.Equal(t, Paragraph{Index: 1, Text: "الفقرة الثانية"}, ps[1])
}

func TestEmptyParagraphKeepsIndexSequence(t *testing.T) {
	fragment := `<p>أول</p><p>   </p><p>ثالث</p>`
	ps := Paragraphs(fragment)
	require.Len(t, ps, 2)
	assert.Equal(t, 0, ps[0].Index)
	assert.Equal(t, 2, ps[1].Index, "empty paragraph still consumes its index")
}

func TestNestedMarkupInsideParagraph(t *testing.T) {
	fragment := `<p>قال <b>النبي</b> صلى الله عليه وسلم</p>`
	ps := Paragraphs(fragment)
	require.Len(t, ps, 1)
	assert.Equal(t, "قال النبي صلى الله عليه وسلم", ps[0].Text)
}

func TestFallbackNewlineSplit(t *testing.T) {
	fragment := "سطر أول\nسطر ثان\n\nسطر رابع"
	ps := Paragraphs(fragment)
	require.Len(t, ps, 3)
	assert.Equal(t, Paragraph{Index: 0, Text: "سطر أول"}, ps[0])
	assert.Equal(t, Paragraph{Index: 1, Text: "سطر ثان"}, ps[1])
	// The blank line consumed index 2.
	assert.Equal(t, Paragraph{Index: 3, Text: "سطر رابع"}, ps[2])
}

func TestFallbackJoinsTitleSpans(t *testing.T) {
	fragment := "<span class=\"chapter-title\">باب\nالصلاة</span>\nنص الباب"
	ps := Paragraphs(fragment)
	require.Len(t, ps, 2)
	assert.Equal(t, "باب الصلاة", ps[0].Text)
	assert.Equal(t, "نص الباب", ps[1].Text)
}

func TestFallbackStripsTags(t *testing.T) {
	fragment := "نص <i>مائل</i> هنا\nسطر <b>غامق</b>"
	ps := Paragraphs(fragment)
	require.Len(t, ps, 2)
	assert.Equal(t, "نص مائل هنا", ps[0].Text)
	assert.Equal(t, "سطر غامق", ps[1].Text)
}

func TestEmptyFragment(t *testing.T) {
	assert.Nil(t, Paragraphs(""))
	assert.Nil(t, Paragraphs("   "))
}

func TestNearestPicksBestOverlap(t *testing.T) {
	ps := []Paragraph{
		{Index: 0, Text: "باب ما جاء في الصلاة"},
		{Index: 2, Text: "حدثنا أبو بكر عن النبي في الزكاة"},
		{Index: 3, Text: "فصل في أحكام الزكاة والصدقة"},
	}
	assert.Equal(t, 3, Nearest(ps, "أحكام الزكاة والصدقة"))
	assert.Equal(t, 0, Nearest(ps, "جاء في الصلاة"))
	assert.Equal(t, -1, Nearest(ps, "قول لا يطابق شيئا"))
	assert.Equal(t, -1, Nearest(ps, ""))
	assert.Equal(t, -1, Nearest(nil, "نص"))
}
