package lexical

import (
	"github.com/maktabah/bahith/internal/arabic"
)

// bookQuery builds the page-level book query. Numeric input resolves to
// an ID lookup (exact boosted over prefix); text input is a best-fields
// multi-match over title, author and page content with the title fields
// weighted up.
func bookQuery(q arabic.Query, bookIDs []int64) map[string]interface{} {
	var core map[string]interface{}
	switch q.Script {
	case arabic.ScriptNumeric:
		core = idQuery("book_id", q.Normalized)
	case arabic.ScriptArabic:
		core = textWithFields(q, []string{
			"title_arabic^3",
			"title_arabic.exact^2",
			"author_name_arabic",
			"text_content",
		})
	default:
		core = textWithFields(q, []string{
			"title_latin^3",
			"author_name_latin",
			"text_content",
		})
	}
	if len(bookIDs) == 0 {
		return core
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{
			"must":   []interface{}{core},
			"filter": []interface{}{map[string]interface{}{"terms": map[string]interface{}{"book_id": bookIDs}}},
		},
	}
}

// authorQuery adds the genealogical name parts on top of the base name
// fields for Arabic input.
func authorQuery(q arabic.Query) map[string]interface{} {
	switch q.Script {
	case arabic.ScriptNumeric:
		return idQuery("author_id", q.Normalized)
	case arabic.ScriptArabic:
		return textWithFields(q, []string{
			"name_arabic^3",
			"name_arabic.exact^2",
			"kunya^2",
			"nasab",
			"nisba^2",
			"laqab",
		})
	default:
		return textWithFields(q, []string{
			"name_latin^3",
			"author_name_latin",
		})
	}
}

// textQuery matches a single content field; quoted phrases force exact
// phrase matching on that field.
func textQuery(q arabic.Query, field string) map[string]interface{} {
	if q.HasQuotedPhrase {
		musts := make([]interface{}, 0, len(q.Phrases))
		for _, p := range q.Phrases {
			musts = append(musts, map[string]interface{}{
				"match_phrase": map[string]interface{}{field: p},
			})
		}
		return map[string]interface{}{"bool": map[string]interface{}{"must": musts}}
	}
	return map[string]interface{}{
		"match": map[string]interface{}{
			field: map[string]interface{}{
				"query":     q.Normalized,
				"fuzziness": "AUTO",
			},
		},
	}
}

// idQuery is the numeric lookup: exact ID outranks any prefix match by
// an order of magnitude.
func idQuery(field, id string) map[string]interface{} {
	return map[string]interface{}{
		"bool": map[string]interface{}{
			"should": []interface{}{
				map[string]interface{}{
					"term": map[string]interface{}{
						field: map[string]interface{}{"value": id, "boost": 100},
					},
				},
				map[string]interface{}{
					"prefix": map[string]interface{}{
						field + ".keyword": map[string]interface{}{"value": id, "boost": 10},
					},
				},
			},
		},
	}
}

func textWithFields(q arabic.Query, fields []string) map[string]interface{} {
	multi := map[string]interface{}{
		"multi_match": map[string]interface{}{
			"query":     q.Normalized,
			"fields":    fields,
			"type":      "best_fields",
			"fuzziness": "AUTO",
		},
	}
	if !q.HasQuotedPhrase {
		return multi
	}
	// Quoted phrases must all appear verbatim; the multi-match still
	// drives scoring.
	musts := []interface{}{multi}
	for _, p := range q.Phrases {
		musts = append(musts, map[string]interface{}{
			"match_phrase": map[string]interface{}{fields[len(fields)-1]: p},
		})
	}
	return map[string]interface{}{"bool": map[string]interface{}{"must": musts}}
}
