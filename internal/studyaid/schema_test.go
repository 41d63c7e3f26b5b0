package studyaid

import (
	"testing"

	"github.com/studysparkai/backend/internal/apperr"
	"github.com/studysparkai/backend/internal/models"
)

const validQuizJSON = `[
	{"question":"What does photosynthesis produce?","options":["Heat","Chemical energy","Sound","Motion"],"correctAnswerIndex":1,"explanation":"Light becomes chemical energy."},
	{"question":"Where does it happen?","options":["Mitochondria","Nucleus","Chloroplast","Ribosome"],"correctAnswerIndex":2,"explanation":"Chloroplasts hold chlorophyll."}
]`

func TestParseQuiz_AcceptsValidItems(t *testing.T) {
	items, err := parseQuiz(validQuizJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].CorrectAnswerIndex != 1 || len(items[0].Options) != 4 {
		t.Fatalf("item not decoded: %+v", items[0])
	}
}

func TestParseQuiz_RejectsNonJSON(t *testing.T) {
	_, err := parseQuiz("Sure! Here is your quiz: ...")
	if apperr.KindOf(err) != apperr.Schema {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestParseQuiz_RejectsWrongOptionCount(t *testing.T) {
	raw := `[{"question":"q","options":["a","b","c"],"correctAnswerIndex":0,"explanation":"e"}]`
	_, err := parseQuiz(raw)
	if apperr.KindOf(err) != apperr.Schema {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestParseQuiz_RejectsIndexOutOfRange(t *testing.T) {
	for _, idx := range []int{-1, 4} {
		raw := `[{"question":"q","options":["a","b","c","d"],"correctAnswerIndex":` +
			map[int]string{-1: "-1", 4: "4"}[idx] + `,"explanation":"e"}]`
		_, err := parseQuiz(raw)
		if apperr.KindOf(err) != apperr.Schema {
			t.Fatalf("index %d: expected schema error, got %v", idx, err)
		}
	}
}

func TestParseQuiz_RejectsEmptyArray(t *testing.T) {
	if _, err := parseQuiz("[]"); apperr.KindOf(err) != apperr.Schema {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestParseFAQ_AcceptsValidItems(t *testing.T) {
	raw := `[{"question":"What is X?","answer":"X is Y."},{"question":"Why Z?","answer":"Because."}]`
	items, err := parseFAQ(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[1].Answer != "Because." {
		t.Fatalf("items not decoded: %+v", items)
	}
}

func TestParseFAQ_RejectsMissingAnswer(t *testing.T) {
	raw := `[{"question":"What is X?","answer":""}]`
	if _, err := parseFAQ(raw); apperr.KindOf(err) != apperr.Schema {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestSchemaFor_OnlyStructuredTypes(t *testing.T) {
	if cfg := schemaFor(models.AidQuiz); cfg == nil || cfg.ResponseMIMEType != "application/json" {
		t.Fatalf("quiz must request a JSON schema")
	}
	if cfg := schemaFor(models.AidFAQ); cfg == nil || cfg.ResponseSchema == nil {
		t.Fatalf("faq must request a JSON schema")
	}
	if schemaFor(models.AidSummary) != nil || schemaFor(models.AidMindMap) != nil {
		t.Fatalf("free-text types must not request a schema")
	}
}
