package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StudyLevel is the self-reported level the user studies at. Prompts are
// adapted to it.
type StudyLevel string

const (
	LevelPrimary      StudyLevel = "primary"
	LevelSecondary    StudyLevel = "secondary"
	LevelUniversity   StudyLevel = "university"
	LevelProfessional StudyLevel = "professional"
	LevelSelfTaught   StudyLevel = "self-taught"
)

// Language is the user's preferred content language.
type Language string

const (
	LangSpanish    Language = "es"
	LangEnglish    Language = "en"
	LangPortuguese Language = "pt"
	LangFrench     Language = "fr"
)

// UserProfile holds the per-user study preferences persisted in MongoDB.
type UserProfile struct {
	StudyLevel StudyLevel `json:"study_level" bson:"study_level"`
	Language   Language   `json:"language"    bson:"language"`
}

// DefaultProfile is written on first access for a user with no saved profile.
func DefaultProfile() UserProfile {
	return UserProfile{StudyLevel: LevelUniversity, Language: LangSpanish}
}

// Valid reports whether both enum fields hold known values.
func (p UserProfile) Valid() bool {
	switch p.StudyLevel {
	case LevelPrimary, LevelSecondary, LevelUniversity, LevelProfessional, LevelSelfTaught:
	default:
		return false
	}
	switch p.Language {
	case LangSpanish, LangEnglish, LangPortuguese, LangFrench:
		return true
	}
	return false
}

// AidType selects the prompt template and expected output shape of a
// generation request.
type AidType string

const (
	AidSummary AidType = "summary"
	AidQuiz    AidType = "quiz"
	AidFAQ     AidType = "faq"
	AidMindMap AidType = "mindmap_description"
)

// Valid reports whether t is one of the four supported aid types.
func (t AidType) Valid() bool {
	switch t {
	case AidSummary, AidQuiz, AidFAQ, AidMindMap:
		return true
	}
	return false
}

// QuizItem is one multiple-choice question. Options always has exactly four
// entries and CorrectAnswerIndex points into it.
type QuizItem struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
	Explanation        string   `json:"explanation"`
}

// FAQItem is one question/answer pair of a generated study guide.
type FAQItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// StudyAid is the result of one generation request. Exactly one payload field
// is set, selected by Type. For AidMindMap the terminal form is a stored
// image, referenced by ImageKey.
type StudyAid struct {
	Type     AidType    `json:"type"`
	Summary  string     `json:"summary,omitempty"`
	Quiz     []QuizItem `json:"quiz,omitempty"`
	FAQ      []FAQItem  `json:"faq,omitempty"`
	ImageKey string     `json:"image_key,omitempty"`
}

// HistoryRecord is the append-only audit entry written after each successful
// generation. The workflow never reads these back.
type HistoryRecord struct {
	ID                primitive.ObjectID `json:"id"                  bson:"_id,omitempty"`
	AppID             string             `json:"-"                   bson:"app_id"`
	UserID            string             `json:"user_id"             bson:"user_id"`
	OriginalImageName string             `json:"original_image_name" bson:"original_image_name"`
	ExtractedText     string             `json:"extracted_text"      bson:"extracted_text"`
	AidType           AidType            `json:"aid_type"            bson:"aid_type"`
	Result            string             `json:"result"              bson:"result"`
	StudyLevel        StudyLevel         `json:"study_level"         bson:"study_level"`
	Language          Language           `json:"language"            bson:"language"`
	PromptUsed        string             `json:"prompt_used"         bson:"prompt_used"`
	CreatedAt         time.Time          `json:"created_at"          bson:"created_at"`
}
