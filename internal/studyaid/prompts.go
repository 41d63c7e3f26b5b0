package studyaid

import (
	"fmt"

	"github.com/studysparkai/backend/internal/models"
)

// Prompt templates. Every downstream instruction interpolates the user's
// study level and preferred language so the model adapts register and tongue.

func extractionPrompt(lang models.Language) string {
	return fmt.Sprintf("Extract the text from this image. The text is study material "+
		"written in language '%s'. If you detect a table or a particular structure, "+
		"try to preserve it. Return only the extracted text.", lang)
}

func basePrompt(profile models.UserProfile, extractedText string) string {
	return fmt.Sprintf("You are an expert study assistant. The user studies at the "+
		"'%s' level and prefers content in language '%s'.\n\nBase study material:\n"+
		"\"\"\"%s\"\"\"\n\n", profile.StudyLevel, profile.Language, extractedText)
}

func aidPrompt(t models.AidType, profile models.UserProfile, extractedText string) string {
	base := basePrompt(profile, extractedText)
	switch t {
	case models.AidSummary:
		return base + "Please generate a concise, clear summary of this material, " +
			"highlighting the most important points."
	case models.AidQuiz:
		return base + "Create an interactive quiz of 5 multiple-choice questions " +
			"(4 options each, only one correct) based on the material. For each " +
			"question, clearly indicate which option is correct and provide a brief " +
			"explanation of why that answer is correct."
	case models.AidFAQ:
		return base + "Generate a study guide in FAQ format. Create at least 5-7 key " +
			"questions a student might have about this material, together with " +
			"concise, clear answers."
	case models.AidMindMap:
		return base + "Describe in detail the structure and content of a mind map " +
			"based on this material. Identify the central concept, the main topics " +
			"branching from it, and the subtopics or key ideas for each main topic. " +
			"Specify the relationships between concepts. This description will be " +
			"used to generate an image of the mind map, so be very specific about " +
			"hierarchy and connections."
	}
	return base
}

func mindMapImagePrompt(description string) string {
	return fmt.Sprintf("Generate an image of a mind map that visually represents the "+
		"following description. Make it clear, organized and visually appealing. "+
		"Description: %q", description)
}

func conceptPrompt(profile models.UserProfile, extractedText, concept string) string {
	return fmt.Sprintf("You are an expert teacher. Based on the following study "+
		"material, explain the key concept %q clearly and concisely. Adapt the "+
		"explanation to a '%s' study level and to language '%s'.\n\nStudy material:\n"+
		"\"\"\"%s\"\"\"\n\nExplanation of %q:",
		concept, profile.StudyLevel, profile.Language, extractedText, concept)
}

func examplesPrompt(profile models.UserProfile, extractedText string) string {
	return fmt.Sprintf("You are a creative educator. Based on the following study "+
		"material, generate 2-3 practical examples or real-world applications of the "+
		"main concepts discussed. Make the examples relevant for a '%s' study level "+
		"and in language '%s'.\n\nStudy material:\n\"\"\"%s\"\"\"\n\nPractical examples:",
		profile.StudyLevel, profile.Language, extractedText)
}
