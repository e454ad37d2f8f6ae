package gemini

// analysisSchema defines the structure expected from the model for
// semantic analysis responses. The model is instructed to return JSON
// matching this shape.
type analysisSchema struct {
	// Summary is a short plain-language recap of the note.
	Summary string `json:"summary"`

	// Sentiment is the overall tone: positive, negative, neutral, or mixed.
	Sentiment string `json:"sentiment"`

	// Topics are the subjects the note touches on.
	Topics []string `json:"topics"`

	// ActionItems are concrete follow-ups surfaced from the note.
	ActionItems []string `json:"action_items"`
}

// promptData is the data structure passed to the analysis prompt template.
type promptData struct {
	// Transcription is the text to analyze.
	Transcription string

	// ContextHint carries optional note metadata for the model.
	ContextHint string
}
