package model

// Section is the skill area a question belongs to.
type Section string

const (
	SectionListening   Section = "listening"
	SectionReading     Section = "reading"
	SectionLanguageUse Section = "language_use"
	SectionWriting     Section = "writing"
	SectionSpeaking    Section = "speaking"
)
