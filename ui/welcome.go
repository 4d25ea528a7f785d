package ui

import (
	"strings"
)

var welcomeParagraphs = []string{
	"Horizon Estates is your gateway to discovering premium real estate opportunities. Whether you are buying, selling, or just exploring, this assistant is here to help every step of the way.",
	"Ready to explore? Start by asking about trending properties, recent real estate events, or specific property details.",
}

var welcomeExamples = []string{
	"Show me trending properties",
	"Tell me more about property P123",
	"I'd like to inquire about property P123",
	"Any recent real estate events?",
}

// welcomeText is shown while the chat is still empty.
func welcomeText(width int) string {
	w := cardWidth(width)

	var b strings.Builder
	b.WriteString(UserStyle.Render("Welcome to Horizon Estates!"))
	for _, p := range welcomeParagraphs {
		b.WriteString("\n\n")
		b.WriteString(wordWrapWithIndent(p, "", w-4))
	}
	b.WriteString("\n\n")
	b.WriteString(DimStyle.Render("Try:"))
	for _, ex := range welcomeExamples {
		b.WriteString("\n  ")
		b.WriteString(AssistantStyle.Render("› " + ex))
	}
	return CardStyle.Width(w).Render(b.String())
}
