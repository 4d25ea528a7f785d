package ui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"horizon/display"
	"horizon/tools"
)

// maxCardWidth keeps cards readable on very wide terminals.
const maxCardWidth = 72

func cardWidth(width int) int {
	w := width - 4
	if w > maxCardWidth {
		w = maxCardWidth
	}
	if w < 24 {
		w = 24
	}
	return w
}

// renderCard draws the structured descriptor kinds. Text kinds are handled
// by the caller since assistant text goes through markdown.
func renderCard(d display.Descriptor, width int) string {
	w := cardWidth(width)
	switch d.Kind {
	case display.KindPropertyList:
		return renderPropertyList(d.Properties, w)
	case display.KindPropertyCard:
		if d.Property != nil {
			return renderPropertyCard(*d.Property, w)
		}
	case display.KindInquiryForm:
		if d.Inquiry != nil {
			return renderInquiryForm(*d.Inquiry, w)
		}
	case display.KindEvents:
		return renderEvents(d.Events, w)
	case display.KindInquiryConfirmation:
		if d.Confirmation != nil {
			return renderConfirmation(*d.Confirmation, w)
		}
	case display.KindSkeleton:
		return SkeletonStyle.Render("◌ " + d.Text)
	case display.KindError:
		return ErrorStyle.Render("✗ " + d.Text)
	}
	return wordWrapWithIndent(d.Text, "", w)
}

func renderPropertyList(props []tools.Property, w int) string {
	if len(props) == 0 {
		return CardStyle.Width(w).Render(DimStyle.Render("No trending properties right now."))
	}

	inner := w - 4
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Trending properties"))
	for _, p := range props {
		price := "$" + tools.FormatPrice(p.Price)
		id := HighlightStyle.Render(p.ID)
		gap := inner - runewidth.StringWidth(p.ID) - runewidth.StringWidth(price)
		if gap < 1 {
			gap = 1
		}
		b.WriteString("\n\n")
		b.WriteString(id + strings.Repeat(" ", gap) + PriceStyle.Render(price))
		b.WriteString("\n")
		b.WriteString(runewidth.Truncate(p.Description, inner, "…"))
	}
	return CardStyle.Width(w).Render(b.String())
}

func renderPropertyCard(p tools.Property, w int) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Property ") + HighlightStyle.Render(p.ID))
	b.WriteString("\n")
	b.WriteString(PriceStyle.Render("$" + tools.FormatPrice(p.Price)))
	b.WriteString("\n\n")
	b.WriteString(wordWrapWithIndent(p.Description, "", w-4))
	return CardStyle.Width(w).Render(b.String())
}

func renderInquiryForm(f tools.InquiryFormResult, w int) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Property inquiry"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n", DimStyle.Render("Property:"), f.PropertyID))
	b.WriteString(fmt.Sprintf("%s %s\n\n", DimStyle.Render("User:    "), f.UserID))

	if f.Status == display.InquiryStatusSubmitted {
		b.WriteString(UserStyle.Render("✓ Submitted"))
		return DoneCardStyle.Width(w).Render(b.String())
	}
	b.WriteString(SelectedStyle.Render("Type /confirm to send this inquiry"))
	return ActionCardStyle.Width(w).Render(b.String())
}

func renderEvents(events []tools.Event, w int) string {
	if len(events) == 0 {
		return CardStyle.Width(w).Render(DimStyle.Render("No upcoming real estate events."))
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Real estate events"))
	for _, e := range events {
		b.WriteString("\n\n")
		b.WriteString(DimStyle.Render(e.Date) + "  " + HighlightStyle.Render(e.Headline))
		if e.Description != "" {
			b.WriteString("\n")
			b.WriteString(wordWrapWithIndent(e.Description, "", w-4))
		}
	}
	return CardStyle.Width(w).Render(b.String())
}

func renderConfirmation(c tools.InquiryConfirmation, w int) string {
	body := UserStyle.Render("✓ Inquiry sent") + "\n" + wordWrapWithIndent(c.Message, "", w-4)
	return DoneCardStyle.Width(w).Render(body)
}
