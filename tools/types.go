package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Name identifies a tool. The set is closed: the four model-facing tools plus
// the inquiry submission recorded when a user confirms an inquiry form.
type Name string

const (
	ListTrendingProperties  Name = "listTrendingProperties"
	ShowPropertyDetails     Name = "showPropertyDetails"
	ShowPropertyInquiryForm Name = "showPropertyInquiryForm"
	GetRealEstateEvents     Name = "getRealEstateEvents"
	SubmitPropertyInquiry   Name = "submitPropertyInquiry"
)

// InquiryStatusRequiresAction marks an inquiry form still waiting for the user.
const InquiryStatusRequiresAction = "requires_action"

type Property struct {
	ID          string  `json:"id"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

func (p Property) String() string {
	return fmt.Sprintf("Property ID: %s, Price: $%s, Description: %s", p.ID, FormatPrice(p.Price), p.Description)
}

type Event struct {
	Date        string `json:"date"`
	Headline    string `json:"headline"`
	Description string `json:"description"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event Date: %s, Headline: %s, Description: %s", e.Date, e.Headline, e.Description)
}

// Invocation is a validated tool call. The set of implementations is sealed
// to this package; callers match it with a type switch.
type Invocation interface {
	Tool() Name
	// Result is the payload recorded in the tool-result part.
	Result() any
	// Text is the plain-text rendering of the result.
	Text() string

	sealed()
}

type TrendingProperties struct {
	Properties []Property `json:"properties"`
}

type PropertyDetails struct {
	ID          string  `json:"id"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

type InquiryForm struct {
	PropertyID string `json:"propertyId"`
	UserID     string `json:"userId"`
}

type RealEstateEvents struct {
	Events []Event `json:"events"`
}

// InquirySubmission is recorded when the user confirms an inquiry form. It is
// never offered to the model.
type InquirySubmission struct {
	PropertyID string `json:"propertyId"`
	UserID     string `json:"userId"`
}

func (TrendingProperties) Tool() Name { return ListTrendingProperties }
func (PropertyDetails) Tool() Name    { return ShowPropertyDetails }
func (InquiryForm) Tool() Name        { return ShowPropertyInquiryForm }
func (RealEstateEvents) Tool() Name   { return GetRealEstateEvents }
func (InquirySubmission) Tool() Name  { return SubmitPropertyInquiry }

func (TrendingProperties) sealed() {}
func (PropertyDetails) sealed()    {}
func (InquiryForm) sealed()        {}
func (RealEstateEvents) sealed()   {}
func (InquirySubmission) sealed()  {}

func (t TrendingProperties) Result() any { return t.Properties }

func (t TrendingProperties) Text() string {
	lines := make([]string, len(t.Properties))
	for i, p := range t.Properties {
		lines[i] = p.String()
	}
	return strings.Join(lines, "\n")
}

func (d PropertyDetails) Property() Property {
	return Property{ID: d.ID, Price: d.Price, Description: d.Description}
}

func (d PropertyDetails) Result() any { return d.Property() }

func (d PropertyDetails) Text() string { return d.Property().String() }

// InquiryFormResult is the tool-result payload of an inquiry form.
type InquiryFormResult struct {
	PropertyID string `json:"propertyId"`
	UserID     string `json:"userId"`
	Status     string `json:"status,omitempty"`
}

func (f InquiryForm) Result() any {
	return InquiryFormResult{PropertyID: f.PropertyID, UserID: f.UserID, Status: InquiryStatusRequiresAction}
}

func (f InquiryForm) Text() string {
	return fmt.Sprintf("Submitting inquiry for property %s by user %s...", f.PropertyID, f.UserID)
}

func (e RealEstateEvents) Result() any { return e.Events }

func (e RealEstateEvents) Text() string {
	lines := make([]string, len(e.Events))
	for i, ev := range e.Events {
		lines[i] = ev.String()
	}
	return strings.Join(lines, "\n")
}

// InquiryConfirmation is the tool-result payload of an inquiry submission:
// the human-readable confirmation plus the machine-readable record.
type InquiryConfirmation struct {
	Message    string `json:"message"`
	PropertyID string `json:"propertyId"`
	UserID     string `json:"userId"`
}

func (s InquirySubmission) Result() any {
	return InquiryConfirmation{Message: s.Text(), PropertyID: s.PropertyID, UserID: s.UserID}
}

func (s InquirySubmission) Text() string {
	return ConfirmationMessage(s.PropertyID)
}

// ConfirmationMessage is the user-facing text for a submitted inquiry.
func ConfirmationMessage(propertyID string) string {
	return fmt.Sprintf("Your inquiry for property %s has been successfully submitted. Our team will get back to you soon.", propertyID)
}

// SubmissionNotice is the system record of who submitted an inquiry.
func SubmissionNotice(propertyID, userID string) string {
	return fmt.Sprintf("An inquiry for property %s has been submitted by user %s.", propertyID, userID)
}

// FormatPrice renders a price without trailing zeros: 500000, 1250.5.
func FormatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

// MarshalResult encodes the invocation's tool-result payload.
func MarshalResult(inv Invocation) (json.RawMessage, error) {
	b, err := json.Marshal(inv.Result())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s result: %w", inv.Tool(), err)
	}
	return b, nil
}

// MarshalArgs encodes the invocation's arguments as recorded in the tool-call part.
func MarshalArgs(inv Invocation) (json.RawMessage, error) {
	b, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s args: %w", inv.Tool(), err)
	}
	return b, nil
}
