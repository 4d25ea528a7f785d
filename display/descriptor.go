// Package display turns conversation state into render descriptors.
//
// Descriptors are never stored. The terminal UI and the HTTP API derive them
// from a conversation snapshot whenever they draw, and the dispatcher returns
// one for the turn it just finished.
package display

import (
	"fmt"

	"horizon/tools"
)

// Kind tags a descriptor with the template that renders it.
type Kind string

const (
	KindUser                Kind = "user"
	KindAssistant           Kind = "assistant"
	KindPropertyList        Kind = "propertyList"
	KindPropertyCard        Kind = "propertyCard"
	KindInquiryForm         Kind = "inquiryForm"
	KindEvents              Kind = "events"
	KindInquiryConfirmation Kind = "inquiryConfirmation"
	KindSkeleton            Kind = "skeleton"
	KindError               Kind = "error"
)

// GenericErrorText is shown when a turn fails in a way the user cannot fix.
const GenericErrorText = "Something went wrong. Please try again."

// InquiryStatusSubmitted marks an inquiry form the user has already confirmed.
const InquiryStatusSubmitted = "submitted"

// Descriptor says what fragment to show. Text is always set and is the
// plain rendering of any structured payload.
type Descriptor struct {
	ID           string                     `json:"id"`
	Kind         Kind                       `json:"kind"`
	Tool         tools.Name                 `json:"tool,omitempty"`
	Text         string                     `json:"text"`
	Properties   []tools.Property           `json:"properties,omitempty"`
	Property     *tools.Property            `json:"property,omitempty"`
	Inquiry      *tools.InquiryFormResult   `json:"inquiry,omitempty"`
	Events       []tools.Event              `json:"events,omitempty"`
	Confirmation *tools.InquiryConfirmation `json:"confirmation,omitempty"`
}

// ID builds the descriptor id for the message at index in chatID's log.
func ID(chatID string, index int) string {
	return fmt.Sprintf("%s-%d", chatID, index)
}

// Text builds a plain user or assistant descriptor.
func Text(id string, kind Kind, text string) Descriptor {
	return Descriptor{ID: id, Kind: kind, Text: text}
}

// Error builds the generic failure descriptor.
func Error(id string) Descriptor {
	return Descriptor{ID: id, Kind: KindError, Text: GenericErrorText}
}

// Skeleton builds the loading placeholder shown while a tool runs.
func Skeleton(id string, tool tools.Name) Descriptor {
	return Descriptor{ID: id, Kind: KindSkeleton, Tool: tool, Text: skeletonText(tool)}
}

func skeletonText(tool tools.Name) string {
	switch tool {
	case tools.ListTrendingProperties:
		return "Loading trending properties..."
	case tools.ShowPropertyDetails:
		return "Loading property details..."
	case tools.ShowPropertyInquiryForm:
		return "Preparing inquiry form..."
	case tools.GetRealEstateEvents:
		return "Loading real estate events..."
	case tools.SubmitPropertyInquiry:
		return "Submitting inquiry..."
	}
	return "Loading..."
}

// FromInvocation selects the template for a validated tool invocation.
func FromInvocation(id string, inv tools.Invocation) Descriptor {
	d := Descriptor{ID: id, Text: inv.Text(), Tool: inv.Tool()}

	switch v := inv.(type) {
	case tools.TrendingProperties:
		d.Kind = KindPropertyList
		d.Properties = append([]tools.Property(nil), v.Properties...)
	case tools.PropertyDetails:
		p := v.Property()
		d.Kind = KindPropertyCard
		d.Property = &p
	case tools.InquiryForm:
		r := v.Result().(tools.InquiryFormResult)
		d.Kind = KindInquiryForm
		d.Inquiry = &r
	case tools.RealEstateEvents:
		d.Kind = KindEvents
		d.Events = append([]tools.Event(nil), v.Events...)
	case tools.InquirySubmission:
		c := v.Result().(tools.InquiryConfirmation)
		d.Kind = KindInquiryConfirmation
		d.Confirmation = &c
	default:
		return Error(id)
	}
	return d
}
