package display

import (
	"encoding/json"
	"reflect"
	"testing"

	"horizon/conversation"
	"horizon/model"
	"horizon/tools"
)

func sampleConversation(t *testing.T) conversation.Conversation {
	t.Helper()

	details := tools.PropertyDetails{ID: "P123", Price: 500000, Description: "Sunny flat"}
	form := tools.InquiryForm{PropertyID: "P123", UserID: "U1"}
	submission := tools.InquirySubmission{PropertyID: "P123", UserID: "U1"}

	pair := func(inv tools.Invocation, callID string) []model.Message {
		args, err := tools.MarshalArgs(inv)
		if err != nil {
			t.Fatal(err)
		}
		result, err := tools.MarshalResult(inv)
		if err != nil {
			t.Fatal(err)
		}
		return []model.Message{
			model.NewToolCallMessage(string(inv.Tool()), callID, args),
			model.NewToolResultMessage(string(inv.Tool()), callID, result),
		}
	}

	msgs := []model.Message{
		model.NewTextMessage(model.RoleSystem, "hidden"),
		model.NewTextMessage(model.RoleUser, "show me property P123"),
	}
	msgs = append(msgs, pair(details, "c1")...)
	msgs = append(msgs, model.NewTextMessage(model.RoleUser, "I want to inquire"))
	msgs = append(msgs, pair(form, "c2")...)
	msgs = append(msgs, pair(submission, "c3")...)
	msgs = append(msgs,
		model.NewTextMessage(model.RoleSystem, tools.ConfirmationMessage("P123")),
		model.NewTextMessage(model.RoleAssistant, "Anything else?"),
	)
	return conversation.Conversation{ChatID: "chat", Messages: msgs}
}

func TestDerive(t *testing.T) {
	got := Derive(sampleConversation(t))

	wantKinds := []Kind{KindUser, KindPropertyCard, KindUser, KindInquiryForm, KindInquiryConfirmation, KindAssistant}
	if len(got) != len(wantKinds) {
		t.Fatalf("got %d descriptors, want %d: %+v", len(got), len(wantKinds), got)
	}
	for i, k := range wantKinds {
		if got[i].Kind != k {
			t.Errorf("descriptor %d kind = %s, want %s", i, got[i].Kind, k)
		}
	}

	if got[0].ID != "chat-1" {
		t.Errorf("first id = %s, want chat-1", got[0].ID)
	}
	if got[1].Property == nil || got[1].Property.ID != "P123" {
		t.Errorf("property card = %+v", got[1].Property)
	}
	if got[3].Inquiry == nil || got[3].Inquiry.Status != InquiryStatusSubmitted {
		t.Errorf("inquiry form = %+v, want submitted", got[3].Inquiry)
	}
	if got[4].Confirmation == nil || got[4].Confirmation.Message != tools.ConfirmationMessage("P123") {
		t.Errorf("confirmation = %+v", got[4].Confirmation)
	}
}

func TestDeriveIsPure(t *testing.T) {
	conv := sampleConversation(t)
	first := Derive(conv)
	second := Derive(conv)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("deriving twice from the same snapshot differed")
	}

	// mutating one result must not reach the other
	first[1].Property.ID = "changed"
	if second[1].Property.ID != "P123" {
		t.Error("descriptors share state")
	}
}

func TestDeriveBadResult(t *testing.T) {
	conv := conversation.Conversation{
		ChatID: "c",
		Messages: []model.Message{
			model.NewToolResultMessage("showPropertyDetails", "x", json.RawMessage(`"not an object"`)),
			model.NewToolResultMessage("mystery", "y", json.RawMessage(`{}`)),
		},
	}
	got := Derive(conv)
	if len(got) != 2 || got[0].Kind != KindError || got[1].Kind != KindError {
		t.Errorf("got %+v, want two error descriptors", got)
	}
}

func TestFromInvocation(t *testing.T) {
	tests := []struct {
		name string
		inv  tools.Invocation
		kind Kind
		text string
	}{
		{
			name: "trending",
			inv:  tools.TrendingProperties{Properties: []tools.Property{{ID: "P1", Price: 1, Description: "a"}}},
			kind: KindPropertyList,
			text: "Property ID: P1, Price: $1, Description: a",
		},
		{
			name: "events",
			inv:  tools.RealEstateEvents{Events: []tools.Event{{Date: "2024-01-01", Headline: "h", Description: "d"}}},
			kind: KindEvents,
			text: "Event Date: 2024-01-01, Headline: h, Description: d",
		},
		{
			name: "inquiry form",
			inv:  tools.InquiryForm{PropertyID: "P1", UserID: "U1"},
			kind: KindInquiryForm,
			text: "Submitting inquiry for property P1 by user U1...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := FromInvocation("id", tt.inv)
			if d.Kind != tt.kind || d.Text != tt.text {
				t.Errorf("got kind %s text %q", d.Kind, d.Text)
			}
			if d.Tool != tt.inv.Tool() {
				t.Errorf("tool = %s", d.Tool)
			}
		})
	}

	form := FromInvocation("id", tools.InquiryForm{PropertyID: "P1", UserID: "U1"})
	if form.Inquiry.Status != tools.InquiryStatusRequiresAction {
		t.Errorf("fresh form status = %q", form.Inquiry.Status)
	}
}

func TestSkeleton(t *testing.T) {
	d := Skeleton("s", tools.GetRealEstateEvents)
	if d.Kind != KindSkeleton || d.Tool != tools.GetRealEstateEvents || d.Text == "" {
		t.Errorf("got %+v", d)
	}
}
