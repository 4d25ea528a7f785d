package display

import (
	"horizon/conversation"
	"horizon/model"
	"horizon/tools"

	log "github.com/sirupsen/logrus"
)

// Derive renders a conversation snapshot. It depends only on conv, so two
// calls with the same snapshot return identical descriptors.
//
// System messages and assistant tool-call records render nothing; every
// tool-result renders with its tool's template. An inquiry form whose
// property was later submitted is marked submitted.
func Derive(conv conversation.Conversation) []Descriptor {
	submitted := submittedInquiries(conv.Messages)

	out := make([]Descriptor, 0, len(conv.Messages))
	for i, msg := range conv.Messages {
		id := ID(conv.ChatID, i)

		switch msg.Role {
		case model.RoleUser:
			out = append(out, Text(id, KindUser, msg.Content))
		case model.RoleAssistant:
			if msg.IsText() {
				out = append(out, Text(id, KindAssistant, msg.Content))
			}
		case model.RoleTool:
			for _, part := range msg.Parts {
				if part.Type != model.PartToolResult {
					continue
				}
				d := fromResult(id, part)
				if d.Inquiry != nil && submitted[d.Inquiry.PropertyID] {
					d.Inquiry.Status = InquiryStatusSubmitted
				}
				out = append(out, d)
			}
		}
	}
	return out
}

func fromResult(id string, part model.Part) Descriptor {
	inv, err := tools.ParseResult(part.ToolName, part.Result)
	if err != nil {
		log.WithError(err).WithField("tool", part.ToolName).Warn("cannot render tool result")
		return Error(id)
	}
	return FromInvocation(id, inv)
}

func submittedInquiries(msgs []model.Message) map[string]bool {
	out := map[string]bool{}
	for _, msg := range msgs {
		for _, part := range msg.Parts {
			if part.Type != model.PartToolResult || part.ToolName != string(tools.SubmitPropertyInquiry) {
				continue
			}
			if inv, err := tools.ParseResult(part.ToolName, part.Result); err == nil {
				out[inv.(tools.InquirySubmission).PropertyID] = true
			}
		}
	}
	return out
}
