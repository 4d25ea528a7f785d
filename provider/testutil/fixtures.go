package testutil

import (
	"horizon/model"
)

// TestMessages returns a sample conversation for testing
func TestMessages() []model.Message {
	return []model.Message{
		model.NewTextMessage(model.RoleUser, "Show me trending properties"),
		model.NewTextMessage(model.RoleAssistant, "Here are three listings that are popular right now."),
		model.NewTextMessage(model.RoleUser, "Tell me more about P2"),
	}
}

// SingleUserMessage returns a single user message for simple tests
func SingleUserMessage(content string) []model.Message {
	return []model.Message{model.NewTextMessage(model.RoleUser, content)}
}

// TrendingArgs is a valid listTrendingProperties argument payload.
const TrendingArgs = `{"properties":[` +
	`{"id":"P1","price":500000,"description":"Cozy 2-bed apartment near the park"},` +
	`{"id":"P2","price":750000,"description":"Modern loft downtown"},` +
	`{"id":"P3","price":1200000,"description":"Family house with garden"}]}`

// EventsArgs is a valid getRealEstateEvents argument payload.
const EventsArgs = `{"events":[` +
	`{"date":"2024-06-01","headline":"Mortgage rates dip","description":"Average 30-year rate falls below 6%."},` +
	`{"date":"2024-06-15","headline":"Housing expo","description":"Annual city housing expo opens."}]}`
