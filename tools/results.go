package tools

import (
	"encoding/json"
	"fmt"
)

// ParseResult decodes a recorded tool-result payload back into the
// invocation that produced it. It accepts submitPropertyInquiry, which Parse
// does not since the model is never offered that tool.
func ParseResult(name string, result json.RawMessage) (Invocation, error) {
	switch Name(name) {
	case ListTrendingProperties:
		var props []Property
		if err := json.Unmarshal(result, &props); err != nil {
			return nil, resultError(name, err)
		}
		return TrendingProperties{Properties: props}, nil
	case ShowPropertyDetails:
		var p Property
		if err := json.Unmarshal(result, &p); err != nil {
			return nil, resultError(name, err)
		}
		return PropertyDetails{ID: p.ID, Price: p.Price, Description: p.Description}, nil
	case ShowPropertyInquiryForm:
		var f InquiryFormResult
		if err := json.Unmarshal(result, &f); err != nil {
			return nil, resultError(name, err)
		}
		return InquiryForm{PropertyID: f.PropertyID, UserID: f.UserID}, nil
	case GetRealEstateEvents:
		var events []Event
		if err := json.Unmarshal(result, &events); err != nil {
			return nil, resultError(name, err)
		}
		return RealEstateEvents{Events: events}, nil
	case SubmitPropertyInquiry:
		var c InquiryConfirmation
		if err := json.Unmarshal(result, &c); err != nil {
			return nil, resultError(name, err)
		}
		return InquirySubmission{PropertyID: c.PropertyID, UserID: c.UserID}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
}

func resultError(name string, err error) error {
	return fmt.Errorf("failed to decode %s result: %w", name, err)
}
