package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"horizon/conversation"
	"horizon/display"
	"horizon/metrics"
	"horizon/model"
	"horizon/storage"
	"horizon/tools"

	log "github.com/sirupsen/logrus"
)

// ErrInvalidInquiry is returned when an inquiry lacks a property or user id.
var ErrInvalidInquiry = errors.New("inquiry needs a property id and a user id")

// InquirySink is the service confirmed inquiries are submitted to.
type InquirySink interface {
	SubmitInquiry(ctx context.Context, chatID, propertyID, userID string) error
}

// LogSink only logs inquiries.
type LogSink struct{}

func (LogSink) SubmitInquiry(ctx context.Context, chatID, propertyID, userID string) error {
	log.WithFields(log.Fields{
		"chat_id":     chatID,
		"property_id": propertyID,
		"user_id":     userID,
	}).Info("inquiry submitted")
	return nil
}

// StoreSink records inquiries in the chat store.
type StoreSink struct {
	Store storage.ChatStore
}

func (s StoreSink) SubmitInquiry(ctx context.Context, chatID, propertyID, userID string) error {
	return s.Store.RecordInquiry(ctx, storage.Inquiry{
		ID:          model.NewID(),
		ChatID:      chatID,
		PropertyID:  propertyID,
		UserID:      userID,
		SubmittedAt: time.Now(),
	})
}

// ConfirmInquiry submits the inquiry a form asked for. After the completion
// delay it hands the inquiry to the sink and then appends, in one step, the
// submission's tool call, its result and the two system notices. A sink
// failure appends nothing and is returned as is; there is no retry.
func (d *Dispatcher) ConfirmInquiry(ctx context.Context, h *conversation.Handle, propertyID, userID string, observe Observer) (display.Descriptor, error) {
	propertyID = strings.TrimSpace(propertyID)
	userID = strings.TrimSpace(userID)
	if propertyID == "" || userID == "" {
		return display.Descriptor{}, ErrInvalidInquiry
	}

	t := d.newTurn(h, observe)
	t.logger = t.logger.WithFields(log.Fields{"property_id": propertyID, "user_id": userID})
	defer d.commit(ctx, t)

	inv := tools.InquirySubmission{PropertyID: propertyID, UserID: userID}
	id := t.nextID(1)

	if err := d.await(ctx, t, id, inv.Tool()); err != nil {
		t.finish(metrics.OutcomeCancelled, display.Error(id))
		return display.Descriptor{}, err
	}

	if err := d.opts.Sink.SubmitInquiry(ctx, h.ChatID(), propertyID, userID); err != nil {
		t.logger.WithError(err).Error("inquiry submission failed")
		return t.finish(metrics.OutcomeError, display.Error(id)), fmt.Errorf("failed to submit inquiry: %w", err)
	}

	msgs, err := toolPair(inv, model.NewID())
	if err != nil {
		return t.finish(metrics.OutcomeError, display.Error(id)), err
	}
	msgs = append(msgs,
		model.NewTextMessage(model.RoleSystem, tools.ConfirmationMessage(propertyID)),
		model.NewTextMessage(model.RoleSystem, tools.SubmissionNotice(propertyID, userID)),
	)
	if err := h.Append(msgs...); err != nil {
		return t.finish(metrics.OutcomeError, display.Error(id)), fmt.Errorf("failed to record inquiry: %w", err)
	}

	t.logger.Info("inquiry recorded")
	return t.finish(metrics.OutcomeInquiry, display.FromInvocation(id, inv)), nil
}
