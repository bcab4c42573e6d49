package webhook

import (
	"strconv"
	"strings"
	"time"

	"github.com/unclebandit/waleopard-backend/internal/model"
)

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	KindUnrecognized EventKind = iota
	KindInboundMessage
	KindStatusUpdate
)

func (k EventKind) String() string {
	switch k {
	case KindInboundMessage:
		return "inbound_message"
	case KindStatusUpdate:
		return "status_update"
	}
	return "unrecognized"
}

// Event is the classifier's output: a tagged union over the two pipelines.
// Exactly one of Inbound/Status is set for the recognized kinds; Reason
// explains an unrecognized element so the caller can log and move on.
type Event struct {
	Kind    EventKind
	Inbound *model.InboundEvent
	Status  *model.DeliveryStatusEvent
	Reason  string
}

// ClassifyValue fans one change value out into per-element events. Malformed
// elements become KindUnrecognized instead of aborting their siblings. A
// value carrying both lists (the provider says this never happens) yields
// events for both.
func ClassifyValue(v ChangeValue) []Event {
	events := make([]Event, 0, len(v.Messages)+len(v.Statuses))

	names := profileNames(v.Contacts)

	for _, m := range v.Messages {
		if m.ID == "" || m.From == "" {
			events = append(events, Event{Kind: KindUnrecognized, Reason: "message missing id or sender"})
			continue
		}
		events = append(events, Event{
			Kind: KindInboundMessage,
			Inbound: &model.InboundEvent{
				MessageID:   m.ID,
				FromAddress: m.From,
				ChannelID:   v.Metadata.PhoneNumberID,
				MsgType:     m.Type,
				BodySummary: summarize(m),
				ProfileName: names[m.From],
				OccurredAt:  parseTimestamp(m.Timestamp),
			},
		})
	}

	for _, s := range v.Statuses {
		status := model.DeliveryStatus(s.Status)
		if s.ID == "" || !status.Valid() {
			events = append(events, Event{Kind: KindUnrecognized, Reason: "status missing id or unknown state " + s.Status})
			continue
		}
		events = append(events, Event{
			Kind: KindStatusUpdate,
			Status: &model.DeliveryStatusEvent{
				MessageID:   s.ID,
				NewStatus:   status,
				OccurredAt:  parseTimestamp(s.Timestamp),
				ErrorDetail: errorDetail(s.Errors),
			},
		})
	}

	return events
}

// summarize produces the one-line note body stored on the contact. Text
// bodies are truncated on a rune boundary so a multi-byte character is never
// split; other message kinds keep just their type.
func summarize(m Message) string {
	if m.Type == "text" && m.Text != nil {
		body := strings.TrimSpace(m.Text.Body)
		if runes := []rune(body); len(runes) > 280 {
			body = string(runes[:277]) + "..."
		}
		return body
	}
	return "[" + m.Type + " message]"
}

func profileNames(contacts []WaContact) map[string]string {
	if len(contacts) == 0 {
		return nil
	}
	names := make(map[string]string, len(contacts))
	for _, c := range contacts {
		if c.WaID != "" && c.Profile.Name != "" {
			names[c.WaID] = c.Profile.Name
		}
	}
	return names
}

func errorDetail(errs []StatusError) string {
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, strconv.Itoa(e.Code)+" "+e.Title)
	}
	return strings.Join(parts, "; ")
}

// parseTimestamp decodes the provider's unix-seconds string; a missing or
// garbled value falls back to the receive time.
func parseTimestamp(ts string) time.Time {
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
