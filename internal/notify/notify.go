// Package notify turns marked-attendance events into notifications.
// Delivery transports (email, push) are external; the log notifier records
// what would have been sent.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"faceattend/internal/attendance"
)

// Event is the payload published to the queue when a mark is created.
type Event struct {
	RecordID  string            `json:"record_id"`
	OwnerID   string            `json:"owner_id"`
	Day       string            `json:"day"`
	Status    attendance.Status `json:"status"`
	Source    attendance.Source `json:"source"`
	Timestamp string            `json:"timestamp"`
}

// EncodeEvent serializes an event for the queue.
func EncodeEvent(rec attendance.Record) ([]byte, error) {
	return json.Marshal(Event{
		RecordID:  rec.ID,
		OwnerID:   rec.OwnerID,
		Day:       rec.Day,
		Status:    rec.Status,
		Source:    rec.Source,
		Timestamp: rec.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

// DecodeEvent parses a queue payload.
func DecodeEvent(body []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, fmt.Errorf("decode attendance event: %w", err)
	}
	return evt, nil
}

// Notifier delivers one attendance notification.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

// Notify logs the event.
func (LogNotifier) Notify(_ context.Context, evt Event) error {
	log.Printf("attendance marked: owner=%s day=%s status=%s source=%s record=%s",
		evt.OwnerID, evt.Day, evt.Status, evt.Source, evt.RecordID)
	return nil
}
