package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"billminder/internal/notify"
)

// ReminderDeliveredMessage is published when a reminder fires.
type ReminderDeliveredMessage struct {
	NotificationID string    `json:"notificationId"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Category       string    `json:"category"`
	TriggerAt      time.Time `json:"triggerAt"`
	Presentation   []string  `json:"presentation,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewReminderDeliveredMessage(req notify.Request, opts notify.PresentationOptions) *ReminderDeliveredMessage {
	return &ReminderDeliveredMessage{
		NotificationID: req.ID,
		Title:          req.Title,
		Body:           req.Body,
		Category:       req.Category,
		TriggerAt:      req.TriggerAt,
		Presentation:   opts.Strings(),
		Timestamp:      time.Now(),
	}
}

func (m *ReminderDeliveredMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BillsChangedMessage carries no bill data; consumers re-read what they need.
type BillsChangedMessage struct {
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBillsChangedMessage(count int) *BillsChangedMessage {
	return &BillsChangedMessage{Count: count, Timestamp: time.Now()}
}

func (m *BillsChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ResponseMessage is a user action on a delivered reminder, received from
// the responses queue.
type ResponseMessage struct {
	NotificationID string    `json:"notificationId"`
	Action         string    `json:"action"`
	Timestamp      time.Time `json:"timestamp"`
}

var errMissingNotificationID = errors.New("response without notification id")

// ResponseMessageFromJSON decodes and checks a response message.
func ResponseMessageFromJSON(data []byte) (*ResponseMessage, error) {
	var msg ResponseMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.NotificationID == "" {
		return nil, errMissingNotificationID
	}
	return &msg, nil
}

func (m *ResponseMessage) Response() notify.Response {
	return notify.Response{NotificationID: m.NotificationID, Action: m.Action}
}
