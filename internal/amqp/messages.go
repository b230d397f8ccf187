package amqp

import (
	"encoding/json"
	"time"
)

// ExpenseChangedMessage signals that an expense was created or had its labels
// replaced. It carries only the id; the worker fetches the full expense from
// the database so the export always reflects the latest state.
type ExpenseChangedMessage struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExpenseChangedMessage creates a change message for the given expense id.
func NewExpenseChangedMessage(id int64) *ExpenseChangedMessage {
	return &ExpenseChangedMessage{
		ID:        id,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *ExpenseChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseChangedMessageFromJSON creates a message from JSON bytes.
func ExpenseChangedMessageFromJSON(data []byte) (*ExpenseChangedMessage, error) {
	var msg ExpenseChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
