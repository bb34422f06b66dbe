package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"arcreceipts/internal/core"
)

// ReceiptCreatedMessage announces a receipt the head watcher observed.
// Receipt carries the normalized record so consumers need no chain access;
// a consumer that receives it without one refetches by ReceiptID.
type ReceiptCreatedMessage struct {
	ReceiptID uint64        `json:"receiptId"`
	Receipt   *core.Receipt `json:"receipt,omitempty"`
	TxHash    string        `json:"txHash,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewReceiptCreatedMessage wraps a normalized receipt.
func NewReceiptCreatedMessage(r core.Receipt) *ReceiptCreatedMessage {
	return &ReceiptCreatedMessage{
		ReceiptID: r.ID,
		Receipt:   &r,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReceiptCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReceiptCreatedMessageFromJSON decodes a message. A zero receipt id is rejected.
func ReceiptCreatedMessageFromJSON(data []byte) (*ReceiptCreatedMessage, error) {
	var msg ReceiptCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ReceiptID == 0 {
		return nil, fmt.Errorf("message without receipt id")
	}
	if msg.Receipt != nil && msg.Receipt.ID != msg.ReceiptID {
		return nil, fmt.Errorf("receipt id %d does not match message id %d", msg.Receipt.ID, msg.ReceiptID)
	}
	return &msg, nil
}
