package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrBadMessage marks a delivery that can never be handled and should be
// dropped rather than requeued.
var ErrBadMessage = errors.New("bad review sync message")

// ReviewSyncMessage asks the worker to export one saved review. It carries
// only the ledger id and version; the worker reads the rest from storage.
type ReviewSyncMessage struct {
	ID       int64     `json:"id"`
	Version  int64     `json:"version"`
	QueuedAt time.Time `json:"queued_at"`
}

func NewReviewSyncMessage(id, version int64) *ReviewSyncMessage {
	return &ReviewSyncMessage{ID: id, Version: version, QueuedAt: time.Now().UTC()}
}

func (m *ReviewSyncMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeReviewSyncMessage parses a delivery body. Bodies that are not JSON or
// that name no ledger row wrap ErrBadMessage.
func DecodeReviewSyncMessage(body []byte) (*ReviewSyncMessage, error) {
	var m ReviewSyncMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if m.ID <= 0 {
		return nil, fmt.Errorf("%w: review id %d", ErrBadMessage, m.ID)
	}
	return &m, nil
}
