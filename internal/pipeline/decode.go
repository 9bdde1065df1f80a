package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
	"github.com/google/uuid"
)

// MessageDecoder implements Decoder for the JSON observation payload.
type MessageDecoder struct{}

// NewDecoder creates a MessageDecoder.
func NewDecoder() MessageDecoder {
	return MessageDecoder{}
}

// Decode parses the payload and derives the observation ID from the message
// position, so a redelivered message is stored once.
func (MessageDecoder) Decode(_ context.Context, raw domain.RawMessage) (domain.NewObservation, error) {
	obs, err := domain.ParseObservationMessage(raw)
	if err != nil {
		return domain.NewObservation{}, err
	}
	obs.ID = messageID(raw)
	return obs, nil
}

// messageID is a name-based UUID of topic, partition and offset. Messages
// without a topic get no ID and the store assigns one.
func messageID(raw domain.RawMessage) string {
	if raw.Topic == "" {
		return ""
	}
	name := fmt.Sprintf("kafka://%s/%d/%d", raw.Topic, raw.Partition, raw.Offset)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
