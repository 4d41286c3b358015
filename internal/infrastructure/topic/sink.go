// Package topic abstracts the append-only message topic the engine writes its
// compliance trail to. The engine only needs submission with an ordered
// acknowledgement; durability and consensus belong to the ledger behind the
// sink.
package topic

import (
	"context"
	"time"
)

// Ack acknowledges an accepted message with its position on the topic.
type Ack struct {
	SequenceNumber     uint64    `json:"sequence_number"`
	ConsensusTimestamp time.Time `json:"consensus_timestamp"`
}

// Sink accepts structured JSON records for a topic and acknowledges them in
// order. Submissions are awaited; a business operation does not return until
// its message is accepted.
type Sink interface {
	Submit(ctx context.Context, topicID, message string) (Ack, error)
}
