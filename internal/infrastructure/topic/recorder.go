package topic

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentmesh/compliance-engine/internal/domain/errors"
)

// Recorder binds a sink to one topic and operator, frames every emission in
// the protocol envelope, and keeps the ordered log of what it emitted.
// Managers expose that log as their externally observable trace.
type Recorder struct {
	logger     *zap.Logger
	sink       Sink
	topicID    string
	operatorID string

	mu       sync.Mutex
	messages []string
}

// NewRecorder creates a recorder publishing to topicID on behalf of
// operatorID.
func NewRecorder(logger *zap.Logger, sink Sink, topicID, operatorID string) *Recorder {
	return &Recorder{
		logger:     logger,
		sink:       sink,
		topicID:    topicID,
		operatorID: operatorID,
	}
}

// TopicID returns the topic the recorder publishes to.
func (r *Recorder) TopicID() string {
	return r.topicID
}

// Publish frames the operation fields in the protocol envelope, submits the
// message, and appends it to the local log once accepted. Submission is
// awaited under the lock so log order always matches call order.
func (r *Recorder) Publish(ctx context.Context, op string, fields map[string]interface{}) (Ack, error) {
	env := Envelope{
		Op:         op,
		OperatorID: r.operatorID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Fields:     fields,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return Ack{}, errors.NewInternalError("failed to marshal topic message").WithCause(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ack, err := r.sink.Submit(ctx, r.topicID, string(raw))
	if err != nil {
		r.logger.Error("topic submission failed",
			zap.String("topic_id", r.topicID),
			zap.String("op", op),
			zap.Error(err),
		)
		return Ack{}, err
	}
	r.messages = append(r.messages, string(raw))
	return ack, nil
}

// Messages returns a copy of every message published, in emission order.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}
