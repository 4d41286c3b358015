package topic

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/agentmesh/compliance-engine/internal/domain/errors"
)

// MemorySink is a process-local Sink. It keeps per-topic ordered message
// slices with monotonic sequence numbers, which is all the engine and its
// tests need from a ledger.
type MemorySink struct {
	logger  *zap.Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	seqs     map[string]uint64
	messages map[string][]string
}

// MemorySinkOption configures a MemorySink.
type MemorySinkOption func(*MemorySink)

// WithRateLimit throttles submissions to model the throughput cap of the
// ledger the sink stands in for.
func WithRateLimit(perSecond float64, burst int) MemorySinkOption {
	return func(s *MemorySink) {
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewMemorySink creates an unbounded in-memory sink unless a rate limit
// option is supplied.
func NewMemorySink(logger *zap.Logger, opts ...MemorySinkOption) *MemorySink {
	s := &MemorySink{
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Inf, 0),
		seqs:     make(map[string]uint64),
		messages: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit appends the message to the topic and acknowledges it with the next
// sequence number.
func (s *MemorySink) Submit(ctx context.Context, topicID, message string) (Ack, error) {
	if topicID == "" {
		return Ack{}, errors.NewValidationError("INVALID_TOPIC", "topic id is required")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return Ack{}, errors.NewExternalError("topic", "submission cancelled").WithCause(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seqs[topicID]++
	s.messages[topicID] = append(s.messages[topicID], message)
	ack := Ack{
		SequenceNumber:     s.seqs[topicID],
		ConsensusTimestamp: time.Now().UTC(),
	}

	s.logger.Debug("message accepted",
		zap.String("topic_id", topicID),
		zap.Uint64("sequence_number", ack.SequenceNumber),
	)
	return ack, nil
}

// Messages returns a copy of the ordered messages accepted for a topic.
func (s *MemorySink) Messages(topicID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages[topicID]))
	copy(out, s.messages[topicID])
	return out
}
