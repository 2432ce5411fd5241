package kafkaconsumer

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

type messageProcessor func(context.Context, *sarama.ConsumerMessage) error

type groupHandler struct {
	process messageProcessor
	// onAssign receives the claimed partitions of the topic; nil on cleanup.
	onAssign func([]int32)
}

func (h *groupHandler) Setup(s sarama.ConsumerGroupSession) error {
	if h.onAssign != nil {
		var parts []int32
		for _, p := range s.Claims() {
			parts = append(parts, p...)
		}
		if parts == nil {
			parts = []int32{}
		}
		h.onAssign(parts)
	}
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	if h.onAssign != nil {
		h.onAssign(nil)
	}
	return nil
}

// ConsumeClaim processes messages in partition order and marks each one only
// after it was applied.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("claim context done: %w", ctx.Err())
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return fmt.Errorf("process failed (topic=%s, part=%d, off=%d): %w",
					msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}
