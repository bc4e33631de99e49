package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ErrApprovalNotFound is returned by Resolve when no approval is pending for
// the given tool call id, either because it never existed or because it
// already expired.
var ErrApprovalNotFound = fmt.Errorf("no pending approval for tool call")

type pendingApproval struct {
	decision chan bool
	once     sync.Once
}

func (p *pendingApproval) resolve(approved bool) {
	p.once.Do(func() {
		p.decision <- approved
		close(p.decision)
	})
}

// approvalBroker tracks approvals pending on sensitive tool calls. Entries
// are keyed by tool call id and expire after a TTL; expiry counts as a
// rejection. The broker is an out-of-band side channel: the stream suspends
// in await while an external endpoint feeds decisions through Resolve.
type approvalBroker struct {
	mu      sync.Mutex
	pending map[string]*pendingApproval
}

func newApprovalBroker() *approvalBroker {
	return &approvalBroker{pending: make(map[string]*pendingApproval)}
}

// await blocks until the tool call is approved or rejected, the TTL elapses
// (rejection) or ctx is cancelled.
func (b *approvalBroker) await(ctx context.Context, toolCallID string, ttl time.Duration) (bool, error) {
	p := &pendingApproval{decision: make(chan bool, 1)}

	b.mu.Lock()
	b.pending[toolCallID] = p
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, toolCallID)
		b.mu.Unlock()
	}()

	timer := time.NewTimer(ttl)
	defer timer.Stop()

	select {
	case approved := <-p.decision:
		return approved, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve delivers an external approval decision.
func (b *approvalBroker) Resolve(toolCallID string, approved bool) error {
	b.mu.Lock()
	p, ok := b.pending[toolCallID]
	b.mu.Unlock()
	if !ok {
		return ErrApprovalNotFound
	}
	p.resolve(approved)
	return nil
}
