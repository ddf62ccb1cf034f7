package graph

import (
	"context"
	"fmt"
	"time"
)

// nodeTimeout resolves the timeout for a node: per-node policy wins over the
// engine default; zero means unlimited.
func nodeTimeout(policy *NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// runNodeWithTimeout executes a node under the resolved timeout.
//
// A deadline overrun is reported as an EngineError with code NODE_TIMEOUT in
// the result's Err slot so retry classification sees it like any other node
// failure.
func runNodeWithTimeout[S any](
	ctx context.Context,
	node Node[S],
	nodeID string,
	state S,
	policy *NodePolicy,
	defaultTimeout time.Duration,
) NodeResult[S] {
	timeout := nodeTimeout(policy, defaultTimeout)
	if timeout == 0 {
		return node.Run(ctx, state)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := node.Run(timeoutCtx, state)
	if timeoutCtx.Err() == context.DeadlineExceeded && result.Err == nil {
		result.Err = &EngineError{
			Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout),
			Code:    "NODE_TIMEOUT",
		}
	}
	return result
}
