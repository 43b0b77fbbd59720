package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/SwarmGate/internal/domain/agent"
	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
	"github.com/Strob0t/SwarmGate/internal/domain/event"
)

const (
	policyFirstSuccess = "first_success"
	policyQuorum       = "quorum"
)

// fanOut dispatches the request to up to MaxFanout candidates concurrently
// and reduces the replies under the configured policy.
func (o *Orchestrator) fanOut(ctx context.Context, candidates []agent.Descriptor, req *delegation.Request) (*delegation.Response, error) {
	if o.cfg.MaxFanout > 0 && len(candidates) > o.cfg.MaxFanout {
		candidates = candidates[:o.cfg.MaxFanout]
	}
	switch o.cfg.Policy {
	case policyQuorum:
		return o.quorum(ctx, candidates, req)
	default:
		return o.firstSuccess(ctx, candidates, req)
	}
}

// firstSuccess returns the first successful reply and cancels the rest.
// Specialist-reported error replies only win when no candidate succeeds.
func (o *Orchestrator) firstSuccess(ctx context.Context, candidates []agent.Descriptor, req *delegation.Request) (*delegation.Response, error) {
	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type reply struct {
		idx  int
		resp *delegation.Response
		err  error
	}
	replies := make(chan reply, len(candidates))

	var wg sync.WaitGroup
	for i, desc := range candidates {
		o.emit(ctx, req, nil, event.TypeDelegationSent, map[string]string{"agent_id": desc.ID})
		wg.Add(1)
		go func(i int, desc agent.Descriptor) {
			defer wg.Done()
			sendCtx, cancelSend := context.WithTimeout(fanCtx, o.cfg.CandidateTimeout)
			defer cancelSend()
			resp, err := o.wire.Send(sendCtx, desc, req)
			replies <- reply{idx: i, resp: resp, err: err}
		}(i, desc)
	}
	go func() {
		wg.Wait()
		close(replies)
	}()

	var (
		errReply *delegation.Response
		errIdx   int
		lastErr  error
	)
	for r := range replies {
		if r.err != nil {
			if !wireFailure(r.err) && fanCtx.Err() == nil {
				cancel()
				return nil, r.err
			}
			slog.Warn("swarm candidate failed",
				"request_id", req.RequestID,
				"agent_id", candidates[r.idx].ID,
				"error", r.err,
			)
			lastErr = r.err
			continue
		}
		if r.resp.Error == "" {
			cancel()
			return r.resp, nil
		}
		if errReply == nil || r.idx < errIdx {
			errReply, errIdx = r.resp, r.idx
		}
	}

	if errReply != nil {
		return errReply, nil
	}
	return nil, &delegation.ResolutionError{RequestID: req.RequestID, TaskType: req.TaskType, Cause: lastErr}
}

// quorum waits for every candidate and releases a result only when enough
// of them agree on it. Agreement is on the canonical JSON form of the
// result so key ordering does not split the vote.
func (o *Orchestrator) quorum(ctx context.Context, candidates []agent.Descriptor, req *delegation.Request) (*delegation.Response, error) {
	need := o.cfg.Quorum
	if need <= 0 {
		need = len(candidates)/2 + 1
	}

	var (
		mu        sync.Mutex
		responses []*delegation.Response
	)
	var g errgroup.Group
	for _, desc := range candidates {
		o.emit(ctx, req, nil, event.TypeDelegationSent, map[string]string{"agent_id": desc.ID})
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, o.cfg.CandidateTimeout)
			defer cancel()
			resp, err := o.wire.Send(sendCtx, desc, req)
			if err != nil {
				if wireFailure(err) {
					slog.Warn("swarm candidate failed",
						"request_id", req.RequestID,
						"agent_id", desc.ID,
						"error", err,
					)
					return nil
				}
				return err
			}
			if resp.Error != "" {
				// An error reply never counts toward agreement.
				return nil
			}
			mu.Lock()
			responses = append(responses, resp)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	votes := make(map[string][]*delegation.Response)
	for _, r := range responses {
		key := canonicalResult(r.Result)
		votes[key] = append(votes[key], r)
	}

	var winner []*delegation.Response
	for _, group := range votes {
		if len(group) >= need && len(group) > len(winner) {
			winner = group
		}
	}
	if winner == nil {
		return nil, &delegation.ResolutionError{
			RequestID: req.RequestID,
			TaskType:  req.TaskType,
			Cause:     fmt.Errorf("quorum of %d not reached across %d replies", need, len(responses)),
		}
	}

	// Release the most confident member of the winning group.
	best := winner[0]
	for _, r := range winner[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	slog.Info("quorum reached",
		"request_id", req.RequestID,
		"votes", len(winner),
		"required", need,
		"agent_id", best.AgentID,
	)
	return best, nil
}

// canonicalResult normalizes a JSON result so equivalent documents compare
// equal regardless of key order.
func canonicalResult(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(b)
}
