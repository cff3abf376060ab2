// Package registry holds the validation rules of the agent and escalation
// registries. Rules read projection state and never mutate it; the engine
// turns a passing check into events.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/impel-dev/impel/internal/cachemanager"
	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/projection"
	"github.com/impel-dev/impel/internal/coordination/types"
	"github.com/impel-dev/impel/internal/log"
)

// LookupAgent returns the agent holding id.
func LookupAgent(s *projection.State, id domain.AgentID) (*domain.Agent, error) {
	a, ok := s.Agents[id]
	if !ok {
		return nil, &types.NotFoundError{Entity: "agent", ID: string(id)}
	}
	return a, nil
}

// LookupThread returns the thread with id.
func LookupThread(s *projection.State, id domain.ThreadID) (*domain.Thread, error) {
	t, ok := s.Threads[id]
	if !ok {
		return nil, &types.NotFoundError{Entity: "thread", ID: string(id)}
	}
	return t, nil
}

// CheckClaim validates that agentID may claim threadID. First writer wins:
// a claimed thread is a hard failure, never a wait.
func CheckClaim(s *projection.State, agentID domain.AgentID, threadID domain.ThreadID) error {
	agent, err := LookupAgent(s, agentID)
	if err != nil {
		return err
	}
	thread, err := LookupThread(s, threadID)
	if err != nil {
		return err
	}
	if agent.Status == domain.AgentOffline {
		return types.Invalid("agent_id", "agent %q is offline", agentID)
	}
	if agent.HasClaim() {
		return &types.ClaimError{
			ThreadID: string(threadID),
			AgentID:  string(agentID),
			Holder:   string(agent.CurrentThread),
			Reason:   "agent already holds a claim",
		}
	}
	if !thread.State.IsOpen() {
		return &types.TransitionError{
			Entity: "thread",
			ID:     string(threadID),
			From:   thread.State.String(),
			To:     "claimed",
			Reason: "thread is not open for work",
		}
	}
	if thread.IsClaimed() {
		return &types.ClaimError{
			ThreadID: string(threadID),
			AgentID:  string(agentID),
			Holder:   string(thread.ClaimedBy),
			Reason:   "thread already claimed",
		}
	}
	return nil
}

// CheckRelease returns the thread the agent holds. Releasing without a claim
// is a validation failure.
func CheckRelease(s *projection.State, agentID domain.AgentID) (domain.ThreadID, error) {
	agent, err := LookupAgent(s, agentID)
	if err != nil {
		return "", err
	}
	if !agent.HasClaim() {
		return "", types.Invalid("agent_id", "agent %q holds no claim", agentID)
	}
	return agent.CurrentThread, nil
}

// FindByDigest scans the projection for the agent registered with digest.
// Offline agents never authenticate.
func FindByDigest(s *projection.State, digest string) (domain.AgentID, bool) {
	for id, a := range s.Agents {
		if a.TokenDigest == digest && a.Status != domain.AgentOffline {
			return id, true
		}
	}
	return "", false
}

var errUnknownToken = errors.New("unknown token")

// Authenticator resolves tokens to agents through a digest-keyed cache.
type Authenticator struct {
	cache *cachemanager.ReadThroughCache[string, domain.AgentID, string]
	ttl   time.Duration
}

// NewAuthenticator builds an Authenticator. find is consulted on cache misses
// and must be safe for concurrent use.
func NewAuthenticator(cache cachemanager.CacheManager[string, domain.AgentID], ttl time.Duration, find func(digest string) (domain.AgentID, bool)) *Authenticator {
	lookup := func(_ context.Context, digest string) (domain.AgentID, error) {
		id, ok := find(digest)
		if !ok {
			return "", errUnknownToken
		}
		return id, nil
	}
	if ttl <= 0 {
		ttl = cachemanager.DefaultExpiration
	}
	return &Authenticator{
		cache: cachemanager.NewReadThroughCache(cache, lookup, false),
		ttl:   ttl,
	}
}

// Authenticate returns the agent owning token.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (domain.AgentID, bool) {
	if token == "" {
		return "", false
	}
	id, err := a.cache.Get(ctx, Digest(token), Digest(token), a.ttl)
	if err != nil {
		log.Debug(log.CatCache, "authentication failed", "error", err)
		return "", false
	}
	return id, true
}

// Forget drops a cached digest, e.g. after the agent disconnects.
func (a *Authenticator) Forget(ctx context.Context, digest string) {
	a.cache.Invalidate(ctx, digest)
}
