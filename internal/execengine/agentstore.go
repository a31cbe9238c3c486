package execengine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/haasonsaas/nexus/internal/security"
	"github.com/haasonsaas/nexus/pkg/models"
)

// AgentStore resolves the Agent configuration backing an execution, used by
// override reconciliation (spec §4.4) to compute an agent's default
// extension set.
type AgentStore interface {
	Get(ctx context.Context, id string) (*models.Agent, error)
}

// MemoryAgentStore is an in-memory AgentStore, grounded on the same
// clone-on-access discipline as MemoryTaskStore and MemoryMissionStore.
type MemoryAgentStore struct {
	mu     sync.RWMutex
	agents map[string]*models.Agent
}

// NewMemoryAgentStore creates an empty in-memory agent store.
func NewMemoryAgentStore() *MemoryAgentStore {
	return &MemoryAgentStore{agents: make(map[string]*models.Agent)}
}

func cloneAgent(a *models.Agent) *models.Agent {
	clone := *a
	clone.BuiltinExtensions = append([]string(nil), a.BuiltinExtensions...)
	clone.CustomExtensions = append([]models.CustomExtensionConfig(nil), a.CustomExtensions...)
	clone.AllowedSkillIDs = append([]string(nil), a.AllowedSkillIDs...)
	return &clone
}

// Put registers or replaces an agent's configuration. When the agent
// declares a ConfigSchema, Config must validate against it.
func (s *MemoryAgentStore) Put(ctx context.Context, agent *models.Agent) error {
	if agent == nil || agent.ID == "" {
		return errors.New("agent with id is required")
	}
	if err := security.ValidateAgainstSchema(agent.ConfigSchema, agent.Config); err != nil {
		return fmt.Errorf("agent %s: %w", agent.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.ID] = cloneAgent(agent)
	return nil
}

func (s *MemoryAgentStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, nil
	}
	return cloneAgent(agent), nil
}
