package execengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/pkg/models"
)

// MemoryTaskStore is an in-memory TaskStore, grounded on
// internal/sessions.MemoryStore's clone-on-access discipline.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*models.AgentTask
}

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]*models.AgentTask)}
}

func cloneTask(t *models.AgentTask) *models.AgentTask {
	clone := *t
	return &clone
}

func (s *MemoryTaskStore) Create(ctx context.Context, task *models.AgentTask) error {
	if task == nil {
		return errors.New("task is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *MemoryTaskStore) Get(ctx context.Context, id string) (*models.AgentTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return cloneTask(task), nil
}

func (s *MemoryTaskStore) Update(ctx context.Context, task *models.AgentTask) error {
	if task == nil {
		return errors.New("task is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return errors.New("task not found: " + task.ID)
	}
	task.UpdatedAt = time.Now()
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *MemoryTaskStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

// MissionStore persists Mission rows for the mission execution path (spec
// §3 "Mission", §4.1 "execute_mission").
type MissionStore interface {
	Create(ctx context.Context, mission *models.Mission) error
	Get(ctx context.Context, id string) (*models.Mission, error)
	Update(ctx context.Context, mission *models.Mission) error
}

// MemoryMissionStore is an in-memory MissionStore.
type MemoryMissionStore struct {
	mu       sync.RWMutex
	missions map[string]*models.Mission
}

// NewMemoryMissionStore creates an empty in-memory mission store.
func NewMemoryMissionStore() *MemoryMissionStore {
	return &MemoryMissionStore{missions: make(map[string]*models.Mission)}
}

func cloneMission(m *models.Mission) *models.Mission {
	clone := *m
	clone.Steps = append([]models.MissionStep(nil), m.Steps...)
	clone.GoalTree = append([]models.GoalNode(nil), m.GoalTree...)
	if m.CurrentStep != nil {
		cs := *m.CurrentStep
		clone.CurrentStep = &cs
	}
	return &clone
}

func (s *MemoryMissionStore) Create(ctx context.Context, mission *models.Mission) error {
	if mission == nil {
		return errors.New("mission is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if mission.ID == "" {
		mission.ID = uuid.NewString()
	}
	now := time.Now()
	if mission.CreatedAt.IsZero() {
		mission.CreatedAt = now
	}
	mission.UpdatedAt = now
	s.missions[mission.ID] = cloneMission(mission)
	return nil
}

func (s *MemoryMissionStore) Get(ctx context.Context, id string) (*models.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mission, ok := s.missions[id]
	if !ok {
		return nil, nil
	}
	return cloneMission(mission), nil
}

func (s *MemoryMissionStore) Update(ctx context.Context, mission *models.Mission) error {
	if mission == nil {
		return errors.New("mission is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.missions[mission.ID]; !ok {
		return errors.New("mission not found: " + mission.ID)
	}
	mission.UpdatedAt = time.Now()
	s.missions[mission.ID] = cloneMission(mission)
	return nil
}
