package channel

import (
	"context"
	"sync"
)

// Memory is an in-process Layer: group membership and delivery callbacks
// live in a single mutex-guarded map, the same shape as the teacher's
// Hub broadcaster generalized from a single global room set to arbitrary
// keyed groups. Suitable for a single-process deployment or tests.
type Memory struct {
	mu          sync.RWMutex
	subscribers map[string]func(Message)
	groups      map[string]map[string]struct{} // key -> set of subscriberID
}

// NewMemory constructs an empty in-process channel layer.
func NewMemory() *Memory {
	return &Memory{
		subscribers: make(map[string]func(Message)),
		groups:      make(map[string]map[string]struct{}),
	}
}

type memorySubscription struct {
	m            *Memory
	subscriberID string
}

func (s *memorySubscription) Close() error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	delete(s.m.subscribers, s.subscriberID)
	for key, members := range s.m.groups {
		delete(members, s.subscriberID)
		if len(members) == 0 {
			delete(s.m.groups, key)
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, subscriberID string, deliver func(Message)) (Subscription, error) {
	m.mu.Lock()
	m.subscribers[subscriberID] = deliver
	m.mu.Unlock()
	return &memorySubscription{m: m, subscriberID: subscriberID}, nil
}

func (m *Memory) GroupAdd(ctx context.Context, key, subscriberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.groups[key]
	if !ok {
		members = make(map[string]struct{})
		m.groups[key] = members
	}
	members[subscriberID] = struct{}{}
	return nil
}

func (m *Memory) GroupDiscard(ctx context.Context, key, subscriberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.groups[key]
	if !ok {
		return nil
	}
	delete(members, subscriberID)
	if len(members) == 0 {
		delete(m.groups, key)
	}
	return nil
}

func (m *Memory) GroupSend(ctx context.Context, msg Message) error {
	m.mu.RLock()
	members := m.groups[msg.Key]
	targets := make([]func(Message), 0, len(members))
	for id := range members {
		if id == msg.Skip {
			continue
		}
		if deliver, ok := m.subscribers[id]; ok {
			targets = append(targets, deliver)
		}
	}
	m.mu.RUnlock()

	for _, deliver := range targets {
		deliver(msg)
	}
	return nil
}
