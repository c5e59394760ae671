package internal

import "sync"

// the hub tracks one broadcast group per event and creates or removes them as
// connections join and leave.
type Hub struct {
	mutex  sync.RWMutex
	groups map[string]*Group
}

func NewHub() *Hub {
	return &Hub{groups: make(map[string]*Group)}
}

// Exists reports whether an event group is currently live in memory.
func (hub *Hub) Exists(eventID string) bool {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	_, ok := hub.groups[eventID]
	return ok
}

// getOrCreateGroup ensures there is a running Group for the given event.
func (hub *Hub) getOrCreateGroup(eventID string) *Group {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if group, exists := hub.groups[eventID]; exists {
		return group
	}
	group := newGroup(eventID)
	hub.groups[eventID] = group
	go group.run()
	return group
}

func (hub *Hub) deleteGroupIfEmpty(eventID string) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if group, exists := hub.groups[eventID]; exists {
		if group.size() == 0 {
			delete(hub.groups, eventID)
		}
	}
}
