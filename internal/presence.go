package internal

import "sync"

// PresenceTracker keeps counts of live channel connections per event group.
type PresenceTracker struct {
	mu     sync.Mutex
	online map[string]int
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{online: make(map[string]int)}
}

func (p *PresenceTracker) Join(eventID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[eventID]++
	return p.online[eventID]
}

func (p *PresenceTracker) Leave(eventID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if count, ok := p.online[eventID]; ok {
		if count <= 1 {
			delete(p.online, eventID)
			return 0
		}
		p.online[eventID] = count - 1
		return p.online[eventID]
	}
	return 0
}

// Online returns the number of live connections joined to an event.
func (p *PresenceTracker) Online(eventID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[eventID]
}

func (p *PresenceTracker) ActiveEvents() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.online)
}
