package videocore

import "sync"

// PauseCoordinator holds the per-camera pause flags consulted by the
// renderer on every tick. State is keyed strictly by camera index; there is
// no global fallback, so one camera's pause can never leak into another's.
type PauseCoordinator struct {
	mu     sync.RWMutex
	paused map[int]bool
}

// NewPauseCoordinator creates a coordinator with every camera running.
func NewPauseCoordinator() *PauseCoordinator {
	return &PauseCoordinator{paused: make(map[int]bool)}
}

// SetPaused records the pause flag for one camera index.
func (p *PauseCoordinator) SetPaused(cameraIndex int, value bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if value {
		p.paused[cameraIndex] = true
	} else {
		delete(p.paused, cameraIndex)
	}
}

// IsPaused reports the flag for a camera index, defaulting to false for
// unknown indices.
func (p *PauseCoordinator) IsPaused(cameraIndex int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[cameraIndex]
}

// PausedIndices returns the currently paused camera indices, for
// persistence.
func (p *PauseCoordinator) PausedIndices() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	indices := make([]int, 0, len(p.paused))
	for idx := range p.paused {
		indices = append(indices, idx)
	}
	return indices
}

// Restore replaces the paused set, used when loading persisted state.
func (p *PauseCoordinator) Restore(indices []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = make(map[int]bool, len(indices))
	for _, idx := range indices {
		p.paused[idx] = true
	}
}
