package backup

import "sync"

// Phase labels the stage a run is in.
type Phase string

const (
	PhaseStarting Phase = "starting"
	PhaseDrive    Phase = "drive"
	PhasePhotos   Phase = "photos"
)

// Progress is a live snapshot of one identity's run, published by the
// engines after each processed item.
type Progress struct {
	Phase       Phase  `json:"phase"`
	Label       string `json:"label"`
	CurrentFile string `json:"current_file"`
	Stats
}

type cancelToken struct {
	mu  sync.Mutex
	set bool
}

func (t *cancelToken) cancel() {
	t.mu.Lock()
	t.set = true
	t.mu.Unlock()
}

func (t *cancelToken) cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.set
}

// ProgressTracker is the registry of live run state and cancel tokens,
// keyed by sync identity. All operations are safe for concurrent callers
// on different identities and for a background reader observing a writer.
type ProgressTracker struct {
	mu       sync.RWMutex
	progress map[string]Progress
	cancels  map[string]*cancelToken
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		progress: make(map[string]Progress),
		cancels:  make(map[string]*cancelToken),
	}
}

// SetProgress publishes a snapshot for an identity.
func (p *ProgressTracker) SetProgress(identity string, state Progress) {
	p.mu.Lock()
	p.progress[identity] = state
	p.mu.Unlock()
}

// GetProgress returns the latest snapshot, if a run is active.
func (p *ProgressTracker) GetProgress(identity string) (Progress, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	state, ok := p.progress[identity]
	return state, ok
}

// ClearProgress removes the identity's snapshot and cancel token. Called
// on every run exit path, including cancellation and failure.
func (p *ProgressTracker) ClearProgress(identity string) {
	p.mu.Lock()
	delete(p.progress, identity)
	delete(p.cancels, identity)
	p.mu.Unlock()
}

// RegisterCancel installs a fresh cancel token for a starting run.
func (p *ProgressTracker) RegisterCancel(identity string) {
	p.mu.Lock()
	p.cancels[identity] = &cancelToken{}
	p.mu.Unlock()
}

// RequestCancel flags the identity's run for cancellation. Returns false
// when no run is active, so callers can report "nothing to cancel".
func (p *ProgressTracker) RequestCancel(identity string) bool {
	p.mu.RLock()
	token, ok := p.cancels[identity]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	token.cancel()
	return true
}

// IsCancelled is polled by the engines before each remote entry.
func (p *ProgressTracker) IsCancelled(identity string) bool {
	p.mu.RLock()
	token, ok := p.cancels[identity]
	p.mu.RUnlock()
	return ok && token.cancelled()
}
