package vulkan

import "sync"

type LockGroup string

const (
	// Queue submission, presentation and device idle waits.
	QueueManagement LockGroup = "queue_management"
	// Allocation and release of sets from the shared descriptor pool.
	DescriptorManagement LockGroup = "descriptor_management"
)

// lockPool hands out one mutex per group of externally synchronized Vulkan
// objects.
type lockPool struct {
	mu    sync.Mutex
	locks map[LockGroup]*sync.Mutex
}

func newLockPool() *lockPool {
	return &lockPool{locks: make(map[LockGroup]*sync.Mutex)}
}

func (p *lockPool) lock(group LockGroup) *sync.Mutex {
	p.mu.Lock()
	l, ok := p.locks[group]
	if !ok {
		l = &sync.Mutex{}
		p.locks[group] = l
	}
	p.mu.Unlock()
	l.Lock()
	return l
}

// SafeCall runs fn while holding the lock of group.
func (p *lockPool) SafeCall(group LockGroup, fn func() error) error {
	l := p.lock(group)
	defer l.Unlock()
	return fn()
}
