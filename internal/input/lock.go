package input

import (
	"sync"

	"github.com/gofrs/flock"

	"github.com/hpungsan/stasher/internal/errors"
)

// LockedProvider makes a provider exclusive within and across processes
// with a file lock.
type LockedProvider struct {
	inner Provider
	lock  *flock.Flock

	mu    sync.Mutex
	owner string
}

// NewLockedProvider guards inner with a lock file at path.
func NewLockedProvider(inner Provider, path string) *LockedProvider {
	return &LockedProvider{inner: inner, lock: flock.New(path)}
}

// Path returns the lock file path.
func (p *LockedProvider) Path() string {
	return p.lock.Path()
}

// Acquire takes the file lock without blocking, then the inner controller.
func (p *LockedProvider) Acquire(owner string) (Controller, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.owner != "" {
		return nil, errors.NewInputUnavailable("held by " + p.owner)
	}
	ok, err := p.lock.TryLock()
	if err != nil {
		return nil, errors.NewInputUnavailable(err.Error())
	}
	if !ok {
		return nil, errors.NewInputUnavailable("held by another process")
	}

	c, err := p.inner.Acquire(owner)
	if err != nil {
		_ = p.lock.Unlock()
		return nil, err
	}
	p.owner = owner
	return &lockedController{Controller: c, provider: p}, nil
}

func (p *LockedProvider) release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owner = ""
	return p.lock.Unlock()
}

type lockedController struct {
	Controller
	provider *LockedProvider
	once     sync.Once
}

func (c *lockedController) Release() error {
	var err error
	c.once.Do(func() {
		err = c.Controller.Release()
		if uerr := c.provider.release(); err == nil && uerr != nil {
			err = errors.NewInternal(uerr)
		}
	})
	return err
}
