package wizard

import (
	"context"
	"sync"
	"time"
)

// Controller owns one session and serialises every event through the
// machine, so transitions are strictly sequential.
type Controller struct {
	machine Machine
	exec    *Executor
	persist *Persistence
	now     func() time.Time

	mu      sync.Mutex
	session Session
}

func NewController(machine Machine, exec *Executor, persist *Persistence) *Controller {
	return &Controller{
		machine: machine,
		exec:    exec,
		persist: persist,
		now:     time.Now,
		session: NewSession(),
	}
}

// Start loads any persisted state and resumes background work for it.
func (c *Controller) Start(ctx context.Context, secret string) (Session, error) {
	st, ok, err := c.persist.Load(ctx)
	if err != nil {
		return c.Session(), err
	}

	c.mu.Lock()
	c.session = NewSession()
	if ok {
		c.session.State = st
	}
	c.session.Secret = secret
	c.mu.Unlock()

	if !ok {
		return c.Session(), nil
	}
	return c.Dispatch(ctx, Resumed{}), nil
}

// Dispatch applies ev and starts the resulting effects.
func (c *Controller) Dispatch(ctx context.Context, ev Event) Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, effects := c.machine.Transition(c.session, ev, c.now())
	c.session = next
	c.exec.Run(ctx, effects)
	return next
}

func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Events delivers completions from background effects; feed them back into
// Dispatch.
func (c *Controller) Events() <-chan Event {
	return c.exec.Events()
}

func (c *Controller) Close() {
	c.exec.Close()
}
