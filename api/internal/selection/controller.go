package selection

import (
	"sync"

	"lens-capture/api/internal/messaging"
)

// Controller allows at most one open session per page.
type Controller struct {
	client *messaging.Client
	opts   Options

	mu     sync.Mutex
	active *Session
}

func NewController(client *messaging.Client, opts Options) *Controller {
	return &Controller{client: client, opts: opts}
}

// Start opens a new session unless the previous one is still open.
func (c *Controller) Start(ui Presenter, vp Viewport) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && c.active.State() != Closed {
		return nil, ErrSessionBusy
	}
	c.active = NewSession(c.client, ui, vp, c.opts)
	return c.active, nil
}

// Active returns the open session or nil.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.State() == Closed {
		return nil
	}
	return c.active
}
