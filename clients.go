package offlinecache

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Client is an open application instance a worker may control.
type Client struct {
	ID  string
	URL string
	// Controller is the version of the controlling worker, empty when uncontrolled.
	Controller string
	Focused    bool
}

// Clients tracks the application instances of one registration.
type Clients struct {
	mu      sync.Mutex
	clients []*Client
}

func NewClients() *Clients {
	return &Clients{}
}

// Add records a newly opened, uncontrolled instance at url.
func (c *Clients) Add(url string) Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	client := &Client{ID: uuid.NewString(), URL: url}
	c.clients = append(c.clients, client)
	return *client
}

// Remove forgets a closed instance.
func (c *Clients) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := len(c.clients)
	c.clients = slices.DeleteFunc(c.clients, func(client *Client) bool { return client.ID == id })
	return len(c.clients) != before
}

// Claim makes version the controller of every instance and returns how many there are.
func (c *Clients) Claim(version string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, client := range c.clients {
		client.Controller = version
	}
	return len(c.clients)
}

// MatchAll returns a copy of every tracked instance.
func (c *Clients) MatchAll() []Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Client, 0, len(c.clients))
	for _, client := range c.clients {
		out = append(out, *client)
	}
	return out
}

// OpenWindow focuses an instance already showing url, or opens a new one.
// The boolean reports whether an existing instance was focused.
func (c *Clients) OpenWindow(url string) (Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var focused *Client
	for _, client := range c.clients {
		client.Focused = false
		if focused == nil && client.URL == url {
			focused = client
		}
	}
	if focused != nil {
		focused.Focused = true
		return *focused, true
	}
	client := &Client{ID: uuid.NewString(), URL: url, Focused: true}
	c.clients = append(c.clients, client)
	return *client, false
}
