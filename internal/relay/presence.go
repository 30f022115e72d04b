package relay

// Presence maps registered user identities to their connections so
// targeted events (board-shared) reach a user regardless of which room
// they are in. It is owned by the hub and only touched from the hub's run
// loop; it lives for the life of the process and entries leave on
// disconnect.
type Presence struct {
	byUser map[string]*Client
}

func NewPresence() *Presence {
	return &Presence{byUser: make(map[string]*Client)}
}

func (p *Presence) Set(userID string, c *Client) {
	p.byUser[userID] = c
}

func (p *Presence) Get(userID string) (*Client, bool) {
	c, ok := p.byUser[userID]
	return c, ok
}

// Remove drops the entry only if it still points at c, so a reconnect that
// re-registered the user is not clobbered by the stale connection's
// cleanup.
func (p *Presence) Remove(userID string, c *Client) {
	if userID == "" {
		return
	}
	if cur, ok := p.byUser[userID]; ok && cur == c {
		delete(p.byUser, userID)
	}
}

func (p *Presence) Len() int { return len(p.byUser) }
