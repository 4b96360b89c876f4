package model

const GuestUser = "Guest"

// Principal is the acting user resolved for a request.
type Principal struct {
	User  string   `json:"user"`
	Roles []string `json:"roles"`
	// SessionID is the browser session id, empty for machine clients.
	SessionID string `json:"-"`
}

func (p *Principal) IsGuest() bool {
	return p == nil || p.User == "" || p.User == GuestUser
}

func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
