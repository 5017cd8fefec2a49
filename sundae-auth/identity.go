package sundaeauth

import "time"

// Identity holds the verified claims of a bearer credential.
type Identity struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Claims    map[string]interface{}
}

// Claim returns a string claim, or "" if absent or not a string.
func (i Identity) Claim(name string) string {
	if v, ok := i.Claims[name].(string); ok {
		return v
	}
	return ""
}
