package chat

import "fmt"

// Role is the side a connection occupies in a conversation.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgency   Role = "agency"
)

// ParseRole accepts "customer" or "agency". Empty input yields "" with no
// error: the caller falls back to ownership inference.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return "", nil
	case RoleCustomer, RoleAgency:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}
