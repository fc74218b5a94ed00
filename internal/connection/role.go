package connection

import (
	"net/url"
	"strings"
)

// RoleParam is the query parameter peers use to identify themselves.
const RoleParam = "from"

// ParseRole maps a "from" value to a Role, case-insensitively.
func ParseRole(s string) Role {
	switch strings.ToLower(s) {
	case string(RoleESP):
		return RoleESP
	case string(RoleSite):
		return RoleSite
	default:
		return RoleUnknown
	}
}

// ResolveRole reads the role from a handshake request URI such as
// "/?from=site". Malformed URIs resolve to RoleUnknown.
func ResolveRole(requestURI string) Role {
	u, err := url.Parse(requestURI)
	if err != nil {
		return RoleUnknown
	}
	return ParseRole(u.Query().Get(RoleParam))
}

// DialURL returns base with ?from=<role> set, replacing any existing value.
func DialURL(base string, role Role) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(RoleParam, string(role))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
