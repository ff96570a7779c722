package monitor

import (
	"os"
	"os/user"
	"strings"

	"github.com/large-farva/ldsentinel/internal/payload"
)

// LocalIdentity returns the current user and host. A Windows domain prefix
// ("DOMAIN\user") is stripped from the user name.
func LocalIdentity() payload.Identity {
	id := payload.Identity{Username: currentUser()}
	if h, err := os.Hostname(); err == nil {
		id.Hostname = h
	}
	return id
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return stripDomain(u.Username)
	}
	for _, k := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return "unknown"
}

func stripDomain(name string) string {
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		return name[i+1:]
	}
	return name
}
