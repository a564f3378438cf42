package config

import (
	"fmt"
	"os/user"
	"strconv"
	"strings"
)

// Cred holds the resolved credentials the child drops to before exec.
// SetUID/SetGID record whether the corresponding id was requested at all;
// the zero ids are valid targets (root/root).
type Cred struct {
	UID    uint32
	GID    uint32
	SetUID bool
	SetGID bool
}

// parseUserSpec splits a --user argument into its name parts. Accepted
// forms are "user", "user:group" and ":group".
func parseUserSpec(spec string) (userName, groupName string, err error) {
	if spec == "" {
		return "", "", fmt.Errorf("empty user spec")
	}
	if colon := strings.IndexByte(spec, ':'); colon >= 0 {
		userName = spec[:colon]
		groupName = spec[colon+1:]
		if groupName == "" {
			return "", "", fmt.Errorf("empty group in user spec: %s", spec)
		}
	} else {
		userName = spec
	}
	return userName, groupName, nil
}

// resolveCred turns user/group names into numeric ids. Names are looked up
// in the account database first, then tried as decimal ids. Numeric
// fallbacks are parsed signed and rejected when negative, before any
// conversion to the unsigned kernel types.
func resolveCred(userName, groupName string) (*Cred, error) {
	cred := &Cred{}

	if userName != "" {
		uid, err := lookupID(userName, func(name string) (string, error) {
			u, err := user.Lookup(name)
			if err != nil {
				return "", err
			}
			return u.Uid, nil
		})
		if err != nil {
			return nil, fmt.Errorf("unknown user name: %s", userName)
		}
		cred.UID = uid
		cred.SetUID = true
	}

	if groupName != "" {
		gid, err := lookupID(groupName, func(name string) (string, error) {
			g, err := user.LookupGroup(name)
			if err != nil {
				return "", err
			}
			return g.Gid, nil
		})
		if err != nil {
			return nil, fmt.Errorf("unknown group name: %s", groupName)
		}
		cred.GID = gid
		cred.SetGID = true
	}

	return cred, nil
}

func lookupID(name string, lookup func(string) (string, error)) (uint32, error) {
	id, err := lookup(name)
	if err == nil {
		n, convErr := strconv.Atoi(id)
		if convErr != nil || n < 0 {
			return 0, fmt.Errorf("bad id %q for %s", id, name)
		}
		return uint32(n), nil
	}
	// Not a known name; try it as a decimal id.
	n, convErr := strconv.Atoi(name)
	if convErr != nil || n < 0 {
		return 0, err
	}
	return uint32(n), nil
}
