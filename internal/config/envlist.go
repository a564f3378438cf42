package config

import (
	"fmt"
	"strings"
)

// EnvList accumulates the --env modifications for the child environment.
// A spec containing '=' sets a variable, a bare name unsets it. Order is
// preserved so a later set wins over an earlier one of the same name.
type EnvList struct {
	set   []string // "VAR=VAL" entries, in CLI order
	unset []string // bare names to remove
}

// Add records one --env argument. A spec with a leading '=' has no variable
// name and is rejected.
func (l *EnvList) Add(spec string) error {
	eq := strings.IndexByte(spec, '=')
	if eq == 0 {
		return fmt.Errorf("bad environment variable: %s", spec)
	}
	if eq > 0 {
		l.set = append(l.set, spec)
	} else {
		l.unset = append(l.unset, spec)
	}
	return nil
}

// Empty reports whether no modifications were recorded.
func (l *EnvList) Empty() bool { return len(l.set) == 0 && len(l.unset) == 0 }

// Apply builds the child environment from base. When clear is set the base
// is discarded first. Unsets remove matching names from the base; sets
// override any base entry of the same name.
func (l *EnvList) Apply(base []string, clear bool) []string {
	env := make([]string, 0, len(base)+len(l.set))
	if !clear {
		for _, kv := range base {
			name := kv
			if eq := strings.IndexByte(kv, '='); eq >= 0 {
				name = kv[:eq]
			}
			if l.contains(l.unset, name) || l.overridden(name) {
				continue
			}
			env = append(env, kv)
		}
	}
	return append(env, l.set...)
}

func (l *EnvList) contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (l *EnvList) overridden(name string) bool {
	for _, kv := range l.set {
		if strings.HasPrefix(kv, name+"=") {
			return true
		}
	}
	return false
}
