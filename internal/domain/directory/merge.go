// Package directory holds pure operations over identity sets.
package directory

import (
	domainauth "github.com/target/opsconsole/internal/domain/auth"
)

// Merge combines a fallback set with a remote set.
//
// Fallback entries come first in their original order, followed by remote entries whose
// key is not already present, also in original order. A key shared by both sets resolves
// to the fallback entry. Duplicate keys within a single input collapse to the first occurrence.
func Merge(fallback, remote []domainauth.Identity) []domainauth.Identity {
	out := make([]domainauth.Identity, 0, len(fallback)+len(remote))
	seen := make(map[string]struct{}, len(fallback)+len(remote))

	appendNew := func(set []domainauth.Identity) {
		for _, id := range set {
			if _, dup := seen[id.Key]; dup {
				continue
			}
			seen[id.Key] = struct{}{}
			out = append(out, id)
		}
	}
	appendNew(fallback)
	appendNew(remote)
	return out
}

// Find returns the first entry with the given key.
func Find(set []domainauth.Identity, key string) (domainauth.Identity, bool) {
	for _, id := range set {
		if id.Key == key {
			return id, true
		}
	}
	return domainauth.Identity{}, false
}

// Dedupe drops later entries that repeat an earlier key.
func Dedupe(set []domainauth.Identity) []domainauth.Identity {
	return Merge(set, nil)
}
