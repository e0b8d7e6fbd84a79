package fritz

import (
	"sort"
	"strings"
)

const homeautoPrefix = "X_AVM-DE_Homeauto"

// ResolveHomeauto picks the home-automation service to use from the
// advertised names. The versioned X_AVM-DE_Homeauto1 wins, then the highest
// other versioned variant, then the unversioned name. ok is false if the
// device exposes none.
func ResolveHomeauto(services []string) (name string, ok bool) {
	var candidates []string
	for _, s := range services {
		if strings.HasPrefix(s, homeautoPrefix) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	for _, c := range candidates {
		if c == homeautoPrefix+"1" {
			return c, true
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		// longer suffix first so "Homeauto10" outranks "Homeauto9", unversioned last
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) > len(candidates[j])
		}
		return candidates[i] > candidates[j]
	})
	return candidates[0], true
}
