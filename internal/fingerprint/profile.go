package fingerprint

import (
	"fmt"
	"strings"
)

// Profiles lists every profile accepted by ParseProfile.
var Profiles = []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom}

// ParseProfile resolves a configured profile name. An empty name selects Chrome,
// which is what most review and firmographic sites expect.
func ParseProfile(name string) (Profile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ProfileChrome, nil
	}
	for _, p := range Profiles {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("fingerprint: unknown profile %q", name)
}
