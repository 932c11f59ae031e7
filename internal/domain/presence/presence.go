// Package presence defines the result of a point-in-time presence probe.
package presence

import "strings"

// Sample is a single observation of whether a tracked application is active.
type Sample struct {
	Present bool
	// Match identifies what satisfied the probe, e.g. "process:VRChat.exe (pid=1234)".
	// Empty when Present is false.
	Match string
}

// MatchTarget returns the first target contained in name, case-insensitively.
func MatchTarget(targets []string, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	lower := strings.ToLower(name)
	for _, t := range targets {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return t, true
		}
	}
	return "", false
}

// BaseName strips any directory and a trailing ".exe" from a target so it
// can be passed to Windows process queries.
func BaseName(target string) string {
	if i := strings.LastIndexAny(target, `/\`); i >= 0 {
		target = target[i+1:]
	}
	if len(target) > 4 && strings.EqualFold(target[len(target)-4:], ".exe") {
		target = target[:len(target)-4]
	}
	return target
}
