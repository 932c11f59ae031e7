package natskv

import (
	"regexp"
	"testing"
)

var validKey = regexp.MustCompile(`^[-/_=.a-zA-Z0-9]+$`)

func TestBucketKeyIsValidAndStable(t *testing.T) {
	keys := []string{
		`C:\Users\me\data\recordings\20250101_120000.wav|1024|1735732800`,
		"data/recordings/20250101 120000.wav|0|0",
		"",
	}
	for _, k := range keys {
		got := bucketKey(k)
		if !validKey.MatchString(got) {
			t.Errorf("bucketKey(%q) = %q is not a valid KV key", k, got)
		}
		if got != bucketKey(k) {
			t.Errorf("bucketKey(%q) is not stable", k)
		}
	}
	if bucketKey("a") == bucketKey("b") {
		t.Error("distinct keys collide")
	}
}
