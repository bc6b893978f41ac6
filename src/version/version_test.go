// +build !unit

package version

import (
	"strings"
	"testing"
)

// TestFlagEmpty fails if version.Flag is not empty, so that development
// builds are not released.
func TestFlagEmpty(t *testing.T) {
	if len(Flag) > 0 {
		t.Fatalf("Version Flag is not empty: %s", Flag)
	}
}

func TestVersionFormat(t *testing.T) {
	if strings.Count(strings.SplitN(Version, "-", 2)[0], ".") != 2 {
		t.Fatalf("Version is not semver: %s", Version)
	}
}
