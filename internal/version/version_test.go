// ABOUTME: Tests for version constants
// ABOUTME: Ensures version information is properly defined
package version

import (
	"regexp"
	"testing"
)

func TestIdentifiersDefined(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"Product", Product},
		{"Manufacturer", Manufacturer},
		{"Version", Version},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value == "" {
				t.Errorf("%s should not be empty", tt.name)
			}
			if len(tt.value) > 100 {
				t.Errorf("%s is unreasonably long", tt.name)
			}
		})
	}
}

func TestVersionIsSemver(t *testing.T) {
	if !regexp.MustCompile(`^\d+\.\d+\.\d+$`).MatchString(Version) {
		t.Errorf("Version %q is not MAJOR.MINOR.PATCH", Version)
	}
}

func TestString(t *testing.T) {
	if got, want := String(), "netjam "+Version; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
