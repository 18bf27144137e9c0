package buildinfo

import (
	"strings"
	"testing"
)

func TestShortCommit(t *testing.T) {
	old := Commit
	t.Cleanup(func() { Commit = old })

	Commit = "0123456789abcdef"
	if got := ShortCommit(); got != "0123456" {
		t.Errorf("ShortCommit() = %q, want %q", got, "0123456")
	}
	Commit = "abc"
	if got := ShortCommit(); got != "abc" {
		t.Errorf("ShortCommit() = %q, want %q", got, "abc")
	}
}

func TestTemplate(t *testing.T) {
	oldV, oldC := Version, Commit
	t.Cleanup(func() { Version, Commit = oldV, oldC })

	Version, Commit = "v1.2.3", "deadbeefcafe"
	got := Template()
	if !strings.HasPrefix(got, "{{.Name}} v1.2.3 (deadbee, built ") {
		t.Errorf("Template() = %q", got)
	}
}
