package security

import (
	"errors"
	"testing"
)

func TestCheckAllowed(t *testing.T) {
	bad := []string{
		"rm -rf /",
		"rm -rf / --no-preserve-root",
		"mkfs.ext4 /dev/sda",
		"dd if=/dev/zero of=/dev/sda bs=4096",
		":(){ :|:& };:",
		"git push -f origin master",
		"git push origin master --force",
		"git push --force-with-lease origin master",
		"git push origin +master",
		"git reset --hard HEAD~1",
	}
	for _, s := range bad {
		if err := CheckAllowed(s); err == nil {
			t.Fatalf("expected %q to be blocked", s)
		}
	}

	good := []string{
		"cargo build",
		"cargo nextest run --all-features",
		"cargo release tag --execute",
		"git cliff -o CHANGELOG.md",
		"git push origin master",
		"cargo release push --execute",
	}
	for _, s := range good {
		if err := CheckAllowed(s); err != nil {
			t.Fatalf("expected %q to be allowed: %v", s, err)
		}
	}
}

func TestCheckAllowedEmpty(t *testing.T) {
	if err := CheckAllowed("   "); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
}
