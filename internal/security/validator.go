package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidResourceName is returned when a shared-resource name fails
// validation (spec §8 invariant #7).
var ErrInvalidResourceName = errors.New("invalid resource name")

// ErrDangerousContent is returned when recipe content matches an entry in
// the dangerous-pattern catalog (spec §8 invariant #10).
var ErrDangerousContent = errors.New("content matches a disallowed pattern")

const maxResourceNameLength = 200

var validResourceName = regexp.MustCompile(`^[A-Za-z0-9_\-.]+$`)

var windowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// ValidateResourceName checks a shared-resource name (skill, recipe,
// extension, installed-resource) against the `[A-Za-z0-9_\-.]{1,200}`
// character class, rejects path traversal and null bytes, and rejects
// Windows-reserved device names regardless of extension.
func ValidateResourceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidResourceName)
	}
	if len(name) > maxResourceNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidResourceName, maxResourceNameLength)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: path traversal sequence in %q", ErrInvalidResourceName, name)
	}
	if strings.ContainsRune(name, '\x00') {
		return fmt.Errorf("%w: null byte in name", ErrInvalidResourceName)
	}
	if !validResourceName.MatchString(name) {
		return fmt.Errorf("%w: %q contains disallowed characters", ErrInvalidResourceName, name)
	}

	base := strings.ToUpper(name)
	if idx := strings.Index(base, "."); idx >= 0 {
		base = base[:idx]
	}
	if windowsReservedNames[base] {
		return fmt.Errorf("%w: %q is a reserved device name", ErrInvalidResourceName, name)
	}

	return nil
}

// dangerousPatterns mirrors the original security validator's
// shell/SQL/RCE/credential-theft catalog, ported to Go regexp.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-rf\s+/`),
	regexp.MustCompile(`(?i)rm\s+-rf\s+~`),
	regexp.MustCompile(`(?i)rm\s+-rf\s+\*`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;`), // fork bomb
	regexp.MustCompile(`(?i)mkfs\.`),
	regexp.MustCompile(`(?i)dd\s+if=/dev/`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]`),
	regexp.MustCompile(`(?i)chmod\s+-R\s+777\s+/`),
	regexp.MustCompile(`(?i)chown\s+-R\s+\S+\s+/`),
	regexp.MustCompile(`(?i)delete\s+from`),
	regexp.MustCompile(`(?i)drop\s+table`),
	regexp.MustCompile(`(?i)drop\s+database`),
	regexp.MustCompile(`(?i)truncate\s+table`),
	regexp.MustCompile(`(?i);\s*--`),
	regexp.MustCompile(`(?i)exec\s*\(`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)system\s*\(`),
	regexp.MustCompile(`(?i)subprocess\.`),
	regexp.MustCompile(`(?i)os\.system\s*\(`),
	regexp.MustCompile(`(?i)os\.popen\s*\(`),
	regexp.MustCompile(`(?i)__import__\s*\(`),
	regexp.MustCompile(`(?i)compile\s*\(.*exec`),
	regexp.MustCompile(`(?i)curl\s+.*\|\s*bash`),
	regexp.MustCompile(`(?i)curl\s+.*\|\s*sh`),
	regexp.MustCompile(`(?i)wget\s+.*\|\s*bash`),
	regexp.MustCompile(`(?i)wget\s+.*\|\s*sh`),
	regexp.MustCompile(`(?i)curl\s+.*>\s*/tmp/.*&&`),
	regexp.MustCompile(`(?i)\bnc\b.*-e\s+/bin/`),
	regexp.MustCompile(`(?i)\bnetcat\b.*-e\s+/bin/`),
	regexp.MustCompile(`(?i)\bncat\b.*-e\s+/bin/`),
	regexp.MustCompile(`(?i)/dev/tcp/`),
	regexp.MustCompile(`(?i)socket\.connect\s*\(`),
	regexp.MustCompile(`(?i)invoke-expression`),
	regexp.MustCompile(`(?i)invoke-webrequest.*\|\s*iex`),
	regexp.MustCompile(`(?i)downloadstring\s*\(`),
	regexp.MustCompile(`(?i)set-executionpolicy\s+bypass`),
	regexp.MustCompile(`(?i)-encodedcommand`),
	regexp.MustCompile(`(?i)\bunsafe\s*\{`),
	regexp.MustCompile(`(?i)export\s+PATH\s*=\s*/`),
	regexp.MustCompile(`(?i)export\s+LD_PRELOAD`),
	regexp.MustCompile(`(?i)export\s+LD_LIBRARY_PATH\s*=\s*/`),
	regexp.MustCompile(`(?i)sudo\s+chmod\s+\+s`),
	regexp.MustCompile(`(?i)sudo\s+chown\s+root`),
	regexp.MustCompile(`(?i)cat\s+.*\.ssh/`),
	regexp.MustCompile(`(?i)cat\s+.*/etc/shadow`),
	regexp.MustCompile(`(?i)cat\s+.*/etc/passwd`),
}

// ValidateRecipeContent scans a recipe's raw YAML for the dangerous-pattern
// catalog and, if clean, parses it to confirm well-formed YAML (spec §8
// invariant #10).
func ValidateRecipeContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: recipe content is empty", ErrDangerousContent)
	}

	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(content) {
			return fmt.Errorf("%w: matched pattern %q", ErrDangerousContent, pattern.String())
		}
	}

	var doc any
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return fmt.Errorf("invalid recipe YAML: %w", err)
	}

	return nil
}

// ValidateSkillContent applies the minimal structural check the original
// validator runs on shared-skill Markdown content.
func ValidateSkillContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return fmt.Errorf("%w: skill content is empty", ErrDangerousContent)
	}
	if len(trimmed) < 10 {
		return fmt.Errorf("%w: skill content is too short", ErrDangerousContent)
	}
	return nil
}
