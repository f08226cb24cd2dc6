package topology

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var projectNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// ValidateProjectName enforces the strict naming rule for parse-brief
// output: ASCII alphanumeric plus "-_.", at most 64 characters, no
// leading dot, and no ".." anywhere.
func ValidateProjectName(name string) error {
	if !projectNamePattern.MatchString(name) {
		return fmt.Errorf("topology: project name %q must be ASCII alphanumeric plus -_. and at most 64 characters", name)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("topology: project name %q must not start with a dot", name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("topology: project name %q must not contain \"..\"", name)
	}
	return nil
}

// runPreValidation checks a phase's pre_validation gate against projectDir.
func runPreValidation(pv *PreValidation, projectDir string) error {
	if pv == nil {
		return nil
	}
	switch pv.Type {
	case "file_exists":
		for _, p := range pv.Paths {
			full := filepath.Join(projectDir, p)
			if _, err := os.Stat(full); err != nil {
				return fmt.Errorf("topology: pre-validation failed: %q does not exist", p)
			}
		}
	case "file_patterns":
		for _, pattern := range pv.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("topology: invalid pre-validation pattern %q: %w", pattern, err)
			}
			if !patternFoundSomewhere(projectDir, re) {
				return fmt.Errorf("topology: pre-validation failed: pattern %q matched no file", pattern)
			}
		}
	}
	return nil
}

// runPostValidation requires every listed path to exist under
// projectDir, rejecting any path that tries to escape it.
func runPostValidation(paths []string, projectDir string) error {
	for _, p := range paths {
		if err := validateRelativePath(p); err != nil {
			return err
		}
		full := filepath.Join(projectDir, p)
		if _, err := os.Stat(full); err != nil {
			return fmt.Errorf("topology: post-validation failed: %q does not exist", p)
		}
	}
	return nil
}

func validateRelativePath(p string) error {
	if strings.Contains(p, "..") {
		return fmt.Errorf("topology: path %q must not contain \"..\"", p)
	}
	if filepath.IsAbs(p) {
		return fmt.Errorf("topology: path %q must not be absolute", p)
	}
	if strings.Contains(p, "\\") {
		return fmt.Errorf("topology: path %q must not contain a backslash", p)
	}
	return nil
}

func patternFoundSomewhere(root string, re *regexp.Regexp) bool {
	found := false
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || found || d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if re.Match(data) {
			found = true
		}
		return nil
	})
	return found
}
