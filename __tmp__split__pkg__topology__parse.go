package topology

import (
	"fmt"
	"strings"
)

// Brief is the parsed output of a parse-brief phase.
type Brief struct {
	ProjectName string
	Language    string
	Database    string
	Frontend    string
	Scope       string
	Components  []string
}

// parseBrief extracts the PROJECT_NAME/LANGUAGE/DATABASE/FRONTEND/SCOPE
// fields and the COMPONENTS: block from an agent's raw output.
func parseBrief(text string) (*Brief, error) {
	fields := map[string]string{}
	var components []string
	inComponents := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if inComponents {
			if strings.HasPrefix(trimmed, "-") {
				components = append(components, strings.TrimSpace(strings.TrimPrefix(trimmed, "-")))
				continue
			}
			if trimmed == "" {
				continue
			}
			inComponents = false
		}
		if trimmed == "COMPONENTS:" {
			inComponents = true
			continue
		}
		for _, key := range []string{"PROJECT_NAME", "LANGUAGE", "DATABASE", "FRONTEND", "SCOPE"} {
			if strings.HasPrefix(trimmed, key+":") {
				fields[key] = strings.TrimSpace(strings.TrimPrefix(trimmed, key+":"))
			}
		}
	}

	for _, key := range []string{"PROJECT_NAME", "LANGUAGE", "DATABASE", "FRONTEND", "SCOPE"} {
		if fields[key] == "" {
			return nil, fmt.Errorf("topology: brief output missing required field %s", key)
		}
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("topology: brief output missing COMPONENTS: block")
	}

	if err := ValidateProjectName(fields["PROJECT_NAME"]); err != nil {
		return nil, err
	}

	return &Brief{
		ProjectName: fields["PROJECT_NAME"],
		Language:    fields["LANGUAGE"],
		Database:    fields["DATABASE"],
		Frontend:    fields["FRONTEND"],
		Scope:       fields["SCOPE"],
		Components:  components,
	}, nil
}

// BuildSummary is the parsed output of a parse-summary phase.
type BuildSummary struct {
	Project  string
	Location string
	Language string
	Summary  string
	Usage    string
	Skill    string
}

func parseBuildComplete(text string) (*BuildSummary, error) {
	idx := strings.Index(text, "BUILD_COMPLETE")
	if idx == -1 {
		return nil, fmt.Errorf("topology: summary output missing BUILD_COMPLETE block")
	}

	fields := map[string]string{}
	for _, line := range strings.Split(text[idx:], "\n") {
		trimmed := strings.TrimSpace(line)
		for _, key := range []string{"PROJECT", "LOCATION", "LANGUAGE", "SUMMARY", "USAGE", "SKILL"} {
			if strings.HasPrefix(trimmed, key+":") {
				fields[key] = strings.TrimSpace(strings.TrimPrefix(trimmed, key+":"))
			}
		}
	}

	for _, key := range []string{"PROJECT", "LOCATION", "LANGUAGE", "SUMMARY", "USAGE"} {
		if fields[key] == "" {
			return nil, fmt.Errorf("topology: BUILD_COMPLETE block missing required field %s", key)
		}
	}

	return &BuildSummary{
		Project:  fields["PROJECT"],
		Location: fields["LOCATION"],
		Language: fields["LANGUAGE"],
		Summary:  fields["SUMMARY"],
		Usage:    fields["USAGE"],
		Skill:    fields["SKILL"],
	}, nil
}

func isVerificationPass(text string) bool {
	return strings.Contains(text, "VERIFICATION: PASS") || strings.Contains(text, "REVIEW: PASS")
}


