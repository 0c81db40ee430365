package decision

import (
	"errors"
	"fmt"
	"strings"

	"feedbacktriage/internal/domain"
)

const auditHeading = "**Auto-triage classification**"

const (
	labelTopic       = "Topic"
	labelAssignedTo  = "Assigned to"
	labelConfidence  = "Confidence"
	labelAlternative = "Alternative topic"
	labelReasoning   = "Reasoning"
)

type AuditFields struct {
	Topic            string
	AssignedTo       string
	Confidence       domain.Confidence
	AlternativeTopic string
	Reasoning        string
}

// FormatAudit renders the comment attached to an assignment. Field order and
// labels are fixed so comments diff cleanly across runs.
func FormatAudit(f AuditFields) string {
	lines := []string{
		auditHeading,
		"",
		auditLine(labelTopic, f.Topic),
		auditLine(labelAssignedTo, f.AssignedTo),
		auditLine(labelConfidence, string(f.Confidence)),
	}
	if f.AlternativeTopic != "" {
		lines = append(lines, auditLine(labelAlternative, f.AlternativeTopic))
	}
	lines = append(lines, auditLine(labelReasoning, f.Reasoning))
	return strings.Join(lines, "\n")
}

func auditLine(label, value string) string {
	return fmt.Sprintf("- **%s:** %s", label, flatten(value))
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var ErrNotAuditText = errors.New("not an auto-triage audit comment")

// ParseAuditText reads back a comment produced by FormatAudit.
func ParseAuditText(text string) (AuditFields, error) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != auditHeading {
		return AuditFields{}, ErrNotAuditText
	}

	var f AuditFields
	seen := make(map[string]bool)
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		label, value, ok := splitAuditLine(line)
		if !ok {
			return AuditFields{}, fmt.Errorf("malformed audit line %q", line)
		}
		switch label {
		case labelTopic:
			f.Topic = value
		case labelAssignedTo:
			f.AssignedTo = value
		case labelConfidence:
			f.Confidence = domain.Confidence(value)
		case labelAlternative:
			f.AlternativeTopic = value
		case labelReasoning:
			f.Reasoning = value
		default:
			return AuditFields{}, fmt.Errorf("unknown audit label %q", label)
		}
		seen[label] = true
	}
	for _, required := range []string{labelTopic, labelAssignedTo, labelConfidence, labelReasoning} {
		if !seen[required] {
			return AuditFields{}, fmt.Errorf("audit text missing %q", required)
		}
	}
	return f, nil
}

func splitAuditLine(line string) (string, string, bool) {
	if !strings.HasPrefix(line, "- **") {
		return "", "", false
	}
	rest := strings.TrimPrefix(line, "- **")
	idx := strings.Index(rest, ":**")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], strings.TrimSpace(rest[idx+len(":**"):]), true
}
