package notification

import (
	"fmt"
	"strings"

	"alert-dispatch/pkg/alert"
)

// formatMarkdown formats the alert content shared by the chat robots
func formatMarkdown(tpl *alert.Template, colored bool) string {
	status := tpl.Status
	if colored {
		status = colorStatus(tpl.Status)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "### %s\n\n", tpl.Title)
	fmt.Fprintf(&sb, "> **Job Name**: %s\n", tpl.JobName)
	if tpl.Type == alert.TemplateCheckpoint {
		fmt.Fprintf(&sb, "> **Checkpoint Status**: %s\n", status)
		fmt.Fprintf(&sb, "> **Checkpoint Failures**: %d/%d\n", tpl.CpFailureCount, tpl.CpMaxFailures)
	} else {
		fmt.Fprintf(&sb, "> **Job Status**: %s\n", status)
	}
	if tpl.StartTime != nil {
		fmt.Fprintf(&sb, "> **Start Time**: %s\n", tpl.StartTime.Format(timeLayout))
	}
	if tpl.EndTime != nil {
		fmt.Fprintf(&sb, "> **End Time**: %s\n", tpl.EndTime.Format(timeLayout))
	}
	fmt.Fprintf(&sb, "> **Duration**: %s\n", tpl.DurationReadable)
	if tpl.RestartCount > 0 {
		fmt.Fprintf(&sb, "> **Restarts**: %d\n", tpl.RestartCount)
	}
	if tpl.Link != "" {
		fmt.Fprintf(&sb, "> \n> [Details](%s)\n", tpl.Link)
	}
	fmt.Fprintf(&sb, "\n%s", tpl.OccurredAt.Format(timeLayout))

	return sb.String()
}

const timeLayout = "2006-01-02 15:04:05"

func colorStatus(status string) string {
	switch status {
	case "RUNNING", "FINISHED", "COMPLETED", "TEST":
		return "<font color=\"info\">" + status + "</font>"
	default:
		return "<font color=\"warning\">" + status + "</font>"
	}
}
