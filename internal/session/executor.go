package session

import (
	"encoding/json"
	"fmt"
)

const (
	executorPrefix  = "browserstack_executor: "
	maxReasonLength = 255
)

// executorCommand renders a BrowserStack executor command.
func executorCommand(action string, arguments any) (string, error) {
	body, err := json.Marshal(struct {
		Action    string `json:"action"`
		Arguments any    `json:"arguments"`
	}{Action: action, Arguments: arguments})
	if err != nil {
		return "", fmt.Errorf("encode %s command: %w", action, err)
	}
	return executorPrefix + string(body), nil
}

func truncateReason(reason string) string {
	r := []rune(reason)
	if len(r) <= maxReasonLength {
		return reason
	}
	return string(r[:maxReasonLength-3]) + "..."
}
