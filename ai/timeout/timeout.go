// Package timeout centralizes time budgets for AI operations.
package timeout

import "time"

const (
	// ToolExecution bounds a single agent tool call.
	ToolExecution = 30 * time.Second

	// HTTPRequest bounds one outbound request made by a tool.
	HTTPRequest = 20 * time.Second
)
