// Package userinteraction implements output.UserInteractionPort as a
// colorized console renderer of run progress — the teacher's tool
// names and Russian status text rewritten for this spec's tool catalog.
package userinteraction

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"browsercore/internal/application/port/output"
)

var _ output.UserInteractionPort = (*ConsoleUserInteraction)(nil)

type ConsoleUserInteraction struct {
	reader *bufio.Reader
}

func NewConsoleUserInteraction() *ConsoleUserInteraction {
	return &ConsoleUserInteraction{reader: bufio.NewReader(os.Stdin)}
}

func (u *ConsoleUserInteraction) AskQuestion(ctx context.Context, question string) (string, error) {
	fmt.Printf("\n[INPUT NEEDED] %s\n> ", question)

	answer, err := u.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read user input: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func (u *ConsoleUserInteraction) WaitForUserAction(ctx context.Context, message string) error {
	fmt.Printf("\n[ACTION NEEDED] %s\n", message)
	fmt.Print("Press Enter when done...")

	_, err := u.reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("wait for user: %w", err)
	}
	return nil
}

func (u *ConsoleUserInteraction) ShowIteration(ctx context.Context, iteration, maxIterations int) {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Printf("\n━━━ Step %d/%d ━━━\n", iteration, maxIterations)
}

func (u *ConsoleUserInteraction) ShowThinking(ctx context.Context, content string) {
	if content == "" {
		return
	}
	blue := color.New(color.FgBlue)
	blue.Print("\n💭 ")

	dim := color.New(color.Faint)
	dim.Println(truncate(content, 500))
}

func (u *ConsoleUserInteraction) ShowToolStart(ctx context.Context, toolName, arguments string) {
	icon := toolIcon(toolName)

	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Printf("\n%s %s\n", icon, toolName)

	if summary := formatToolArguments(toolName, arguments); summary != "" {
		dim := color.New(color.Faint)
		dim.Printf("   %s\n", summary)
	}
}

func (u *ConsoleUserInteraction) ShowToolResult(ctx context.Context, toolName, result string, isError bool) {
	if isError {
		red := color.New(color.FgRed)
		red.Print("❌ Error: ")

		dim := color.New(color.Faint)
		dim.Println(truncate(result, 300))
		return
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ %s\n", truncate(firstLine(result), 150))
}

func toolIcon(toolName string) string {
	icons := map[string]string{
		"open_browser":         "🌐",
		"navigate":             "🌐",
		"take_snapshot":        "👁️",
		"click":                "🖱️",
		"type_text":            "✏️",
		"press_key":            "⌨️",
		"scroll":               "📜",
		"select_option":        "🔽",
		"hover":                "🫳",
		"set_value":            "🎛️",
		"wait_for_page_update": "⏳",
		"task_complete":        "✅",
		"extract_data":         "📦",
	}
	if icon, ok := icons[toolName]; ok {
		return icon
	}
	return "🔧"
}

func formatToolArguments(toolName, arguments string) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return ""
	}

	switch toolName {
	case "open_browser", "navigate":
		if url, ok := args["url"].(string); ok {
			return fmt.Sprintf("URL: %s", url)
		}
	case "click", "hover":
		if uid, ok := args["uid"]; ok {
			return fmt.Sprintf("uid: %v", uid)
		}
	case "type_text":
		uid, _ := args["uid"].(float64)
		text, _ := args["text"].(string)
		return fmt.Sprintf("uid %d: %q", int(uid), truncate(text, 40))
	case "press_key":
		if key, ok := args["key"].(string); ok {
			return key
		}
	case "scroll":
		direction, _ := args["direction"].(string)
		return direction
	case "select_option", "set_value":
		uid, _ := args["uid"].(float64)
		value, _ := args["value"].(string)
		return fmt.Sprintf("uid %d: %q", int(uid), truncate(value, 40))
	case "task_complete":
		if summary, ok := args["summary"].(string); ok {
			return truncate(summary, 100)
		}
	case "extract_data":
		if data, ok := args["data"].(string); ok {
			return truncate(data, 100)
		}
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
