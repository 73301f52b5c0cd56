package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (r *Registry) registerBuiltins() {
	r.Register(&Tool{
		Name:        "set_reminder",
		Description: "Set a reminder for a specific time. The reminder fires an alert with the given message.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "The reminder message.",
				},
				"time_iso": map[string]any{
					"type":        "string",
					"description": "ISO 8601 format time (e.g., 2026-08-30T14:30:00).",
				},
			},
			"required": []string{"message", "time_iso"},
		},
		Handler: r.handleSetReminder,
	})

	r.Register(&Tool{
		Name:        "list_reminders",
		Description: "List all reminders ordered by fire time, including completed ones.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: r.handleListReminders,
	})

	r.Register(&Tool{
		Name:        "update_reminder",
		Description: "Change the message and fire time of an existing reminder.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{
					"type":        "string",
					"description": "The reminder ID.",
				},
				"message": map[string]any{
					"type":        "string",
					"description": "The new reminder message.",
				},
				"time_iso": map[string]any{
					"type":        "string",
					"description": "The new ISO 8601 fire time.",
				},
			},
			"required": []string{"id", "message", "time_iso"},
		},
		Handler: r.handleUpdateReminder,
	})

	r.Register(&Tool{
		Name:        "cancel_reminder",
		Description: "Cancel and remove a reminder.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{
					"type":        "string",
					"description": "The reminder ID to cancel.",
				},
			},
			"required": []string{"id"},
		},
		Handler: r.handleCancelReminder,
	})

	r.Register(&Tool{
		Name:        "current_time",
		Description: "Get the current date and time.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return time.Now().Format(time.RFC3339), nil
		},
	})
}

func (r *Registry) handleSetReminder(ctx context.Context, args map[string]any) (string, error) {
	message, _ := args["message"].(string)
	timeISO, _ := args["time_iso"].(string)
	if message == "" {
		return "", fmt.Errorf("message must not be empty")
	}

	if !r.scheduler.Schedule(message, timeISO) {
		return "", fmt.Errorf("could not schedule reminder for %q (time must be a valid ISO 8601 timestamp in the future)", timeISO)
	}
	return fmt.Sprintf("Reminder set for %s: %s", timeISO, message), nil
}

func (r *Registry) handleListReminders(ctx context.Context, args map[string]any) (string, error) {
	reminders, err := r.scheduler.List()
	if err != nil {
		return "", err
	}
	if len(reminders) == 0 {
		return "No reminders set.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d reminders:\n", len(reminders))
	for _, rem := range reminders {
		fmt.Fprintf(&b, "- [%s] %s at %s (%s)\n",
			rem.ID, rem.Message, rem.FireAt.Format(time.RFC3339), rem.Status)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (r *Registry) handleUpdateReminder(ctx context.Context, args map[string]any) (string, error) {
	id, _ := args["id"].(string)
	message, _ := args["message"].(string)
	timeISO, _ := args["time_iso"].(string)

	if !r.scheduler.Update(id, message, timeISO) {
		return "", fmt.Errorf("could not update reminder %s (unknown id, or time not a valid future ISO 8601 timestamp)", id)
	}
	return fmt.Sprintf("Reminder %s updated to fire at %s: %s", id, timeISO, message), nil
}

func (r *Registry) handleCancelReminder(ctx context.Context, args map[string]any) (string, error) {
	id, _ := args["id"].(string)

	if !r.scheduler.Delete(id) {
		return "", fmt.Errorf("could not delete reminder %s", id)
	}
	return fmt.Sprintf("Reminder %s cancelled.", id), nil
}
