package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/voxelware/aura/internal/store"
	"github.com/voxelware/aura/internal/vision"
	"github.com/voxelware/aura/pkg/provider/embeddings"
	"github.com/voxelware/aura/pkg/provider/llm"
)

// renameMatchThreshold is the minimum Jaro-Winkler score for resolving a
// spoken person name to a stored id.
const renameMatchThreshold = 0.85

// ─────────────────────────────────────────────────────────────────────────────
// notification
// ─────────────────────────────────────────────────────────────────────────────

// NotificationTool pushes a title/message pair straight onto the client's
// display, bypassing the spoken reply.
type NotificationTool struct{}

var _ Tool = NotificationTool{}

func (NotificationTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "notification",
		Description: "Show a notification on the wearer's glasses. Use this to deliver information the wearer asked for.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":   map[string]any{"type": "string", "description": "Short notification title"},
				"message": map[string]any{"type": "string", "description": "Notification body text"},
			},
			"required": []string{"title", "message"},
		},
	}
}

func (NotificationTool) Invoke(_ context.Context, tc ToolContext, args json.RawMessage) (string, error) {
	var in struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("notification: bad arguments: %w", err)
	}
	if tc.Notify == nil {
		return "", errors.New("notification: no client attached")
	}
	tc.Notify(in.Title, in.Message)
	return "notification shown", nil
}

// ─────────────────────────────────────────────────────────────────────────────
// todo
// ─────────────────────────────────────────────────────────────────────────────

// TodoStore is the persistence slice the todo tool needs.
type TodoStore interface {
	AddTodo(ctx context.Context, description string, personID vision.PersonID, conversationID string) error
	ListOpenTodos(ctx context.Context, personID vision.PersonID) ([]store.Todo, error)
}

// TodoTool captures reminders linked to the active conversation.
type TodoTool struct {
	Store TodoStore
}

var _ Tool = TodoTool{}

func (TodoTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "todo",
		Description: "Save a reminder or follow-up item for the wearer.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"description": map[string]any{"type": "string", "description": "What to remind the wearer about"},
			},
			"required": []string{"description"},
		},
	}
}

func (t TodoTool) Invoke(ctx context.Context, tc ToolContext, args json.RawMessage) (string, error) {
	var in struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("todo: bad arguments: %w", err)
	}
	if strings.TrimSpace(in.Description) == "" {
		return "", errors.New("todo: description must not be empty")
	}
	if err := t.Store.AddTodo(ctx, in.Description, tc.PersonID, tc.ConversationID); err != nil {
		return "", fmt.Errorf("todo: %w", err)
	}
	return "reminder saved", nil
}

// ─────────────────────────────────────────────────────────────────────────────
// calendar
// ─────────────────────────────────────────────────────────────────────────────

// CalendarTool reports the current date and the wearer's open follow-ups.
type CalendarTool struct {
	Store TodoStore

	// Now is overridable for tests. Defaults to time.Now.
	Now func() time.Time
}

var _ Tool = CalendarTool{}

func (CalendarTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "calendar",
		Description: "Look up today's date and the wearer's open follow-up items.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func (t CalendarTool) Invoke(ctx context.Context, _ ToolContext, _ json.RawMessage) (string, error) {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Today is %s.\n", now().Format("Monday, 2 January 2006, 15:04"))

	todos, err := t.Store.ListOpenTodos(ctx, vision.NoPerson)
	if err != nil {
		return "", fmt.Errorf("calendar: %w", err)
	}
	if len(todos) == 0 {
		sb.WriteString("No open follow-up items.")
		return sb.String(), nil
	}
	sb.WriteString("Open follow-up items:\n")
	for _, td := range todos {
		fmt.Fprintf(&sb, "- %s (added %s)\n", td.Description, td.CreatedAt.Format("2 Jan"))
	}
	return sb.String(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// update_name
// ─────────────────────────────────────────────────────────────────────────────

// PersonDirectory is the persistence slice the rename tool needs.
type PersonDirectory interface {
	RenamePerson(ctx context.Context, from, to vision.PersonID) error
	ListPersonIDs(ctx context.Context) ([]vision.PersonID, error)
}

// UpdateNameTool assigns a real name to a person. Without an explicit
// person_name argument it renames whoever is currently in front of the
// camera; with one it fuzzy-matches against the stored ids.
type UpdateNameTool struct {
	Directory PersonDirectory
}

var _ Tool = UpdateNameTool{}

func (UpdateNameTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "update_name",
		Description: "Record the name of a person. Defaults to the person currently in view; pass person_name to rename someone else.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"new_name":    map[string]any{"type": "string", "description": "The person's name"},
				"person_name": map[string]any{"type": "string", "description": "Current name of the person to rename, if not the one in view"},
			},
			"required": []string{"new_name"},
		},
	}
}

func (t UpdateNameTool) Invoke(ctx context.Context, tc ToolContext, args json.RawMessage) (string, error) {
	var in struct {
		NewName    string `json:"new_name"`
		PersonName string `json:"person_name"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("update_name: bad arguments: %w", err)
	}
	in.NewName = strings.TrimSpace(in.NewName)
	if in.NewName == "" {
		return "", errors.New("update_name: new_name must not be empty")
	}

	target := tc.PersonID
	if name := strings.TrimSpace(in.PersonName); name != "" {
		resolved, err := t.resolve(ctx, name)
		if err != nil {
			return "", err
		}
		target = resolved
	}
	if target == vision.NoPerson {
		return "", errors.New("update_name: no person in view and no person_name given")
	}

	if err := t.Directory.RenamePerson(ctx, target, vision.PersonID(in.NewName)); err != nil {
		return "", fmt.Errorf("update_name: %w", err)
	}
	return fmt.Sprintf("renamed %s to %s", target, in.NewName), nil
}

// resolve maps a spoken name to a stored person id, tolerating ASR spelling
// drift via Jaro-Winkler similarity.
func (t UpdateNameTool) resolve(ctx context.Context, name string) (vision.PersonID, error) {
	ids, err := t.Directory.ListPersonIDs(ctx)
	if err != nil {
		return vision.NoPerson, fmt.Errorf("update_name: %w", err)
	}

	var (
		best      vision.PersonID
		bestScore float64
	)
	for _, id := range ids {
		if strings.EqualFold(string(id), name) {
			return id, nil
		}
		score := matchr.JaroWinkler(strings.ToLower(string(id)), strings.ToLower(name), false)
		if score > bestScore {
			best, bestScore = id, score
		}
	}
	if bestScore < renameMatchThreshold {
		return vision.NoPerson, fmt.Errorf("update_name: no person matching %q", name)
	}
	return best, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// remember
// ─────────────────────────────────────────────────────────────────────────────

// MemoryStore is the persistence slice the remember tool needs.
type MemoryStore interface {
	SearchMemories(ctx context.Context, personID vision.PersonID, embedding []float32, topK int) ([]store.MemoryResult, error)
	RecentMemories(ctx context.Context, personID vision.PersonID, limit int) ([]store.Memory, error)
}

// rememberTopK caps how many memories a single lookup returns.
const rememberTopK = 5

// RememberTool recalls stored facts about the person in view. With an
// embedder the query is semantic; without one it falls back to recency.
type RememberTool struct {
	Store    MemoryStore
	Embedder embeddings.Provider
}

var _ Tool = RememberTool{}

func (RememberTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "remember",
		Description: "Recall stored facts about the person currently in view.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "What to recall, e.g. 'where does she work'"},
			},
			"required": []string{"query"},
		},
	}
}

func (t RememberTool) Invoke(ctx context.Context, tc ToolContext, args json.RawMessage) (string, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("remember: bad arguments: %w", err)
	}
	if tc.PersonID == vision.NoPerson {
		return "no person is currently in view", nil
	}

	facts, err := t.lookup(ctx, tc.PersonID, in.Query)
	if err != nil {
		return "", fmt.Errorf("remember: %w", err)
	}
	if len(facts) == 0 {
		return "nothing stored about this person yet", nil
	}
	return "Known facts:\n- " + strings.Join(facts, "\n- "), nil
}

func (t RememberTool) lookup(ctx context.Context, id vision.PersonID, query string) ([]string, error) {
	if t.Embedder != nil && strings.TrimSpace(query) != "" {
		vec, err := t.Embedder.Embed(ctx, query)
		if err == nil {
			results, err := t.Store.SearchMemories(ctx, id, vec, rememberTopK)
			if err != nil {
				return nil, err
			}
			facts := make([]string, 0, len(results))
			for _, r := range results {
				facts = append(facts, r.Text)
			}
			return facts, nil
		}
		// Embedding failure degrades to the recency path.
	}

	recent, err := t.Store.RecentMemories(ctx, id, rememberTopK)
	if err != nil {
		return nil, err
	}
	facts := make([]string, 0, len(recent))
	for _, m := range recent {
		facts = append(facts, m.Text)
	}
	return facts, nil
}
