package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voxelware/aura/internal/store"
	"github.com/voxelware/aura/internal/vision"
	embedmock "github.com/voxelware/aura/pkg/provider/embeddings/mock"
)

type todoRecord struct {
	description    string
	personID       vision.PersonID
	conversationID string
}

type recordingTodoStore struct {
	todos []todoRecord
	open  []store.Todo
	err   error
}

func (r *recordingTodoStore) AddTodo(_ context.Context, description string, personID vision.PersonID, conversationID string) error {
	if r.err != nil {
		return r.err
	}
	r.todos = append(r.todos, todoRecord{description, personID, conversationID})
	return nil
}

func (r *recordingTodoStore) ListOpenTodos(_ context.Context, _ vision.PersonID) ([]store.Todo, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.open, nil
}

type fakeDirectory struct {
	ids     []vision.PersonID
	renames [][2]vision.PersonID
	err     error
}

func (d *fakeDirectory) RenamePerson(_ context.Context, from, to vision.PersonID) error {
	if d.err != nil {
		return d.err
	}
	d.renames = append(d.renames, [2]vision.PersonID{from, to})
	return nil
}

func (d *fakeDirectory) ListPersonIDs(_ context.Context) ([]vision.PersonID, error) {
	return d.ids, nil
}

type fakeMemoryStore struct {
	searched []store.MemoryResult
	recent   []store.Memory

	searchCalls int
	recentCalls int
}

func (m *fakeMemoryStore) SearchMemories(_ context.Context, _ vision.PersonID, _ []float32, _ int) ([]store.MemoryResult, error) {
	m.searchCalls++
	return m.searched, nil
}

func (m *fakeMemoryStore) RecentMemories(_ context.Context, _ vision.PersonID, _ int) ([]store.Memory, error) {
	m.recentCalls++
	return m.recent, nil
}

func TestUpdateNameRenamesPersonInView(t *testing.T) {
	dir := &fakeDirectory{}
	tool := UpdateNameTool{Directory: dir}
	tc := ToolContext{PersonID: "Unnamed_a1b2c3d4"}

	out, err := tool.Invoke(context.Background(), tc, json.RawMessage(`{"new_name": "Alice"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(dir.renames) != 1 || dir.renames[0] != [2]vision.PersonID{"Unnamed_a1b2c3d4", "Alice"} {
		t.Errorf("renames = %v", dir.renames)
	}
	if !strings.Contains(out, "Alice") {
		t.Errorf("result = %q", out)
	}
}

func TestUpdateNameFuzzyResolvesSpokenName(t *testing.T) {
	dir := &fakeDirectory{ids: []vision.PersonID{"Katherine", "Bob"}}
	tool := UpdateNameTool{Directory: dir}

	// ASR drift: "Catherine" should still resolve to the stored "Katherine".
	_, err := tool.Invoke(context.Background(), ToolContext{PersonID: "Bob"},
		json.RawMessage(`{"new_name": "Kate", "person_name": "Catherine"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(dir.renames) != 1 || dir.renames[0][0] != "Katherine" {
		t.Errorf("renames = %v", dir.renames)
	}
}

func TestUpdateNameRejectsUnresolvableName(t *testing.T) {
	dir := &fakeDirectory{ids: []vision.PersonID{"Bob"}}
	tool := UpdateNameTool{Directory: dir}

	_, err := tool.Invoke(context.Background(), ToolContext{PersonID: "Bob"},
		json.RawMessage(`{"new_name": "X", "person_name": "Zebulon"}`))
	if err == nil {
		t.Fatal("expected error for unresolvable name")
	}
	if len(dir.renames) != 0 {
		t.Errorf("renames = %v, want none", dir.renames)
	}
}

func TestUpdateNameRequiresTarget(t *testing.T) {
	tool := UpdateNameTool{Directory: &fakeDirectory{}}
	_, err := tool.Invoke(context.Background(), ToolContext{PersonID: vision.NoPerson},
		json.RawMessage(`{"new_name": "Alice"}`))
	if err == nil {
		t.Fatal("expected error when nobody is in view")
	}
}

func TestRememberPrefersSemanticSearch(t *testing.T) {
	ms := &fakeMemoryStore{
		searched: []store.MemoryResult{
			{Memory: store.Memory{Text: "works at the bakery"}},
		},
	}
	tool := RememberTool{Store: ms, Embedder: &embedmock.Provider{EmbedResponse: []float32{1, 0}}}

	out, err := tool.Invoke(context.Background(), ToolContext{PersonID: "alice"},
		json.RawMessage(`{"query": "where does she work"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if ms.searchCalls != 1 || ms.recentCalls != 0 {
		t.Errorf("search=%d recent=%d, want semantic path", ms.searchCalls, ms.recentCalls)
	}
	if !strings.Contains(out, "works at the bakery") {
		t.Errorf("result = %q", out)
	}
}

func TestRememberFallsBackToRecency(t *testing.T) {
	ms := &fakeMemoryStore{recent: []store.Memory{{Text: "plays chess"}}}
	tool := RememberTool{
		Store:    ms,
		Embedder: &embedmock.Provider{EmbedErr: errors.New("quota exceeded")},
	}

	out, err := tool.Invoke(context.Background(), ToolContext{PersonID: "alice"},
		json.RawMessage(`{"query": "hobbies"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if ms.recentCalls != 1 {
		t.Error("recency fallback not taken")
	}
	if !strings.Contains(out, "plays chess") {
		t.Errorf("result = %q", out)
	}
}

func TestRememberNoPersonInView(t *testing.T) {
	tool := RememberTool{Store: &fakeMemoryStore{}}
	out, err := tool.Invoke(context.Background(), ToolContext{PersonID: vision.NoPerson},
		json.RawMessage(`{"query": "anything"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(out, "no person") {
		t.Errorf("result = %q", out)
	}
}

func TestCalendarListsOpenItems(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC)
	tool := CalendarTool{
		Store: &recordingTodoStore{open: []store.Todo{
			{Description: "send the checklist", CreatedAt: now.Add(-24 * time.Hour)},
		}},
		Now: func() time.Time { return now },
	}

	out, err := tool.Invoke(context.Background(), ToolContext{}, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(out, "Saturday, 14 March 2026") {
		t.Errorf("date missing: %q", out)
	}
	if !strings.Contains(out, "send the checklist") {
		t.Errorf("todo missing: %q", out)
	}
}

func TestNotificationRequiresClient(t *testing.T) {
	tool := NotificationTool{}
	_, err := tool.Invoke(context.Background(), ToolContext{},
		json.RawMessage(`{"title": "Hi", "message": "Hello"}`))
	if err == nil {
		t.Fatal("expected error without a notify callback")
	}
}

func TestWebSearchFormatsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tavilyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Query != "go generics" || req.APIKey != "tvly-test" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"answer": "Generics landed in Go 1.18.",
			"results": []map[string]string{
				{"title": "Go 1.18 notes", "url": "https://go.dev/doc/go1.18", "content": "Type parameters."},
			},
		})
	}))
	defer srv.Close()

	tool := &WebSearchTool{APIKey: "tvly-test", BaseURL: srv.URL, Client: srv.Client()}
	out, err := tool.Invoke(context.Background(), ToolContext{}, json.RawMessage(`{"query": "go generics"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(out, "Generics landed in Go 1.18.") || !strings.Contains(out, "go.dev/doc/go1.18") {
		t.Errorf("result = %q", out)
	}
}

func TestWebSearchSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	tool := &WebSearchTool{APIKey: "bad", BaseURL: srv.URL, Client: srv.Client()}
	_, err := tool.Invoke(context.Background(), ToolContext{}, json.RawMessage(`{"query": "x"}`))
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v, want status 401", err)
	}
}

func TestWebSearchRequiresAPIKey(t *testing.T) {
	tool := &WebSearchTool{}
	if _, err := tool.Invoke(context.Background(), ToolContext{}, json.RawMessage(`{"query": "x"}`)); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate registration did not panic")
		}
	}()
	NewRegistry(NotificationTool{}, NotificationTool{})
}
