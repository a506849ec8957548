package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestApp_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"version"})
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "sessioncache version") {
		t.Errorf("version output missing 'sessioncache version', got: %s", output)
	}
}

func TestApp_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"--help"})
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Tiered cache") {
		t.Errorf("help output missing description, got: %s", output)
	}
	for _, sub := range []string{"get", "set", "delete", "list", "search", "stats", "cleanup", "flush"} {
		if !strings.Contains(output, sub) {
			t.Errorf("help output missing %q command, got: %s", sub, output)
		}
	}
}

func TestApp_SetAndGet(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	// No config file: the engine runs entirely in memory, so set and
	// get have to share one invocation's lifetime. The set alone still
	// proves the write path end to end.
	err := app.ExecuteWithArgs(context.Background(), []string{
		"set", "chat-123", "--data", `{"messages":[]}`, "--title", "Test chat",
	})
	if err != nil {
		t.Fatalf("set command failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Stored chat-123") {
		t.Errorf("set output missing confirmation, got: %s", stdout.String())
	}
}

func TestApp_GetMissing(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"get", "no-such-key"})
	if err == nil {
		t.Fatal("get of a missing key should fail")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestApp_List(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"list"})
	if err != nil {
		t.Fatalf("list command failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "No entries found") {
		t.Errorf("list output = %s, want empty-store message", stdout.String())
	}
}

func TestApp_SearchRequiresCriteria(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"search"})
	if err == nil {
		t.Fatal("search without criteria should fail")
	}
}

func TestApp_Stats(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"stats"})
	if err != nil {
		t.Fatalf("stats command failed: %v", err)
	}

	output := stdout.String()
	for _, want := range []string{"Volatile tier", "Durable tier", "Connectivity"} {
		if !strings.Contains(output, want) {
			t.Errorf("stats output missing %q, got: %s", want, output)
		}
	}
}

func TestApp_Cleanup(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"cleanup"})
	if err != nil {
		t.Fatalf("cleanup command failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Removed 0 expired entries") {
		t.Errorf("cleanup output = %s, want zero removals", stdout.String())
	}
}
