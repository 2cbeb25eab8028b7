package chat_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/portfolio-ai/backend/internal/model/chat"
)

func TestLogHistoryPreservesOrderAndRoles(t *testing.T) {
	log := chat.NewLog("")
	log.Append(chat.Message{Sender: chat.SenderUser, Text: "hi"})
	log.Append(chat.Message{Sender: chat.SenderAssistant, Text: "hello"})
	log.Append(chat.Message{Sender: chat.SenderUser, Text: "projects?"})

	want := []chat.Turn{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello"},
		{Role: chat.RoleUser, Content: "projects?"},
	}
	if diff := cmp.Diff(want, log.AsRoleTaggedHistory()); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestLogAppendFillsIdentity(t *testing.T) {
	log := chat.NewLog("")
	stored := log.Append(chat.Message{Sender: chat.SenderUser, Text: "hi"})
	if stored.ID == "" {
		t.Fatal("expected generated id")
	}
	if stored.CreatedAt.IsZero() {
		t.Fatal("expected creation time")
	}
}

func TestLogClearIsIdempotent(t *testing.T) {
	log := chat.NewLog("System online.")
	log.Append(chat.Message{Sender: chat.SenderUser, Text: "hi"})
	log.Append(chat.Message{Sender: chat.SenderAssistant, Text: "hello"})

	log.Clear()
	first := log.AsRoleTaggedHistory()
	log.Clear()
	log.Clear()
	second := log.AsRoleTaggedHistory()

	want := []chat.Turn{{Role: chat.RoleAssistant, Content: "System online."}}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Fatalf("unexpected state after clear (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("clear is not idempotent (-first +second):\n%s", diff)
	}
}

func TestLogEntriesReturnsCopy(t *testing.T) {
	log := chat.NewLog("")
	log.Append(chat.Message{Sender: chat.SenderUser, Text: "hi"})

	entries := log.Entries()
	entries[0].Text = "mutated"

	if got := log.Entries()[0].Text; got != "hi" {
		t.Fatalf("internal state mutated via returned slice: %q", got)
	}
}

func TestLogReviseOnlyLatestAssistant(t *testing.T) {
	log := chat.NewLog("")
	user := log.Append(chat.Message{Sender: chat.SenderUser, Text: "hi"})

	if err := log.Revise(user.ID, "edited"); err != chat.ErrNotRevisable {
		t.Fatalf("expected ErrNotRevisable for user turn, got %v", err)
	}

	reply := log.Append(chat.Message{Sender: chat.SenderAssistant})
	if err := log.Revise(reply.ID, "Hel"); err != nil {
		t.Fatalf("Revise err: %v", err)
	}
	if err := log.Revise(reply.ID, "Hello"); err != nil {
		t.Fatalf("Revise err: %v", err)
	}
	if got := log.Entries()[1].Text; got != "Hello" {
		t.Fatalf("unexpected revised text %q", got)
	}

	log.Append(chat.Message{Sender: chat.SenderUser, Text: "next"})
	if err := log.Revise(reply.ID, "late"); err != chat.ErrNotRevisable {
		t.Fatalf("expected ErrNotRevisable for older turn, got %v", err)
	}
	if err := log.Revise("missing", "x"); err != chat.ErrMessageNotFound {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}
