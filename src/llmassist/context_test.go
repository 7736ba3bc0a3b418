package llmassist

import "testing"

func TestContextStoreCapAfterTwelveTurns(t *testing.T) {
	store := NewContextStore("")

	for i := 0; i < 12; i++ {
		store.Append("s1", "user", "turn")
	}

	turns := store.Get("s1")
	if len(turns) != 11 {
		t.Fatalf("len(turns) = %d, want 11 (1 system + 10 turns)", len(turns))
	}
	if turns[0].Role != "system" {
		t.Fatalf("turns[0].Role = %q, want system", turns[0].Role)
	}
}

func TestContextStoreClearKeepsSystemMessage(t *testing.T) {
	store := NewContextStore("custom prompt")
	store.Append("s1", "user", "hello")
	store.Clear("s1")

	turns := store.Get("s1")
	if len(turns) != 1 || turns[0].Content != "custom prompt" {
		t.Fatalf("Clear() left %+v, want just the system message", turns)
	}
}

func TestTruncateOutput(t *testing.T) {
	short := "hello"
	if got := TruncateOutput(short, 2000); got != short {
		t.Fatalf("short output should be unchanged, got %q", got)
	}

	long := make([]byte, 5000)
	for i := range long {
		long[i] = byte('a' + i%26)
	}
	got := TruncateOutput(string(long), 2000)
	if len(got) != 2000+len("...[output truncated]...")+2000 {
		t.Fatalf("truncated length = %d, want head+marker+tail", len(got))
	}
}
