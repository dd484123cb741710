package context

import (
	"testing"
)

func TestMessageLog_AddUser_PinsIndexZero(t *testing.T) {
	log := NewMessageLog(nil)
	log.AddUser("hi")

	if !log.All()[0].Pinned {
		t.Fatal("first message added to an empty log must be pinned")
	}
}

func TestMessageLog_Truncate_RespectsPins(t *testing.T) {
	log := NewMessageLog(nil)
	log.AddUser("seed") // pinned
	for i := 0; i < 20; i++ {
		log.AddAssistant("filler filler filler filler filler", nil)
	}

	before := log.EstimateTokens()
	removed := log.Truncate(10)

	if len(removed) == 0 {
		t.Fatal("expected truncate to remove messages")
	}
	if !log.All()[0].Pinned {
		t.Fatal("pinned message must survive truncate")
	}
	if log.EstimateTokens() > before {
		t.Fatal("truncate must not increase the estimate")
	}
}

func TestMessageLog_Truncate_StopsWhenOnlyPinnedRemain(t *testing.T) {
	log := NewMessageLog(nil)
	log.AddUser("seed")
	if err := log.Pin(0); err != nil {
		t.Fatal(err)
	}

	removed := log.Truncate(0)
	if len(removed) != 0 {
		t.Fatalf("expected no removals when only pinned messages remain, got %d", len(removed))
	}
}

func TestMessageLog_Summarize_SplicesRange(t *testing.T) {
	log := NewMessageLog(nil)
	for i := 0; i < 5; i++ {
		log.AddUser("m")
	}

	if err := log.Summarize(1, 3, "done"); err != nil {
		t.Fatal(err)
	}

	all := log.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 messages after splicing 3 of 5 into 1, got %d", len(all))
	}
	if all[1].Content != "[Context summary]: done" {
		t.Fatalf("unexpected summary message content: %q", all[1].Content)
	}
}

func TestMessageLog_Pin_OutOfBounds(t *testing.T) {
	log := NewMessageLog(nil)
	if err := log.Pin(0); err == nil {
		t.Fatal("expected error pinning an out-of-bounds index on an empty log")
	}
}
