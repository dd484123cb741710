package service

import "testing"

func TestLoopDetector_RecordName_TriggersAtThreshold(t *testing.T) {
	d := NewLoopDetector(10, 5, 3, nil)

	for i := 0; i < 2; i++ {
		if p := d.RecordName("bash"); p != "" {
			t.Fatalf("expected no reflection prompt before threshold, got %q", p)
		}
	}
	p := d.RecordName("bash")
	if p == "" {
		t.Fatal("expected a reflection prompt once nameThreshold is reached")
	}
}

func TestLoopDetector_RecordName_SlidesWindow(t *testing.T) {
	d := NewLoopDetector(4, 10, 3, nil)

	d.RecordName("bash")
	d.RecordName("bash")
	d.RecordName("other")
	d.RecordName("other")
	// Window is now [bash,bash,other,other]; one more bash slides the oldest
	// bash out, leaving only 2 bash in the window — below nameThreshold 3.
	if p := d.RecordName("bash"); p != "" {
		t.Fatalf("expected no prompt once the window no longer holds 3 bash calls, got %q", p)
	}
}

func TestLoopDetector_Record_TriggersOnConsecutiveIdenticalSignature(t *testing.T) {
	d := NewLoopDetector(10, 3, 100, nil)

	if p := d.Record("write_file", `{"path":"a.go"}`); p != "" {
		t.Fatalf("expected no prompt on first call, got %q", p)
	}
	if p := d.Record("write_file", `{"path":"a.go"}`); p != "" {
		t.Fatalf("expected no prompt on second call, got %q", p)
	}
	p := d.Record("write_file", `{"path":"a.go"}`)
	if p == "" {
		t.Fatal("expected a reflection prompt on the third identical consecutive call")
	}
}

func TestLoopDetector_Record_DifferentArgsDoNotTrigger(t *testing.T) {
	d := NewLoopDetector(10, 3, 100, nil)

	if p := d.Record("write_file", `{"path":"a.go"}`); p != "" {
		t.Fatalf("unexpected prompt: %q", p)
	}
	if p := d.Record("write_file", `{"path":"b.go"}`); p != "" {
		t.Fatalf("unexpected prompt: %q", p)
	}
	if p := d.Record("write_file", `{"path":"c.go"}`); p != "" {
		t.Fatalf("unexpected prompt for varying arguments: %q", p)
	}
}

func TestLoopDetector_Record_BrokenStreakResets(t *testing.T) {
	d := NewLoopDetector(10, 3, 100, nil)

	d.Record("bash", "ls")
	d.Record("bash", "ls")
	d.Record("bash", "pwd") // breaks the streak
	if p := d.Record("bash", "ls"); p != "" {
		t.Fatalf("expected streak to have reset after an interleaved different call, got %q", p)
	}
}
