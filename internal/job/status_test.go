package job

import "testing"

func TestAdvance(t *testing.T) {
	tests := []struct {
		cur, next   Status
		want        Status
		wantChanged bool
	}{
		{Pending, Pending, Pending, false},
		{Pending, Processing, Processing, true},
		{Pending, Completed, Completed, true},
		{Processing, Pending, Processing, false},
		{Processing, Failed, Failed, true},
		{Completed, Processing, Completed, false},
		{Failed, Completed, Failed, false},
		{Pending, Status("queued"), Pending, false},
	}
	for _, tt := range tests {
		got, changed := Advance(tt.cur, tt.next)
		if got != tt.want || changed != tt.wantChanged {
			t.Errorf("Advance(%s, %s) = (%s, %v), want (%s, %v)", tt.cur, tt.next, got, changed, tt.want, tt.wantChanged)
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"pending", "processing", "completed", "failed"} {
		if _, ok := ParseStatus(s); !ok {
			t.Errorf("ParseStatus(%q) not ok", s)
		}
	}
	if _, ok := ParseStatus("done"); ok {
		t.Error("unknown status accepted")
	}
	if !Completed.Terminal() || !Failed.Terminal() || Processing.Terminal() {
		t.Error("unexpected Terminal results")
	}
}
