package memory

import "testing"

func TestAcceptFactValue(t *testing.T) {
	tests := []struct {
		attribute, value string
		want             bool
	}{
		{"spouse", "wife", false},
		{"spouse", "Names", false},
		{"spouse", "  Ana ", true},
		{"child", "kids", false},
		{"child", "J", false},
		{"child", "42", false},
		{"pet", "Rex|dog", true},
		{"Mother", "mom", false},
		{"favorite_color", "x", true},
		{"name", "name", true},
	}
	for _, tt := range tests {
		if got := AcceptFactValue(tt.attribute, tt.value); got != tt.want {
			t.Errorf("AcceptFactValue(%q, %q) = %v, want %v", tt.attribute, tt.value, got, tt.want)
		}
	}
}

func TestSearchTerms(t *testing.T) {
	got := SearchTerms("what's my ai id? my wife's name, my wife")
	want := []string{"what's", "ai", "id", "wife's", "name", "wife"}
	if len(got) != len(want) {
		t.Fatalf("terms = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("term[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
