package transcript

import (
	"testing"

	"github.com/Strob0t/lifelog/internal/config"
)

func TestNormalize(t *testing.T) {
	got := normalize("今日は…いい天気...です")
	if got != "今日は いい天気 です" {
		t.Errorf("normalize = %q", got)
	}
	if got := normalize("v1.2 ok."); got != "v1.2 ok." {
		t.Errorf("single dots must survive, got %q", got)
	}
}

func TestRemoveRepetition(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"あああああ", "あ"},
		{"ふんふんふんふんふん", "ふん"},
		{"ababababababx", "abx"},
		{"ははは", "ははは"},
		{"aaaa", "aaaa"},
		{"そうそうそうそうそうだね", "そうだね"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := removeRepetition(tt.in); got != tt.want {
			t.Errorf("removeRepetition(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRemoveFillers(t *testing.T) {
	c := New(config.DefaultFillers)
	tests := []struct {
		in, want string
	}{
		{"えー 今日は あの 会議でした", "今日は 会議でした"},
		{"会議は、まあ、順調でした。", "会議は、順調でした。"},
		{"あなたの番です", "あなたの番です"},
		{"えっと", ""},
		{"あのね 聞いて", "聞いて"},
		{"うん うん うん", ""},
	}
	for _, tt := range tests {
		if got := c.removeFillers(tt.in); got != tt.want {
			t.Errorf("removeFillers(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLongestFillerWins(t *testing.T) {
	c := New([]string{"あの", "あのさ"})
	if got := c.removeFillers("あのさ 明日"); got != "明日" {
		t.Errorf("got %q, want 明日", got)
	}
}

func TestDedupeWords(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"今日は 今日は 晴れ", "今日は 晴れ"},
		{"go go", "go"},
		{"foo foobar", "foo foobar"},
		{"ab b", "ab"},
		{"one two", "one two"},
		{"single", "single"},
	}
	for _, tt := range tests {
		if got := dedupeWords(tt.in); got != tt.want {
			t.Errorf("dedupeWords(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClean(t *testing.T) {
	c := New(config.DefaultFillers)
	in := "えー 今日は 今日は…あのー 会議でした\nうんうんうんうんうん"
	if got := c.Clean(in); got != "今日は 会議でした" {
		t.Errorf("Clean = %q", got)
	}
}

func TestCleanMergesLines(t *testing.T) {
	c := New(nil)
	if got := c.Clean("first line\n\n  second line \n"); got != "first line second line" {
		t.Errorf("Clean = %q", got)
	}
}

func TestValid(t *testing.T) {
	if Valid("   ") || Valid("") || Valid("\xff\xfe") {
		t.Error("blank or invalid UTF-8 reported valid")
	}
	if !Valid("こんにちは") {
		t.Error("text reported invalid")
	}
}
