package i18n

import "testing"

func TestLangResolution(t *testing.T) {
	c := New("en")

	tests := []struct {
		in   string
		want string
	}{
		{"", "en"},
		{"en", "en"},
		{"ru", "ru"},
		{"ru-RU", "ru"},
		{"pt-BR", "en"},
		{"not a tag!", "en"},
	}
	for _, tt := range tests {
		if got := c.Lang(tt.in); got != tt.want {
			t.Errorf("Lang(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderPlaceholders(t *testing.T) {
	c := New("en")

	got := c.Render("en", KeyBroadcastJoin, "nick", "Alice", "server", "Home")
	if got != "Alice joined Home" {
		t.Fatalf("unexpected render: %q", got)
	}

	got = c.Render("ru", KeyBroadcastLeave, "nick", "Боб", "server", "Дом")
	if got != "Боб вышел с Дом" {
		t.Fatalf("unexpected ru render: %q", got)
	}

	if got := c.Render("en", "missing.key"); got != "missing.key" {
		t.Fatalf("missing key should render as key, got %q", got)
	}
}

func TestDefaultLanguage(t *testing.T) {
	c := New("ru")
	if got := c.Lang("de"); got != "ru" {
		t.Fatalf("unmatched language should fall back to ru, got %q", got)
	}
	if got := New("xx").Lang(""); got != "en" {
		t.Fatalf("unknown default should fall back to en, got %q", got)
	}
}
