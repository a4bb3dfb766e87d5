package msgcat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedCatalogRenders(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("game.end.checkmate", map[string]any{"Winner": "White"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Checkmate. White wins." {
		t.Fatalf("unexpected text %q", got)
	}
	for _, key := range []string{"game.end.stalemate", "game.end.timeout", "game.end.resign", "game.end.disconnect", "game.end.repetition"} {
		if !c.Has(key) {
			t.Fatalf("missing %s", key)
		}
	}
}

func TestRenderMissingKeyFails(t *testing.T) {
	c := MustDefault()
	if _, err := c.Render("game.end.timeout", map[string]any{"Winner": "Black"}); err == nil {
		t.Fatalf("expected missing template field to fail")
	}
	if _, err := c.Render("no.such.key", nil); err == nil {
		t.Fatalf("expected unknown key to fail")
	}
	if got := c.RenderOr("no.such.key", nil, "fallback"); got != "fallback" {
		t.Fatalf("RenderOr fallback = %q", got)
	}
	var nilCat *Catalog
	if got := nilCat.RenderOr("game.end.stalemate", nil, "x"); got != "x" {
		t.Fatalf("nil catalog should fall back")
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("a.yaml", "game:\n  end:\n    stalemate: \"No moves left.\"\n")
	write("notes.txt", "ignored")

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, _ := c.Render("game.end.stalemate", nil); got != "No moves left." {
		t.Fatalf("override not applied: %q", got)
	}
	if got, _ := c.Render("game.end.checkmate", map[string]any{"Winner": "Black"}); got != "Checkmate. Black wins." {
		t.Fatalf("embedded key lost: %q", got)
	}
}

func TestOverrideDirDuplicateKeys(t *testing.T) {
	dir := t.TempDir()
	body := []byte("game:\n  end:\n    stalemate: \"x\"\n")
	_ = os.WriteFile(filepath.Join(dir, "a.yaml"), body, 0o600)
	_ = os.WriteFile(filepath.Join(dir, "b.yml"), body, 0o600)
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestNonStringLeafRejected(t *testing.T) {
	if _, err := parseYAMLToFlat([]byte("game:\n  count: 3\n")); err == nil {
		t.Fatalf("expected error for numeric leaf")
	}
}
