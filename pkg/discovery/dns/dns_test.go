package dns

import (
    "testing"
    "time"
)

func TestSeedsPassthroughAndDedupe(t *testing.T) {
    d := New(Options{
        Names:   []string{" a:7946 ", "b:7946", "a:7946", ""},
        Refresh: time.Hour,
    })
    got := d.Seeds()
    if len(got) != 2 || got[0] != "a:7946" || got[1] != "b:7946" {
        t.Fatalf("unexpected seeds: %#v", got)
    }

    // Cached result is a copy.
    got[0] = "x"
    if again := d.Seeds(); again[0] != "a:7946" {
        t.Fatalf("expected defensive copy, got %#v", again)
    }
}
