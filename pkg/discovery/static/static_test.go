package static

import (
	"testing"

	"github.com/amirimatin/go-peerseed/pkg/discovery"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want []discovery.Endpoint
	}{
		{"", nil},
		{"a:1", []discovery.Endpoint{{Host: "a", Port: 1}}},
		{" a:1 , b:2 ", []discovery.Endpoint{{Host: "a", Port: 1}, {Host: "b", Port: 2}}},
		{",,a:1, ,b:2,", []discovery.Endpoint{{Host: "a", Port: 1}, {Host: "b", Port: 2}}},
		{"noport,c:3", []discovery.Endpoint{{Host: "c", Port: 3}}},
	}
	for _, c := range cases {
		got := Parse(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("len mismatch for %q: got %d want %d", c.in, len(got), len(c.want))
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("[%q] item %d: got %v want %v", c.in, i, got[i], c.want[i])
			}
		}
	}
}

func TestNew(t *testing.T) {
	d := New(discovery.Endpoint{Host: "a", Port: 1}, discovery.Endpoint{Host: "b", Port: 2})
	got := d.Seeds()
	if len(got) != 2 || got[0].Host != "a" || got[1].Port != 2 {
		t.Fatalf("unexpected seeds: %#v", got)
	}
	// Ensure returned slice is a copy
	got[0] = discovery.Endpoint{Host: "x", Port: 9}
	got2 := d.Seeds()
	if got2[0].Host != "a" {
		t.Fatalf("expected defensive copy, got %#v", got2)
	}
}

func TestNewKeepsDuplicates(t *testing.T) {
	ep := discovery.Endpoint{Host: "a", Port: 1}
	d := New(ep, ep)
	if got := d.Seeds(); len(got) != 2 {
		t.Fatalf("duplicates should be preserved, got %#v", got)
	}
}
