package palette

import "testing"

func TestClassifyAllNames(t *testing.T) {
	for _, name := range []string{"red", "orange", "yellow", "green", "blue", "purple", "black", "white", "gray"} {
		t.Run(name, func(t *testing.T) {
			c, ok := Classify(name)
			if !ok {
				t.Fatalf("Classify(%q): no match", name)
			}
			if c.Name != name {
				t.Errorf("Classify(%q).Name = %q", name, c.Name)
			}
		})
	}
}

func TestClassifyExact(t *testing.T) {
	for _, in := range []string{"Red", "red ", " red", "RED", "grey", "", "blue green", "reddish"} {
		if c, ok := Classify(in); ok {
			t.Errorf("Classify(%q) = %q, want no match", in, c.Name)
		}
	}
}

func TestNamesOrder(t *testing.T) {
	names := Names()
	if len(names) != 9 {
		t.Fatalf("got %d names, want 9", len(names))
	}
	if names[0] != "red" || names[8] != "gray" {
		t.Errorf("unexpected order: %v", names)
	}
	for _, n := range names {
		if _, ok := Classify(n); !ok {
			t.Errorf("name %q not classifiable", n)
		}
	}
}

func TestLastSegment(t *testing.T) {
	tests := []struct {
		name string
		text string
		segs []Segment
		want string
	}{
		{"single", "blue", []Segment{{0}}, "blue"},
		{"last word", "make it blue", []Segment{{0}, {5}, {8}}, "blue"},
		{"no segments", "blue", nil, ""},
		{"trailing punctuation kept", "make it blue.", []Segment{{0}, {5}, {8}}, "blue."},
		{"offset past end", "blue", []Segment{{9}}, ""},
		{"negative offset", "blue", []Segment{{-3}}, "blue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LastSegment(tt.text, tt.segs); got != tt.want {
				t.Errorf("LastSegment(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestLastSegmentThenClassify(t *testing.T) {
	text := "now green"
	word := LastSegment(text, []Segment{{0}, {4}})
	c, ok := Classify(word)
	if !ok || c.Name != "green" {
		t.Fatalf("got %q ok=%v, want green", c.Name, ok)
	}
}
