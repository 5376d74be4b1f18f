package idgen

import "testing"

func TestGenerateDistinctAndShaped(t *testing.T) {
	seen := make(map[string]bool)
	exists := func(id string) bool { return seen[id] }
	for i := 0; i < 2000; i++ {
		id, err := Generate(exists)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(id) != Length {
			t.Fatalf("id %q has length %d, want %d", id, len(id), Length)
		}
		for _, r := range id {
			if !strings_ContainsRune(Alphabet, r) {
				t.Fatalf("id %q contains char %q outside alphabet", id, r)
			}
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func strings_ContainsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

func TestGenerateGivesUpOnExhaustion(t *testing.T) {
	_, err := Generate(func(string) bool { return true })
	if err == nil {
		t.Fatal("expected error when every candidate collides")
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Fix the Widget!!":  "fix-the-widget",
		"  leading/trailing ": "leading-trailing",
		"Café déjà vu":      "cafe-deja-vu",
		"":                  "",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
