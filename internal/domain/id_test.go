package domain

import "testing"

func TestParseID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"31001241758", "31001241758", true},
		{" 3100124175 ", "3100124175", true},
		{"310012417", "", false},
		{"31001241758a", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := ParseID(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("ParseID(%q)：期望 (%q,%v)，实际 (%q,%v)", c.in, c.want, c.ok, got, ok)
		}
	}
}

func TestParseLang(t *testing.T) {
	for _, ok := range []string{"id", "en", "fil", "zh-TW", " th "} {
		if _, got := ParseLang(ok); !got {
			t.Fatalf("期望 %q 合法", ok)
		}
	}
	for _, bad := range []string{"", "ID", "indonesia", "zh_TW", "en-USA", "../x"} {
		if _, got := ParseLang(bad); got {
			t.Fatalf("期望 %q 非法", bad)
		}
	}
}
