package util

import "testing"

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ada@example.com", "a***@example.com"},
		{"a@example.com", "*@example.com"},
		{" ada@example.com ", "a***@example.com"},
		{"no-at-sign", "n***"},
		{"ab", "***"},
		{"", "***"},
		{"@example.com", "@***"},
	}
	for _, tc := range cases {
		if got := MaskEmail(tc.in); got != tc.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWritablePath(t *testing.T) {
	t.Setenv("WRITABLE_PATH", "  /var/lib/automation/ ")
	if got := WritablePath(); got != "/var/lib/automation" {
		t.Errorf("WritablePath() = %q", got)
	}

	t.Setenv("WRITABLE_PATH", "")
	t.Setenv("writable_path", "/tmp/app")
	if got := WritablePath(); got != "/tmp/app" {
		t.Errorf("WritablePath() lowercase = %q", got)
	}
}
