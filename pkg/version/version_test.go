package version

import "testing"

func TestString(t *testing.T) {
	defer func(t0, c0, d0 string) { tag, commit, date = t0, c0, d0 }(tag, commit, date)

	tests := []struct {
		name, tag, commit, date string
		want, full              string
	}{
		{name: "dev", commit: "unknown", date: "unknown", want: "dev", full: "goplace dev"},
		{name: "commit", commit: "abc1234", date: "2026-01-01", want: "abc1234", full: "goplace abc1234 (abc1234, built 2026-01-01)"},
		{name: "tag", tag: "v1.2.0", commit: "abc1234", date: "2026-01-01", want: "v1.2.0", full: "goplace v1.2.0 (abc1234, built 2026-01-01)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, commit, date = tt.tag, tt.commit, tt.date
			if got := String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if got := Full(); got != tt.full {
				t.Errorf("Full() = %q, want %q", got, tt.full)
			}
		})
	}
}
