package logging

import (
	"strings"
	"testing"
	"time"
)

func TestFormatterRender(t *testing.T) {
	t.Parallel()
	rec := record{
		Time:    time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC),
		Level:   LevelWarning,
		Name:    "market_data_pipeline.feed",
		Line:    42,
		Message: "sequence gap",
	}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{
			name: "standard",
			tmpl: "%(asctime)s - %(name)s - %(levelname)s - %(message)s",
			want: "2026-03-14 09:26:53,589 - market_data_pipeline.feed - WARNING - sequence gap\n",
		},
		{
			name: "detailed",
			tmpl: "%(levelname)s %(name)s:%(lineno)d %(message)s",
			want: "WARNING market_data_pipeline.feed:42 sequence gap\n",
		},
		{
			name: "literal percent",
			tmpl: "100%% %(message)s",
			want: "100% sequence gap\n",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f, err := compileFormat("test", tt.tmpl)
			if err != nil {
				t.Fatalf("compileFormat: %v", err)
			}
			if got := string(f.render(nil, rec)); got != tt.want {
				t.Fatalf("render = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatterMillisecondPadding(t *testing.T) {
	t.Parallel()
	f, err := compileFormat("test", "%(asctime)s")
	if err != nil {
		t.Fatal(err)
	}
	rec := record{Time: time.Date(2026, 1, 2, 3, 4, 5, 7_000_000, time.UTC)}
	got := string(f.render(nil, rec))
	if !strings.HasSuffix(strings.TrimSuffix(got, "\n"), ",007") {
		t.Fatalf("want zero-padded milliseconds, got %q", got)
	}
}

func TestCompileFormatRejectsUnknownPlaceholder(t *testing.T) {
	t.Parallel()
	for _, tmpl := range []string{
		"%(thread)d %(message)s",
		"%(message", // unterminated
		"%(message)", // missing verb
		"50% done",   // stray percent
	} {
		if _, err := compileFormat("bad", tmpl); err == nil {
			t.Fatalf("compileFormat(%q) should fail", tmpl)
		}
	}
}
