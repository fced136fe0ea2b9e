package filter

import (
	"reflect"
	"testing"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		path string
		want bool
	}{
		{"empty config", Config{}, "a/b/c.txt", true},
		{"include by name", Config{Include: []string{"*.pdf"}}, "docs/report.pdf", true},
		{"include miss", Config{Include: []string{"*.pdf"}}, "docs/report.txt", false},
		{"exclude wins", Config{Include: []string{"*.pdf"}, Exclude: []string{"draft*"}}, "docs/draft-1.pdf", false},
		{"exclude by path", Config{Exclude: []string{"tmp/**"}}, "tmp/x/y.png", false},
		{"exclude elsewhere", Config{Exclude: []string{"tmp/**"}}, "keep/y.png", true},
		{"path include", Config{PathInclude: []string{"scans/*.png"}}, "scans/1.png", true},
		{"path include deeper", Config{PathInclude: []string{"scans/*.png"}}, "scans/old/1.png", false},
		{"leading double star", Config{PathInclude: []string{"**/final.pdf"}}, "a/b/final.pdf", true},
		{"leading double star at root", Config{PathInclude: []string{"**/final.pdf"}}, "final.pdf", true},
		{"middle double star", Config{PathInclude: []string{"run/**/out.csv"}}, "run/1/2/out.csv", true},
		{"middle double star miss", Config{PathInclude: []string{"run/**/out.csv"}}, "walk/1/out.csv", false},
		{"leading slash ignored", Config{PathInclude: []string{"scans/*"}}, "/scans/a.png", true},
		{"bad pattern never matches", Config{Include: []string{"[a-"}}, "a.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Match(tt.path); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestParsePatternList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"*.dat", []string{"*.dat"}},
		{" *.dat , *.txt ,,", []string{"*.dat", "*.txt"}},
	}
	for _, tt := range tests {
		if got := ParsePatternList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParsePatternList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
