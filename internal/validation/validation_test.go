package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestRules(t *testing.T) {
	r := NewRules(1024, []string{"jpg", ".PNG", " pdf "})

	tests := []struct {
		name    string
		size    int64
		ext     string
		wantErr error
	}{
		{"allowed", 10, "jpg", nil},
		{"allowed upper", 10, "JPG", nil},
		{"normalized list entry", 10, "png", nil},
		{"at limit", 1024, "pdf", nil},
		{"too large", 1025, "pdf", ErrTooLarge},
		{"bad extension", 10, "exe", ErrExtension},
		{"no extension", 10, "", ErrExtension},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Check(tt.size, tt.ext)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Check(%d, %q) = %v, want nil", tt.size, tt.ext, err)
				}
				if !r.Valid(tt.size, tt.ext) {
					t.Errorf("Valid(%d, %q) = false", tt.size, tt.ext)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Check(%d, %q) = %v, want %v", tt.size, tt.ext, err, tt.wantErr)
			}
			if r.Valid(tt.size, tt.ext) {
				t.Errorf("Valid(%d, %q) = true", tt.size, tt.ext)
			}
		})
	}
}

func TestRulesUnlimited(t *testing.T) {
	r := NewRules(0, nil)
	if !r.Valid(1<<40, "anything") {
		t.Error("empty rules should accept everything")
	}
	if !(AllowAll{}).Valid(-1, "") {
		t.Error("AllowAll rejected a file")
	}
}

func TestParseExtensions(t *testing.T) {
	got := ParseExtensions("jpg;png, .PDF  ;;txt")
	if strings.Join(got, ",") != "jpg,png,pdf,txt" {
		t.Errorf("ParseExtensions = %v", got)
	}
	if got := NewRules(0, got).AllowedList(); strings.Join(got, ",") != "jpg,pdf,png,txt" {
		t.Errorf("AllowedList = %v", got)
	}
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
	}{
		{"file.txt", true},
		{"9e107d9d372bb6826bd81d3542a419d6.png", true},
		{"data..v2.csv", true},
		{".hidden", true},
		{"", false},
		{"..", false},
		{"../etc/passwd", false},
		{"dir/file", false},
		{"dir\\file", false},
		{"nul\x00byte", false},
	}

	for _, tt := range tests {
		err := ValidateFilename(tt.filename)
		if tt.valid && err != nil {
			t.Errorf("ValidateFilename(%q) = %v, want nil", tt.filename, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("ValidateFilename(%q) = nil, want error", tt.filename)
		}
	}
}

func TestValidatePathInDirectory(t *testing.T) {
	tests := []struct {
		path    string
		baseDir string
		valid   bool
	}{
		{"file.txt", "/tmp/store", true},
		{"a/b/c.txt", "/tmp/store", true},
		{"sub/../file.txt", "/tmp/store", true},
		{"file.txt", "store", true},
		{"../file.txt", "/tmp/store", false},
		{"sub/../../../etc/passwd", "/tmp/store", false},
		{"/etc/passwd", "/tmp/store", false},
		{"", "/tmp/store", false},
		{"file.txt", "", false},
	}

	for _, tt := range tests {
		err := ValidatePathInDirectory(tt.path, tt.baseDir)
		if tt.valid && err != nil {
			t.Errorf("ValidatePathInDirectory(%q, %q) = %v", tt.path, tt.baseDir, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("ValidatePathInDirectory(%q, %q) = nil, want error", tt.path, tt.baseDir)
		}
	}
}
