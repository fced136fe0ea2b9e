//go:build !windows

package progress

import "os"

// enableWindowsANSI is a no-op; Unix terminals support ANSI natively
func enableWindowsANSI(f *os.File) {}
