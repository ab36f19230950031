package core

import (
	"regexp"
	"runtime"
)

var (
	windowsDrivePrefix  = regexp.MustCompile(`^[a-zA-Z]:\\`)
	windowsReservedChar = regexp.MustCompile(`[<>:"/|?*]`)
)

// SanitizePath makes a candidate output path valid on the host filesystem.
// On Windows reserved characters are replaced; elsewhere the path is
// returned unchanged.
func SanitizePath(path string) string {
	if runtime.GOOS == "windows" {
		return SanitizeWindowsPath(path)
	}
	return path
}

// SanitizeWindowsPath replaces any of < > : " / | ? * with '-', keeping a
// leading drive prefix such as `C:\` verbatim.
func SanitizeWindowsPath(path string) string {
	prefix, rest := "", path
	if windowsDrivePrefix.MatchString(path) {
		prefix, rest = path[:3], path[3:]
	}
	return prefix + windowsReservedChar.ReplaceAllString(rest, "-")
}
