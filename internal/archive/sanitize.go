package archive

import (
	"path"
	"regexp"
	"strings"
)

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName reduces an untrusted, user-supplied document name to a
// safe archive member stem: the final path element only, every run of
// characters outside [A-Za-z0-9._-] folded to a single underscore, and
// a lowercase ".pdf" suffix guaranteed. The result always matches
// ^[A-Za-z0-9._-]+\.pdf$ and contains no path separators, so archive
// entries can never escape their variant directory.
func SanitizeName(name string) string {
	if name == "" {
		name = "file"
	}
	// Strip any directory component, whichever separator style the
	// client used.
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeRun.ReplaceAllString(base, "_")

	stem := base
	if strings.HasSuffix(strings.ToLower(base), ".pdf") {
		stem = base[:len(base)-4]
	}
	if stem == "" {
		stem = "file"
	}
	return stem + ".pdf"
}

// HasPDFExtension reports whether the raw upload name claims to be a
// PDF. Admission rejects anything else before the bytes are touched.
func HasPDFExtension(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}
