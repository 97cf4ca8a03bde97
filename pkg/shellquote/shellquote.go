// Package shellquote renders argument vectors as pasteable POSIX shell lines.
// Commands are never executed through a shell; this is for logs only.
package shellquote

import "strings"

// unquoted lists the bytes that never need quoting.
const unquoted = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_@%+=:,./-"

// Quote returns s in a form a POSIX shell reads back as a single word.
func Quote(s string) string {
	if s == "" {
		return "''"
	}

	if strings.Trim(s, unquoted) == "" {
		return s
	}

	// Inside single quotes nothing is special except the quote itself.
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Join constructs a shell-pasteable command line from bin and args.
func Join(bin string, args []string) string {
	parts := make([]string, 0, 1+len(args))
	parts = append(parts, Quote(bin))

	for _, arg := range args {
		parts = append(parts, Quote(arg))
	}

	return strings.Join(parts, " ")
}
