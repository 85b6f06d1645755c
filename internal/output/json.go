// Package output formats bench-driver results for the terminal and for
// files: indented JSON (this file) and a human-readable progress writer
// (progress.go).
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// WriteJSON serializes v as indented JSON to path. If path is "-" or
// empty, it writes to stdout instead — the bench-driver CLI's `format`
// subcommand uses this for both a sweep result and a solved tune-solver
// output.
func WriteJSON(v any, path string) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}
