package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// readInput returns the text to scan: the positional arguments, the --file contents,
// or stdin when neither is given.
func readInput(args []string, file string, stdin io.Reader) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(data), nil
	}
	if len(args) > 0 {
		// one indicator per line keeps each argument a separate candidate
		return strings.Join(args, "\n"), nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
