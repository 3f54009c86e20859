// Package dict loads NUL-delimited dictionary tokens used by the mutation
// engine, adapted from honggfuzz's files_parseDictionary.
package dict

import (
	"bufio"
	"fmt"
	"os"
)

// Load reads a NUL-delimited token file into a slice of byte tokens.
func Load(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dict: couldn't open %q: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var tokens [][]byte
	for {
		tok, err := r.ReadBytes(0)
		if len(tok) > 0 {
			// Strip the trailing NUL delimiter, if present.
			if tok[len(tok)-1] == 0 {
				tok = tok[:len(tok)-1]
			}
			if len(tok) > 0 {
				cp := make([]byte, len(tok))
				copy(cp, tok)
				tokens = append(tokens, cp)
			}
		}
		if err != nil {
			break
		}
	}
	return tokens, nil
}
