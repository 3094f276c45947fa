package assemble

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// LoadDropList reads the optional per-variable exclusion file, one
// variable name per line. An absent file is a valid state meaning no
// variables are excluded; it is reported through present, not as an
// error.
func LoadDropList(path string) (names []string, present bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read drop list %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, false, fmt.Errorf("read drop list %q: %w", path, err)
	}
	return names, true, nil
}
