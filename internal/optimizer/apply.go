package optimizer

import (
	"fmt"
	"os"
	"strings"
)

// readBotConfig parses the bot's key=value config file into a map. Lines
// that are blank or comments pass through unparsed; the optimizer only
// needs the fields the envelope names.
func readBotConfig(path string) (map[string]string, error) {
	vals := map[string]string{}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return vals, nil
		}
		return nil, err
	}
	for _, line := range strings.Split(string(b), "\n") {
		trim := strings.TrimSpace(line)
		if trim == "" || strings.HasPrefix(trim, "#") {
			continue
		}
		key, val, ok := strings.Cut(trim, "=")
		if !ok {
			continue
		}
		vals[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(val), `"'`)
	}
	return vals, nil
}

// applyChanges rewrites the named fields in place, preserving every other
// line byte for byte, and replaces the file atomically. Fields the file
// does not yet contain are appended.
func applyChanges(path string, changes []Change) error {
	var lines []string
	if b, err := os.ReadFile(path); err == nil {
		lines = strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	} else if !os.IsNotExist(err) {
		return err
	}

	pending := make(map[string]string, len(changes))
	for _, c := range changes {
		pending[c.Field] = c.New
	}
	for i, line := range lines {
		trim := strings.TrimSpace(line)
		if trim == "" || strings.HasPrefix(trim, "#") {
			continue
		}
		key, _, ok := strings.Cut(trim, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if val, ok := pending[key]; ok {
			lines[i] = fmt.Sprintf("%s = %s", key, val)
			delete(pending, key)
		}
	}
	for _, c := range changes {
		if val, ok := pending[c.Field]; ok {
			lines = append(lines, fmt.Sprintf("%s = %s", c.Field, val))
			delete(pending, c.Field)
		}
	}

	tmp := path + ".tmp"
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
