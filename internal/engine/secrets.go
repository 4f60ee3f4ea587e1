package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// LoadSecrets reads a .env-style secrets file (KEY=VALUE per line) whose
// values instance props reference as ${{ secrets.KEY }}. Lines starting
// with # are comments, an optional "export " prefix is ignored, and a key
// may be defined only once.
func LoadSecrets(path string) (map[string]string, error) {
	secrets := make(map[string]string)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening secrets file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("secrets file line %d: invalid format (expected KEY=VALUE)", lineNum)
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			return nil, fmt.Errorf("secrets file line %d: empty key", lineNum)
		}
		if _, dup := secrets[key]; dup {
			return nil, fmt.Errorf("secrets file line %d: %s defined twice", lineNum, key)
		}

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		secrets[key] = value
	}

	return secrets, scanner.Err()
}

// LoadSecretsIfExists is LoadSecrets, but a missing file yields no secrets.
func LoadSecretsIfExists(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	secrets, err := LoadSecrets(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	return secrets, err
}
