package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/cruzjc/pi5-dashboard/pkg/fsutil"
)

// keyPattern is the accepted env key grammar.
var keyPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// EnvStore reads and rewrites the secrets env file. The file is regenerated
// entirely on every write: keys sorted, values single-quoted shell-safe,
// mode 0600 via tmp-rename.
type EnvStore struct {
	Path string
}

// NewEnvStore creates a store over path.
func NewEnvStore(path string) *EnvStore {
	return &EnvStore{Path: path}
}

// Load parses the file. A missing file yields an empty map.
func (s *EnvStore) Load() (map[string]string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return ParseEnv(string(data))
}

// Save rewrites the whole file from m.
func (s *EnvStore) Save(m map[string]string) error {
	for k := range m {
		if !keyPattern.MatchString(k) {
			return fmt.Errorf("invalid env key %q", k)
		}
	}
	return fsutil.WriteFileAtomic(s.Path, []byte(RenderEnv(m)), 0o600)
}

// ParseEnv parses the env-file grammar: one KEY=VALUE per line, optional
// leading "export", values bare, single-quoted (with the shell '\'' escape)
// or double-quoted (with \n \r \t \" \\ escapes). Bare values lose inline
// "#" comments. Blank lines and comment lines are skipped; malformed lines
// are an error.
func ParseEnv(content string) (map[string]string, error) {
	out := map[string]string{}
	for lineNo, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		line = strings.TrimSpace(line)

		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("line %d: missing '='", lineNo+1)
		}
		key := strings.TrimSpace(line[:eq])
		if !keyPattern.MatchString(key) {
			return nil, fmt.Errorf("line %d: invalid key %q", lineNo+1, key)
		}
		value, err := parseEnvValue(strings.TrimSpace(line[eq+1:]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		out[key] = value
	}
	return out, nil
}

func parseEnvValue(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	switch raw[0] {
	case '\'':
		return parseSingleQuoted(raw)
	case '"':
		return parseDoubleQuoted(raw)
	default:
		// Bare value: cut an inline comment, then trim.
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}
		return strings.TrimSpace(raw), nil
	}
}

// parseSingleQuoted handles 'verbatim' values including the shell idiom for
// embedded quotes: 'it'\''s' parses to it's.
func parseSingleQuoted(raw string) (string, error) {
	var b strings.Builder
	i := 0
	for {
		if i >= len(raw) || raw[i] != '\'' {
			return "", fmt.Errorf("malformed single-quoted value")
		}
		i++ // opening quote
		for i < len(raw) && raw[i] != '\'' {
			b.WriteByte(raw[i])
			i++
		}
		if i >= len(raw) {
			return "", fmt.Errorf("unterminated single-quoted value")
		}
		i++ // closing quote
		// The '\'' escape: closing quote, backslash-quote, reopening quote.
		if i+1 < len(raw) && raw[i] == '\\' && raw[i+1] == '\'' {
			b.WriteByte('\'')
			i += 2
			if i < len(raw) && raw[i] == '\'' {
				continue
			}
			return b.String(), nil
		}
		return b.String(), nil
	}
}

func parseDoubleQuoted(raw string) (string, error) {
	var b strings.Builder
	for i := 1; i < len(raw); i++ {
		c := raw[i]
		switch c {
		case '"':
			return b.String(), nil
		case '\\':
			if i+1 >= len(raw) {
				return "", fmt.Errorf("trailing backslash in double-quoted value")
			}
			i++
			switch raw[i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte('\\')
				b.WriteByte(raw[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", fmt.Errorf("unterminated double-quoted value")
}

// RenderEnv renders the full file content: generator header, sorted keys,
// shell-safe quoting. Values containing newlines are double-quoted so the
// file stays line-oriented; everything else is single-quoted.
func RenderEnv(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("# Generated by pi5-dashboard. Edits are overwritten on the next save.\n")
	b.WriteString("# Contains secrets. Keep this file mode 0600.\n")
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(quoteEnvValue(m[k]))
		b.WriteByte('\n')
	}
	return b.String()
}

func quoteEnvValue(v string) string {
	if strings.ContainsAny(v, "\n\r") {
		r := strings.NewReplacer("\\", `\\`, "\"", `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
		return `"` + r.Replace(v) + `"`
	}
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}
