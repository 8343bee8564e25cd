package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"intake/internal/etl"
)

//go:embed sources/*.yml
var embedded embed.FS

const descriptorExt = ".yml"

// sourceDoc is the on-disk shape of a descriptor. header_keys is kept as
// a node so key order survives decoding.
type sourceDoc struct {
	Source       string    `yaml:"source"`
	HeaderKeys   yaml.Node `yaml:"header_keys"`
	IgnoreSymbol *string   `yaml:"ignore_symbol"`
	Table        string    `yaml:"table"`
}

// SourceLoader resolves source names to descriptors. Files in Dir shadow
// the embedded descriptors of the same name.
type SourceLoader struct {
	Dir string
}

// LoadSource loads an embedded descriptor.
func LoadSource(name string) (*etl.SchemaDescriptor, error) {
	return (&SourceLoader{}).Load(name)
}

// Load returns the descriptor for name.
func (l *SourceLoader) Load(name string) (*etl.SchemaDescriptor, error) {
	if !validName(name) {
		return nil, &ConfigNotFoundError{Source: name}
	}
	data, err := l.read(name)
	if err != nil {
		return nil, err
	}
	return ParseSource(name, data)
}

// Names lists every loadable source, sorted.
func (l *SourceLoader) Names() ([]string, error) {
	seen := map[string]bool{}
	collect := func(fsys fs.FS) error {
		entries, err := fs.ReadDir(fsys, ".")
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), descriptorExt) {
				seen[strings.TrimSuffix(e.Name(), descriptorExt)] = true
			}
		}
		return nil
	}

	sub, _ := fs.Sub(embedded, "sources")
	if err := collect(sub); err != nil {
		return nil, err
	}
	if l.Dir != "" {
		if err := collect(os.DirFS(l.Dir)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("list sources dir: %w", err)
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (l *SourceLoader) read(name string) ([]byte, error) {
	file := name + descriptorExt
	if l.Dir != "" {
		data, err := os.ReadFile(filepath.Join(l.Dir, file))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read descriptor %s: %w", name, err)
		}
	}
	data, err := embedded.ReadFile("sources/" + file)
	if err != nil {
		return nil, &ConfigNotFoundError{Source: name}
	}
	return data, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r == '_' || r == '-' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// ParseSource decodes and validates a descriptor document.
func ParseSource(name string, data []byte) (*etl.SchemaDescriptor, error) {
	var doc sourceDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigParseError{Source: name, Reason: "invalid yaml", Err: err}
	}

	if strings.TrimSpace(doc.Source) == "" {
		return nil, &ConfigParseError{Source: name, Reason: "missing key \"source\""}
	}
	if doc.IgnoreSymbol == nil {
		return nil, &ConfigParseError{Source: name, Reason: "missing key \"ignore_symbol\""}
	}
	if utf8.RuneCountInString(*doc.IgnoreSymbol) != 1 {
		return nil, &ConfigParseError{Source: name, Reason: fmt.Sprintf("ignore_symbol must be a single character, got %q", *doc.IgnoreSymbol)}
	}

	fields, err := parseHeaderKeys(name, &doc.HeaderKeys)
	if err != nil {
		return nil, err
	}

	return &etl.SchemaDescriptor{
		Name:         name,
		Location:     doc.Source,
		Fields:       fields,
		IgnoreSymbol: *doc.IgnoreSymbol,
		Table:        doc.Table,
	}, nil
}

func parseHeaderKeys(name string, node *yaml.Node) ([]etl.FieldRule, error) {
	switch {
	case node.Kind == 0:
		return nil, &ConfigParseError{Source: name, Reason: "missing key \"header_keys\""}
	case node.Kind != yaml.MappingNode:
		return nil, &ConfigParseError{Source: name, Reason: "header_keys must be a mapping"}
	case len(node.Content) == 0:
		return nil, &ConfigParseError{Source: name, Reason: "header_keys is empty"}
	}

	fields := make([]etl.FieldRule, 0, len(node.Content)/2)
	seen := map[string]bool{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return nil, &ConfigParseError{Source: name, Reason: fmt.Sprintf("header key %q: rule must be a name", key.Value)}
		}
		if seen[key.Value] {
			return nil, &ConfigParseError{Source: name, Reason: fmt.Sprintf("duplicate header key %q", key.Value)}
		}
		seen[key.Value] = true

		rule, err := etl.ParseCoercion(val.Value)
		if err != nil {
			return nil, &ConfigParseError{Source: name, Reason: fmt.Sprintf("header key %q", key.Value), Err: err}
		}
		fields = append(fields, etl.FieldRule{Name: key.Value, Rule: rule})
	}

	check := etl.SchemaDescriptor{Name: name, Fields: fields}
	if err := check.CheckFields(); err != nil {
		return nil, &ConfigParseError{Source: name, Reason: "header_keys", Err: err}
	}
	return fields, nil
}
