package secret

import (
	"os"
	"strings"
	"sync"
)

// EnvStore reads secrets from environment variables. Keys map to
// variables through Names; unmapped keys are upper-cased with dashes
// turned into underscores. Set and Delete only affect this process's
// overlay, the real environment is never modified.
type EnvStore struct {
	Names  map[string]string
	Lookup func(string) (string, bool)

	mu      sync.Mutex
	overlay map[string][]byte
}

// DefaultEnvNames maps the well-known keys to the variables the pipeline
// has always read.
var DefaultEnvNames = map[string]string{
	KeyDBPassword:         "DB_PSWRD",
	KeyAWSSecretAccessKey: "AWS_SECRET_ACCESS_KEY",
}

// NewEnvStore returns an EnvStore over the process environment.
func NewEnvStore() *EnvStore {
	return &EnvStore{Names: DefaultEnvNames, Lookup: os.LookupEnv}
}

func (e *EnvStore) varName(key string) string {
	if n, ok := e.Names[key]; ok {
		return n
	}
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func (e *EnvStore) Get(key string) ([]byte, error) {
	e.mu.Lock()
	v, ok := e.overlay[key]
	e.mu.Unlock()
	if ok {
		return v, nil
	}
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if s, ok := lookup(e.varName(key)); ok {
		return []byte(s), nil
	}
	return nil, nil
}

func (e *EnvStore) Set(key string, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.overlay == nil {
		e.overlay = map[string][]byte{}
	}
	e.overlay[key] = value
	return nil
}

func (e *EnvStore) Delete(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.overlay, key)
	return nil
}
