// Package formreg loads the optional external mail-template registry: a YAML
// file mapping template ids to recipient/subject/body/sender definitions,
// standing in for a third-party form plugin. The engine treats the registry
// as a capability-checked collaborator and works fine without it.
package formreg

import (
	"fmt"
	"os"
	"sync"

	yaml "go.yaml.in/yaml/v3"

	"querybell/internal/engine"
	logx "querybell/pkg/logx"
)

type entry struct {
	Recipient string `yaml:"recipient"`
	Subject   string `yaml:"subject"`
	Body      string `yaml:"body"`
	Sender    string `yaml:"sender"`
}

// Registry implements engine.TemplateSource from a YAML file.
type Registry struct {
	mu        sync.RWMutex
	path      string
	templates map[string]entry
	log       logx.Logger
}

// Load reads the registry file. A missing path yields an empty registry
// (Exists() == false) rather than an error, so the binding stays optional.
func Load(path string, log logx.Logger) (*Registry, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{path: path, templates: map[string]entry{}, log: log}
	if path == "" {
		return r, nil
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the registry file, replacing the in-memory set atomically.
func (r *Registry) Reload() error {
	b, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			r.templates = map[string]entry{}
			r.mu.Unlock()
			r.log.Warn("template registry file missing", logx.String("path", r.path))
			return nil
		}
		return fmt.Errorf("read template registry: %w", err)
	}
	var m map[string]entry
	if err := yaml.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("parse template registry: %w", err)
	}
	if m == nil {
		m = map[string]entry{}
	}
	r.mu.Lock()
	r.templates = m
	r.mu.Unlock()
	r.log.Debug("template registry loaded", logx.String("path", r.path), logx.Int("templates", len(m)))
	return nil
}

func (r *Registry) Exists() bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates) > 0
}

func (r *Registry) FindByID(id string) (engine.MailTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.templates[id]
	if !ok {
		return engine.MailTemplate{}, false
	}
	return engine.MailTemplate{
		Recipient: e.Recipient,
		Subject:   e.Subject,
		Body:      e.Body,
		Sender:    e.Sender,
	}, true
}
