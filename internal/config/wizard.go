package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from in and writing prompts to out
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run asks for the settings that differ per user and returns a config
// built on the defaults.
func (w *Wizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "=== twinself configuration ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	validator := NewValidator()

	prefix, err := w.ask("Collection user prefix", cfg.Collections.UserPrefix)
	if err != nil {
		return nil, err
	}
	cfg.Collections.UserPrefix = prefix

	backend, err := w.ask("Vector store backend (sqlite/chromem)", cfg.VectorStore.Backend)
	if err != nil {
		return nil, err
	}
	if backend != "sqlite" && backend != "chromem" {
		fmt.Fprintf(w.out, "Warning: unknown backend %q, using sqlite\n", backend)
		backend = "sqlite"
	}
	cfg.VectorStore.Backend = backend

	provider, err := w.ask("Embedding provider (openai/mock)", cfg.Embedding.Provider)
	if err != nil {
		return nil, err
	}
	cfg.Embedding.Provider = provider

	if provider == "openai" {
		for {
			key, err := w.ask("OpenAI API key (empty to read OPENAI_API_KEY)", "")
			if err != nil {
				return nil, err
			}
			if key == "" {
				break
			}
			if err := validator.ValidateAPIKey(key, "openai"); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
			cfg.Embedding.APIKey = key
			break
		}
	}

	enable, err := w.ask("Generate procedural rules from episodic data? (y/n)", "y")
	if err != nil {
		return nil, err
	}
	cfg.RuleGeneration.Enabled = strings.EqualFold(enable, "y")
	if cfg.RuleGeneration.Enabled {
		for {
			key, err := w.ask("Anthropic API key (empty to read ANTHROPIC_API_KEY)", "")
			if err != nil {
				return nil, err
			}
			if key == "" {
				break
			}
			if err := validator.ValidateAPIKey(key, "anthropic"); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
			cfg.RuleGeneration.APIKey = key
			break
		}
	}

	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, using default (info)\n", err)
	} else {
		cfg.Logging.Level = level
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")
	return cfg, nil
}

func (w *Wizard) ask(question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", question)
	}
	line, err := w.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return def, nil
		}
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}
