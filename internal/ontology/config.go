package ontology

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/damagegraph-backend/internal/ontology/vocab"
)

// Config is the YAML form of the projection options.
//
//	namespace: http://example.org/damageInstances#
//	structural_levels: [medium, high]
//	severity_parameters: [severity_level, severity]
//	parameter_predicates:
//	  crack_length: hasLength
type Config struct {
	Namespace           string            `yaml:"namespace"`
	StructuralLevels    []string          `yaml:"structural_levels"`
	SeverityParameters  []string          `yaml:"severity_parameters"`
	ParameterPredicates map[string]string `yaml:"parameter_predicates"`
}

func DefaultConfig() Config {
	return Config{
		Namespace:          vocab.EX,
		StructuralLevels:   append([]string(nil), DefaultStructuralLevels...),
		SeverityParameters: append([]string(nil), DefaultSeverityParameters...),
	}
}

// LoadConfig reads a YAML config file. An empty path yields the defaults; fields missing from
// the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read ontology config: %w", err)
	}
	return ParseConfig(raw)
}

func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse ontology config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	ns := strings.TrimSpace(c.Namespace)
	if ns == "" {
		return fmt.Errorf("ontology config: namespace is required")
	}
	if !strings.HasSuffix(ns, "#") && !strings.HasSuffix(ns, "/") {
		return fmt.Errorf("ontology config: namespace %q must end with '#' or '/'", ns)
	}
	for name, local := range c.ParameterPredicates {
		if sanitizeLocal(local) != local || local == "" {
			return fmt.Errorf("ontology config: predicate for %q is not a valid local name: %q", name, local)
		}
		if IsReservedPredicate(vocab.Cdo(local)) {
			return fmt.Errorf("ontology config: predicate for %q uses reserved name %q", name, local)
		}
	}
	return nil
}

// Options converts the config into projector options.
func (c Config) Options() Options {
	opts := Options{
		Namespace:  strings.TrimSpace(c.Namespace),
		Structural: NewSeverityClassifier(c.StructuralLevels, c.SeverityParameters...),
	}
	if len(c.ParameterPredicates) > 0 {
		opts.ParameterPredicates = make(map[string]string, len(c.ParameterPredicates))
		for k, v := range c.ParameterPredicates {
			opts.ParameterPredicates[k] = v
		}
	}
	return opts
}
