package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	envVarPattern       = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)
	simpleEnvVarPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// EnvSubstituter expands ${VAR}, ${VAR:-default} and $VAR references in
// string settings such as connection URIs.
type EnvSubstituter struct {
	enableSimpleVars bool
	enableDefaults   bool
	lookup           func(string) string
}

type EnvSubstituterOption func(*EnvSubstituter)

func WithSimpleVars(enable bool) EnvSubstituterOption {
	return func(es *EnvSubstituter) {
		es.enableSimpleVars = enable
	}
}

// WithLookup replaces os.Getenv.
func WithLookup(lookup func(string) string) EnvSubstituterOption {
	return func(es *EnvSubstituter) {
		es.lookup = lookup
	}
}

func NewEnvSubstituter(options ...EnvSubstituterOption) *EnvSubstituter {
	es := &EnvSubstituter{
		enableSimpleVars: true,
		enableDefaults:   true,
		lookup:           os.Getenv,
	}

	for _, option := range options {
		option(es)
	}

	return es
}

func (es *EnvSubstituter) Substitute(value string) string {
	if value == "" || !strings.Contains(value, "$") {
		return value
	}

	result := value
	if es.enableDefaults {
		result = envVarPattern.ReplaceAllStringFunc(result, func(match string) string {
			submatch := envVarPattern.FindStringSubmatch(match)
			if envValue := es.lookup(submatch[1]); envValue != "" {
				return envValue
			}
			return submatch[3]
		})
	}

	if es.enableSimpleVars {
		result = simpleEnvVarPattern.ReplaceAllStringFunc(result, func(match string) string {
			submatch := simpleEnvVarPattern.FindStringSubmatch(match)
			if envValue := es.lookup(submatch[1]); envValue != "" {
				return envValue
			}
			return match
		})
	}

	return result
}

func (es *EnvSubstituter) SubstituteConfig(config *OptimizerConfig) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	config.Storage.Type = es.Substitute(config.Storage.Type)
	config.Storage.File.Path = es.Substitute(config.Storage.File.Path)
	config.Storage.Mongo.URI = es.Substitute(config.Storage.Mongo.URI)
	config.Storage.Mongo.Database = es.Substitute(config.Storage.Mongo.Database)

	config.Redis.Address = es.Substitute(config.Redis.Address)
	config.Redis.Password = es.Substitute(config.Redis.Password)

	config.Logging.Level = es.Substitute(config.Logging.Level)
	config.Logging.FilePath = es.Substitute(config.Logging.FilePath)

	config.Server.Host = es.Substitute(config.Server.Host)

	return nil
}

// RequiredEnvVars lists references in value that have no default.
func RequiredEnvVars(value string) []string {
	var vars []string
	for _, match := range envVarPattern.FindAllStringSubmatch(value, -1) {
		if match[3] == "" {
			vars = append(vars, match[1])
		}
	}
	return vars
}
