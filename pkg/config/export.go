package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

type ExportFormat string

const (
	FormatYAML ExportFormat = "yaml"
	FormatJSON ExportFormat = "json"
)

const maskedValue = "***MASKED***"

type ExportOptions struct {
	Format         ExportFormat
	MaskSecrets    bool
	SanitizeFields []string
}

type ConfigExporter struct {
	secretFields []string
}

func NewConfigExporter() *ConfigExporter {
	return &ConfigExporter{
		secretFields: []string{
			"password",
			"token",
			"secret",
			"credential",
			"uri",
		},
	}
}

func (ce *ConfigExporter) ExportConfig(config *OptimizerConfig, options ExportOptions) ([]byte, error) {
	if config == nil {
		return nil, fmt.Errorf("config is nil")
	}

	exportConfig := *config

	if options.MaskSecrets {
		ce.maskSecrets(&exportConfig, options.SanitizeFields)
	}

	switch options.Format {
	case FormatYAML, "":
		return ce.exportYAML(&exportConfig)
	case FormatJSON:
		return json.MarshalIndent(&exportConfig, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported export format: %s", options.Format)
	}
}

func (ce *ConfigExporter) ExportToFile(config *OptimizerConfig, filePath string, options ExportOptions) error {
	data, err := ce.ExportConfig(config, options)
	if err != nil {
		return fmt.Errorf("failed to export config: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file %s: %w", filePath, err)
	}

	return nil
}

// ImportConfig decodes and validates a configuration document.
func (ce *ConfigExporter) ImportConfig(data []byte, format ExportFormat) (*OptimizerConfig, error) {
	config := Default()

	switch format {
	case FormatYAML, "":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML config: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported import format: %s", format)
	}

	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("imported config validation failed: %w", err)
	}

	return config, nil
}

func (ce *ConfigExporter) exportYAML(config *OptimizerConfig) ([]byte, error) {
	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(config); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to close YAML encoder: %w", err)
	}

	return []byte(buf.String()), nil
}

func (ce *ConfigExporter) maskSecrets(config *OptimizerConfig, additionalFields []string) {
	fieldsToMask := append(append([]string{}, ce.secretFields...), additionalFields...)
	ce.maskSecretsInStruct(reflect.ValueOf(config).Elem(), fieldsToMask)
}

func (ce *ConfigExporter) maskSecretsInStruct(v reflect.Value, fieldsToMask []string) {
	if !v.IsValid() || !v.CanSet() {
		return
	}

	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			field := v.Field(i)
			fieldType := v.Type().Field(i)

			if !field.CanSet() {
				continue
			}

			fieldName := strings.ToLower(fieldType.Name)
			tag := fieldType.Tag.Get("mapstructure")

			shouldMask := false
			for _, maskField := range fieldsToMask {
				maskField = strings.ToLower(maskField)
				if strings.Contains(fieldName, maskField) || strings.Contains(tag, maskField) {
					shouldMask = true
					break
				}
			}

			if shouldMask && field.Kind() == reflect.String && field.String() != "" {
				field.SetString(maskedValue)
			} else {
				ce.maskSecretsInStruct(field, fieldsToMask)
			}
		}
	case reflect.Ptr:
		if !v.IsNil() {
			ce.maskSecretsInStruct(v.Elem(), fieldsToMask)
		}
	}
}
