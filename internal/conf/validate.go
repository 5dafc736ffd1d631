package conf

import (
	"fmt"
	"strings"
)

var validUsesSources = map[string]bool{
	"spreadsheet": true,
	"catalog":     true,
	"wikipedia":   true,
	"provider":    true,
}

// ValidateSettings checks the loaded settings for configuration errors that
// would not surface until deep in a request.
func ValidateSettings(settings *Settings) error {
	switch settings.Provider.Name {
	case "plantid", "plantnet":
	case "", "none":
		// Identification falls back to the local similarity catalog.
	default:
		return fmt.Errorf("invalid provider name: %q (expected plantid, plantnet or none)", settings.Provider.Name)
	}

	if len(settings.Uses.Order) == 0 {
		return fmt.Errorf("uses.order must list at least one source")
	}
	for _, source := range settings.Uses.Order {
		if !validUsesSources[strings.ToLower(source)] {
			return fmt.Errorf("invalid uses source %q in uses.order", source)
		}
	}

	if settings.Similarity.Threshold < 0 || settings.Similarity.Threshold > 1 {
		return fmt.Errorf("similarity.threshold must be within [0, 1], got %v", settings.Similarity.Threshold)
	}

	if settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled {
		return fmt.Errorf("only one of output.sqlite and output.mysql may be enabled")
	}

	return nil
}
