package config

import (
	"errors"
	"io/fs"
	"os"

	dcverrors "github.com/alexisbeaulieu97/dcvprov/pkg/errors"
)

// DefaultSettingsPath is read when no settings file is named explicitly.
const DefaultSettingsPath = "/etc/dcvprov/config.yaml"

// DefaultSettings returns the settings used when nothing overrides them.
func DefaultSettings() Settings {
	return Settings{
		LogLevel:      "info",
		Root:          "/",
		StateDir:      "/var/lib/dcvprov",
		HistoryPath:   "/var/lib/dcvprov/history.db",
		OSReleasePath: "/etc/os-release",
	}
}

// LoadSettings overlays the YAML file at path onto the defaults. A missing
// file is an error only when required is set.
func LoadSettings(path string, required bool) (Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return settings, nil
		}
		return Settings{}, dcverrors.NewParseError(path, 0, err)
	}

	if err := decodeStrict(data, &settings); err != nil && !errors.Is(err, errEmptyDocument) {
		return Settings{}, dcverrors.NewParseError(path, extractLine(err), err)
	}
	if err := ValidateSettings(&settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}
