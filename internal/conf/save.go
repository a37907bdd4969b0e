package conf

import (
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/audiocapture/internal/errors"
)

const (
	configFilePerm = 0o600
	configDirPerm  = 0o755
)

// SaveYAML writes settings to path on fs, creating parent directories.
func SaveYAML(fs afero.Fs, path string, settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "marshal_yaml").
			Build()
	}

	if err := fs.MkdirAll(filepath.Dir(path), configDirPerm); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("operation", "create_config_dir").
			Build()
	}

	if err := afero.WriteFile(fs, path, data, configFilePerm); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("operation", "write_config").
			Build()
	}
	return nil
}
