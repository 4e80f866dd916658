package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const DefaultLabel = "Default"

var (
	ErrNoConfig     = errors.New("no config selected")
	ErrInvalidLabel = errors.New("invalid config label")
)

// ConfigRoot resolves the profile directory. NOVELD_CONFIG_HOME wins over the
// platform locations.
func ConfigRoot() string {
	if dir := os.Getenv("NOVELD_CONFIG_HOME"); dir != "" {
		return dir
	}

	// Windows
	if appdata := os.Getenv("APPDATA"); appdata != "" {
		return filepath.Join(appdata, "noveld")
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "noveld")
	}

	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "noveld")
}

func ConfigsDir() string {
	return filepath.Join(ConfigRoot(), "configs")
}

func CurrentLabelFile() string {
	return filepath.Join(ConfigRoot(), "current_config")
}

func ensureDirs() error {
	return os.MkdirAll(ConfigsDir(), 0755)
}

// checkLabel rejects labels that would escape the profiles directory.
func checkLabel(label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return fmt.Errorf("%w: label cannot be empty", ErrInvalidLabel)
	}
	if strings.ContainsAny(label, `/\`) || label == "." || label == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	return nil
}

func profilePath(label string) string {
	return filepath.Join(ConfigsDir(), label+".yaml")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeCurrent(label string) error {
	return os.WriteFile(CurrentLabelFile(), []byte(label), 0644)
}

func CurrentLabel() (string, error) {
	if err := ensureDirs(); err != nil {
		return "", err
	}

	b, err := os.ReadFile(CurrentLabelFile())
	if os.IsNotExist(err) {
		return "", ErrNoConfig
	}
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(b)), nil
}

func ActiveConfigPath() (string, error) {
	label, err := CurrentLabel()
	if err != nil {
		if errors.Is(err, ErrNoConfig) {
			return "", ErrNoConfig
		}
		return "", err
	}
	if label == "" {
		return "", ErrNoConfig
	}

	return profilePath(label), nil
}

type ConfigInfo struct {
	Label  string
	Path   string
	Active bool
}

func ListConfigs() ([]ConfigInfo, error) {
	if err := ensureDirs(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(ConfigsDir())
	if err != nil {
		return nil, err
	}

	activeLabel, _ := CurrentLabel()
	var out []ConfigInfo

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}

		label := strings.TrimSuffix(name, ".yaml")
		out = append(out, ConfigInfo{
			Label:  label,
			Path:   filepath.Join(ConfigsDir(), name),
			Active: label == activeLabel,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func SwitchConfig(label string) error {
	if err := checkLabel(label); err != nil {
		return err
	}
	if err := ensureDirs(); err != nil {
		return err
	}

	if !exists(profilePath(label)) {
		return fmt.Errorf("profile %q does not exist", label)
	}

	return writeCurrent(label)
}

// AddConfig imports an existing YAML file as a new profile. The file must
// parse and validate.
func AddConfig(label, srcPath string) error {
	if err := checkLabel(label); err != nil {
		return err
	}
	if err := ensureDirs(); err != nil {
		return err
	}

	dst := profilePath(label)
	if exists(dst) {
		return fmt.Errorf("profile %q already exists", label)
	}

	cfg, err := loadYAML(srcPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", srcPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("profile %q: %w", label, err)
	}

	return SaveYAML(cfg, dst)
}

func CreateEmptyConfig(label string) (string, error) {
	if err := checkLabel(label); err != nil {
		return "", err
	}
	if err := ensureDirs(); err != nil {
		return "", err
	}

	path := profilePath(label)
	if exists(path) {
		return "", fmt.Errorf("profile %q already exists", label)
	}

	if err := SaveYAML(DefaultConfig(), path); err != nil {
		return "", err
	}

	return path, nil
}

func RenameConfig(oldLabel, newLabel string) error {
	if err := checkLabel(newLabel); err != nil {
		return err
	}
	if err := ensureDirs(); err != nil {
		return err
	}

	oldPath, newPath := profilePath(oldLabel), profilePath(newLabel)
	if !exists(oldPath) {
		return fmt.Errorf("profile %q does not exist", oldLabel)
	}
	if exists(newPath) {
		return fmt.Errorf("profile %q already exists", newLabel)
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		return err
	}

	if active, _ := CurrentLabel(); active == oldLabel {
		return writeCurrent(newLabel)
	}

	return nil
}

// RemoveConfig deletes a profile. Removing the active profile switches back
// to Default; the Default profile itself cannot be removed.
func RemoveConfig(label string) (switched bool, err error) {
	if err := checkLabel(label); err != nil {
		return false, err
	}
	if label == DefaultLabel {
		return false, errors.New("cannot remove the Default profile")
	}
	if err := ensureDirs(); err != nil {
		return false, err
	}

	path := profilePath(label)
	if !exists(path) {
		return false, fmt.Errorf("profile %q does not exist", label)
	}

	if active, _ := CurrentLabel(); active == label {
		if err := SwitchConfig(DefaultLabel); err != nil {
			return false, fmt.Errorf("failed switching to Default: %w", err)
		}
		switched = true
	}

	return switched, os.Remove(path)
}

// InitDefaultConfig writes Default.yaml and selects it. An existing Default
// profile is kept and reported with os.ErrExist.
func InitDefaultConfig() (string, error) {
	if err := ensureDirs(); err != nil {
		return "", err
	}

	defPath := profilePath(DefaultLabel)

	if exists(defPath) {
		_ = writeCurrent(DefaultLabel)
		return defPath, os.ErrExist
	}

	if err := SaveYAML(DefaultConfig(), defPath); err != nil {
		return "", err
	}

	_ = writeCurrent(DefaultLabel)
	return defPath, nil
}

// ConfigPathByLabel returns the file of an existing profile.
func ConfigPathByLabel(label string) (string, error) {
	if err := checkLabel(label); err != nil {
		return "", err
	}
	path := profilePath(label)
	if !exists(path) {
		return "", fmt.Errorf("profile %q does not exist", label)
	}
	return path, nil
}
