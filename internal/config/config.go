package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// XNAT contains connection settings for the XNAT research-data server.
type XNAT struct {
	Host               string `toml:"host"`
	Port               string `toml:"port"`
	Path               string `toml:"path"`
	Username           string `toml:"username"`
	Password           string `toml:"password"`
	RequestTimeout     int    `toml:"request_timeout"`
	AuxResourceLabel   string `toml:"aux_resource_label"`
	NiftiResourceLabel string `toml:"nifti_resource_label"`
}

// DICOM pins the vendor-specific metadata tags the pipeline reads. Tag
// addresses use "GGGG,EEEE" hex notation. These defaults match the GE
// multi-echo real-time sequence the lab acquires with; changing them changes
// which scans are classified as multi-echo.
type DICOM struct {
	AcquisitionTypeTag string `toml:"acquisition_type_tag"`
	SliceIndexTag      string `toml:"slice_index_tag"`
	SliceCountTag      string `toml:"slice_count_tag"`
	VolumeCountTag     string `toml:"volume_count_tag"`
	MultiEchoCode      string `toml:"multi_echo_code"`
	InstancePattern    string `toml:"instance_pattern"`
}

// Concat contains settings for multi-echo concatenation.
type Concat struct {
	Echoes         int    `toml:"echoes"`
	Workers        int    `toml:"workers"`
	MESubdir       string `toml:"me_subdir"`
	DimonBinary    string `toml:"dimon_binary"`
	DimonTimeout   int    `toml:"dimon_timeout"`
	OutputTemplate string `toml:"output_template"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Exams          bool   `toml:"exams"`
	ScanFailures   bool   `toml:"scan_failures"`
	Errors         bool   `toml:"errors"`
}

// Config encapsulates all configuration values for mepipe.
//
// Configuration sections by subsystem:
//   - Paths: where exam trees and logs live
//   - XNAT: server address, credentials, resource labels
//   - DICOM: vendor tag addresses and the multi-echo sequence code
//   - Concat: echo count, worker pool size, Dimon invocation settings
//   - Logging: log format, level, and retention
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	XNAT          XNAT          `toml:"xnat"`
	DICOM         DICOM         `toml:"dicom"`
	Concat        Concat        `toml:"concat"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mepipe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mepipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ServerURL assembles the full XNAT server root address.
func (c *Config) ServerURL() string {
	host := strings.TrimSpace(c.XNAT.Host)
	url := "http://" + host
	if port := strings.TrimSpace(c.XNAT.Port); port != "" {
		url += ":" + port
	}
	return url + c.XNAT.Path
}

// XNATPassword returns the configured password, preferring the
// XNAT_PASSWORD environment variable over the config file value so
// credentials can stay out of on-disk configuration.
func (c *Config) XNATPassword() string {
	if pw, ok := os.LookupEnv("XNAT_PASSWORD"); ok && pw != "" {
		return pw
	}
	return c.XNAT.Password
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
