package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var tagAddressPattern = regexp.MustCompile(`^[0-9A-F]{4},[0-9A-F]{4}$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateXNAT(); err != nil {
		return err
	}
	if err := c.validateDICOM(); err != nil {
		return err
	}
	if err := c.validateConcat(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateXNAT() error {
	if c.XNAT.Host == "" {
		return errors.New("xnat.host must be set")
	}
	if c.XNAT.RequestTimeout <= 0 {
		return errors.New("xnat.request_timeout must be positive (seconds)")
	}
	if c.XNAT.AuxResourceLabel == "" {
		return errors.New("xnat.aux_resource_label must be set")
	}
	if c.XNAT.NiftiResourceLabel == "" {
		return errors.New("xnat.nifti_resource_label must be set")
	}
	return nil
}

func (c *Config) validateDICOM() error {
	for key, value := range map[string]string{
		"dicom.acquisition_type_tag": c.DICOM.AcquisitionTypeTag,
		"dicom.slice_index_tag":      c.DICOM.SliceIndexTag,
		"dicom.slice_count_tag":      c.DICOM.SliceCountTag,
		"dicom.volume_count_tag":     c.DICOM.VolumeCountTag,
	} {
		if !tagAddressPattern.MatchString(value) {
			return fmt.Errorf("%s must use GGGG,EEEE hex notation, got %q", key, value)
		}
	}
	if c.DICOM.MultiEchoCode == "" {
		return errors.New("dicom.multi_echo_code must be set")
	}
	if _, err := regexp.Compile(c.DICOM.InstancePattern); err != nil {
		return fmt.Errorf("dicom.instance_pattern is not a valid regular expression: %w", err)
	}
	pattern := regexp.MustCompile(c.DICOM.InstancePattern)
	if pattern.NumSubexp() != 1 {
		return errors.New("dicom.instance_pattern must contain exactly one capturing group")
	}
	return nil
}

func (c *Config) validateConcat() error {
	if c.Concat.Echoes < 2 {
		return errors.New("concat.echoes must be at least 2")
	}
	if c.Concat.Workers <= 0 {
		return errors.New("concat.workers must be positive")
	}
	if c.Concat.MESubdir == "" {
		return errors.New("concat.me_subdir must be set")
	}
	if c.Concat.DimonBinary == "" {
		return errors.New("concat.dimon_binary must be set")
	}
	if c.Concat.DimonTimeout < 0 {
		return errors.New("concat.dimon_timeout must be >= 0 (seconds, 0 disables)")
	}
	if strings.Count(c.Concat.OutputTemplate, "%") != 2 {
		return fmt.Errorf("concat.output_template must contain scan and echo verbs, got %q", c.Concat.OutputTemplate)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}
