package config

import (
	"strings"
)

// normalize expands path fields and trims string settings so the rest of the
// repository can rely on absolute paths and clean values.
func (c *Config) normalize() error {
	expanded, err := expandPath(c.Paths.DataDir)
	if err != nil {
		return err
	}
	c.Paths.DataDir = expanded

	expanded, err = expandPath(c.Paths.LogDir)
	if err != nil {
		return err
	}
	c.Paths.LogDir = expanded

	c.XNAT.Host = strings.TrimSpace(c.XNAT.Host)
	c.XNAT.Port = strings.TrimSpace(c.XNAT.Port)
	c.XNAT.Path = strings.TrimSpace(c.XNAT.Path)
	if c.XNAT.Path != "" && !strings.HasPrefix(c.XNAT.Path, "/") {
		c.XNAT.Path = "/" + c.XNAT.Path
	}
	c.XNAT.Username = strings.TrimSpace(c.XNAT.Username)
	c.XNAT.AuxResourceLabel = strings.TrimSpace(c.XNAT.AuxResourceLabel)
	c.XNAT.NiftiResourceLabel = strings.TrimSpace(c.XNAT.NiftiResourceLabel)

	c.DICOM.AcquisitionTypeTag = normalizeTagAddress(c.DICOM.AcquisitionTypeTag)
	c.DICOM.SliceIndexTag = normalizeTagAddress(c.DICOM.SliceIndexTag)
	c.DICOM.SliceCountTag = normalizeTagAddress(c.DICOM.SliceCountTag)
	c.DICOM.VolumeCountTag = normalizeTagAddress(c.DICOM.VolumeCountTag)
	c.DICOM.MultiEchoCode = strings.TrimSpace(c.DICOM.MultiEchoCode)

	c.Concat.MESubdir = strings.TrimSpace(c.Concat.MESubdir)
	c.Concat.DimonBinary = strings.TrimSpace(c.Concat.DimonBinary)
	c.Concat.OutputTemplate = strings.TrimSpace(c.Concat.OutputTemplate)

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	return nil
}

func normalizeTagAddress(value string) string {
	value = strings.ToUpper(strings.TrimSpace(value))
	value = strings.TrimPrefix(value, "(")
	value = strings.TrimSuffix(value, ")")
	return strings.ReplaceAll(value, " ", "")
}
