package config

const (
	defaultDataDir          = "~/.local/share/mepipe/data"
	defaultLogDir           = "~/.local/share/mepipe/logs"
	defaultLogRetentionDays = 60
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"

	defaultXNATHost           = "fh-mi-cmrifserv.human.cornell.edu"
	defaultXNATPort           = "8080"
	defaultXNATPath           = "/xnat"
	defaultXNATTimeout        = 300
	defaultAuxResourceLabel   = "auxiliaryfiles"
	defaultNiftiResourceLabel = "NIFTI"

	// Vendor tag addresses for the GE multi-echo real-time EPI sequence.
	defaultAcquisitionTypeTag = "0019,109C"
	defaultSliceIndexTag      = "0019,10A2"
	defaultSliceCountTag      = "0020,1002"
	defaultVolumeCountTag     = "0020,0105"
	defaultMultiEchoCode      = "epiRTme"
	defaultInstancePattern    = `.*-([0-9]+)-[0-9a-zA-Z]+\.[Dd][Cc][Mm]$`

	defaultEchoes         = 3
	defaultWorkers        = 8
	defaultMESubdir       = "medata"
	defaultDimonBinary    = "Dimon"
	defaultOutputTemplate = "run%04d.e%02d"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		XNAT: XNAT{
			Host:               defaultXNATHost,
			Port:               defaultXNATPort,
			Path:               defaultXNATPath,
			RequestTimeout:     defaultXNATTimeout,
			AuxResourceLabel:   defaultAuxResourceLabel,
			NiftiResourceLabel: defaultNiftiResourceLabel,
		},
		DICOM: DICOM{
			AcquisitionTypeTag: defaultAcquisitionTypeTag,
			SliceIndexTag:      defaultSliceIndexTag,
			SliceCountTag:      defaultSliceCountTag,
			VolumeCountTag:     defaultVolumeCountTag,
			MultiEchoCode:      defaultMultiEchoCode,
			InstancePattern:    defaultInstancePattern,
		},
		Concat: Concat{
			Echoes:         defaultEchoes,
			Workers:        defaultWorkers,
			MESubdir:       defaultMESubdir,
			DimonBinary:    defaultDimonBinary,
			DimonTimeout:   0,
			OutputTemplate: defaultOutputTemplate,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Exams:          true,
			ScanFailures:   true,
			Errors:         true,
		},
	}
}
