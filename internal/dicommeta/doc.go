// Package dicommeta reads the vendor-private DICOM header values the
// multi-echo pipeline depends on: the acquisition type code, the slice
// ordering index, and the slice/volume counts. Tag addresses are configured as
// "GGGG,EEEE" strings and resolved once into a TagMap.
package dicommeta
