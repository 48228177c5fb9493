package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"lrsd/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		DriveTypes: map[string]config.DriveType{
			"LTO6_drive": {Models: []string{"ULTRIUM-TD6", "ULT3580-TD6"}},
			"LTO5_drive": {Models: []string{"ULTRIUM-TD5", "ULT3580-TD5"}},
		},
		TapeTypes: map[string]config.TapeType{
			"LTO5": {DriveRW: []string{"LTO5_drive", "LTO6_drive"}},
			"LTO6": {DriveRW: []string{"LTO6_drive"}},
		},
	}
}

func TestDriveCompat_Compatible(t *testing.T) {
	c := NewDriveCompat(testConfig())

	assert.True(t, c.Compatible("tape", "LTO5", "ULTRIUM-TD5"))
	assert.True(t, c.Compatible("tape", "LTO5", "ULTRIUM-TD6"), "LTO5 tapes are readable/writable in an LTO6 drive")
	assert.False(t, c.Compatible("tape", "LTO6", "ULTRIUM-TD5"), "LTO6 tapes cannot be written by an LTO5 drive")
	assert.False(t, c.Compatible("tape", "LTO6", "unknown-model"))
}

func TestDriveCompat_UnknownTapeModel(t *testing.T) {
	c := NewDriveCompat(testConfig())
	assert.False(t, c.Compatible("tape", "LTO9", "ULTRIUM-TD6"))
}

func TestDriveCompat_NonTapeFamilyAlwaysCompatible(t *testing.T) {
	c := NewDriveCompat(testConfig())
	assert.True(t, c.Compatible("dir", "anything", "anything"))
}
