package cfg

import (
	"testing"
	"time"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	return &Settings{
		NumRep:         10,
		DatasetIDs:     []string{"thickness", "curvature"},
		MetricNames:    []string{"balanced_accuracy"},
		Kind:           "classify",
		OutputDir:      "out",
		CheckpointDir:  "out/checkpoints",
		MonitorEnabled: true,
		MonitorPort:    8080,
		TrackerURL:     "http://tracker.local",
		TrackerTimeout: 5 * time.Second,
		ArchivePath:    "out/experiments.db",
		LogLevel:       "info",
	}
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	settings := createValidSettings()

	err := validateSettings(settings)
	if err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_NumRep(t *testing.T) {
	testCases := []struct {
		name    string
		numRep  int
		wantErr bool
	}{
		{"negative", -1, true},
		{"zero", 0, true},
		{"minimum valid", 1, false},
		{"normal", 250, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.NumRep = tc.numRep

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid repetition count")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid repetition count, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_Kind(t *testing.T) {
	testCases := []struct {
		name    string
		kind    string
		wantErr bool
	}{
		{"classify", "classify", false},
		{"regress", "regress", false},
		{"empty", "", true},
		{"unknown", "clustering", true},
		{"wrong case", "Classify", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.Kind = tc.kind

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid kind")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid kind, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_MonitorPort(t *testing.T) {
	testCases := []struct {
		name    string
		enabled bool
		port    int
		wantErr bool
	}{
		{"too low", true, 1023, true},
		{"minimum valid", true, 1024, false},
		{"normal", true, 9090, false},
		{"maximum valid", true, 65535, false},
		{"too high", true, 65536, true},
		{"ignored when disabled", false, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.MonitorEnabled = tc.enabled
			settings.MonitorPort = tc.port

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid monitor port")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid monitor port, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_TrackerTimeout(t *testing.T) {
	testCases := []struct {
		name    string
		timeout time.Duration
		wantErr bool
	}{
		{"zero", 0, true},
		{"negative", -time.Second, true},
		{"small valid", time.Millisecond, false},
		{"normal", 10 * time.Second, false},
		{"maximum valid", 2 * time.Minute, false},
		{"too long", 2*time.Minute + time.Second, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.TrackerTimeout = tc.timeout

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid tracker timeout")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid tracker timeout, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_EmptyOutputDir(t *testing.T) {
	settings := createValidSettings()
	settings.OutputDir = ""

	if err := validateSettings(settings); err == nil {
		t.Error("Expected error for empty output dir")
	}
}

func TestValidateSettings_EmptyDatasetID(t *testing.T) {
	settings := createValidSettings()
	settings.DatasetIDs = []string{"thickness", ""}

	if err := validateSettings(settings); err == nil {
		t.Error("Expected error for empty dataset id")
	}
}
