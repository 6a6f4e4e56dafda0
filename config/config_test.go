package config

import (
	"testing"

	"github.com/BurntSushi/toml"
)

func TestDecodeDeviceSettings(t *testing.T) {
	cases := []struct {
		settings      int
		wantPortOrUnit int
		wantDriveB    bool
	}{
		{0x00, 1, false},
		{0x01, 2, true},
		{0x0f, 16, true},
		{0xf0, 1, false}, // high nibble ignored
		{0x12, 3, true},
	}
	for _, c := range cases {
		gotPort, gotB := DecodeDeviceSettings(c.settings)
		if gotPort != c.wantPortOrUnit || gotB != c.wantDriveB {
			t.Errorf("DecodeDeviceSettings(0x%02x) = (%d,%v), want (%d,%v)",
				c.settings, gotPort, gotB, c.wantPortOrUnit, c.wantDriveB)
		}
	}
}

func TestEmbeddedDefaultConfigParsesAndValidates(t *testing.T) {
	var conf Config
	if _, err := toml.Decode(string(defaultConfigData), &conf); err != nil {
		t.Fatalf("embedded default config failed to parse: %v", err)
	}

	if conf.Bridge.Variant != "v" && conf.Bridge.Variant != "f" {
		t.Errorf("default bridge.variant = %q, want \"v\" or \"f\"", conf.Bridge.Variant)
	}
	if conf.Drive.Cyls <= 0 {
		t.Errorf("default drive.cyls = %d, want positive", conf.Drive.Cyls)
	}
	if conf.Drive.Heads <= 0 {
		t.Errorf("default drive.heads = %d, want positive", conf.Drive.Heads)
	}
	if conf.Drive.RPM <= 0 {
		t.Errorf("default drive.rpm = %d, want positive", conf.Drive.RPM)
	}
}
