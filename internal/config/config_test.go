package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default mode is daemon",
			check:  func(c *Config) bool { return c.Mode == "daemon" },
			expect: "daemon",
		},
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8090",
			check:  func(c *Config) bool { return c.Port == 8090 },
			expect: "8090",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default auto indexer mode is advisory",
			check:  func(c *Config) bool { return c.AutoIndexerMode == "advisory" },
			expect: "advisory",
		},
		{
			name:   "default bypass mode is empty",
			check:  func(c *Config) bool { return c.BypassMode == "" },
			expect: "",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8090" },
			expect: "0.0.0.0:8090",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}
