package mongo

import "testing"

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantApp  string
		wantPool uint64
	}{
		{"defaults", Config{URI: "mongodb://localhost:27017"}, defaultAppName, defaultMaxPoolSize},
		{"overrides", Config{URI: "mongodb://localhost:27017", AppName: "audit", MaxPoolSize: 5}, "audit", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := clientOptions(tt.cfg)
			if opts.AppName == nil || *opts.AppName != tt.wantApp {
				t.Errorf("AppName = %v, want %q", opts.AppName, tt.wantApp)
			}
			if opts.MaxPoolSize == nil || *opts.MaxPoolSize != tt.wantPool {
				t.Errorf("MaxPoolSize = %v, want %d", opts.MaxPoolSize, tt.wantPool)
			}
		})
	}
}
