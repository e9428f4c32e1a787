package config

import (
	"testing"
)

func BenchmarkLoad(b *testing.B) {
	dir := b.TempDir()
	path := writeTestConfig(b, dir, testConfigYAML)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Load(path)
	}
}

func BenchmarkValidate(b *testing.B) {
	cfg := &Config{
		Domain:   "x.test",
		Trackers: []string{"tracker.example.com:53"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Validate(cfg)
	}
}
