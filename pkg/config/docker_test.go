package config

import "testing"

func TestResolveHost(t *testing.T) {
	tests := []struct {
		host     string
		inDocker bool
		want     string
	}{
		{"localhost", false, "localhost"},
		{"localhost", true, "host.docker.internal"},
		{"127.0.0.1", true, "host.docker.internal"},
		{"db.internal", true, "db.internal"},
	}
	for _, tt := range tests {
		if got := resolveHost(tt.host, tt.inDocker); got != tt.want {
			t.Errorf("resolveHost(%q, %v) = %q, want %q", tt.host, tt.inDocker, got, tt.want)
		}
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		raw      string
		inDocker bool
		want     string
	}{
		{"http://localhost:8000/v1", false, "http://localhost:8000/v1"},
		{"http://localhost:8000/v1", true, "http://host.docker.internal:8000/v1"},
		{"http://127.0.0.1/v1", true, "http://host.docker.internal/v1"},
		{"https://api.openai.com/v1", true, "https://api.openai.com/v1"},
		{"", true, ""},
	}
	for _, tt := range tests {
		if got := resolveURL(tt.raw, tt.inDocker); got != tt.want {
			t.Errorf("resolveURL(%q, %v) = %q, want %q", tt.raw, tt.inDocker, got, tt.want)
		}
	}
}
