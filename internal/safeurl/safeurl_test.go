package safeurl

import "testing"

func TestIsHTTPOrHTTPS(t *testing.T) {
	tests := []struct {
		url   string
		allow bool
	}{
		{"http://example.com/", true},
		{"https://example.com/path", true},
		{"HTTP://x", true},
		{"HTTPS://x", true},
		{"file:///etc/passwd", false},
		{"ftp://example.com", false},
		{"", false},
		{"not-a-url", false},
		{"javascript:alert(1)", false},
	}
	for _, tt := range tests {
		got := IsHTTPOrHTTPS(tt.url)
		if got != tt.allow {
			t.Errorf("IsHTTPOrHTTPS(%q) = %v, want %v", tt.url, got, tt.allow)
		}
	}
}

func TestIsPlayable(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/live/index.m3u8", true},
		{"http://1.2.3.4:8080/stream.ts", true},
		{"rtmp://live.example.com/app/key", true},
		{"rtsp://cam.example.com/1", true},
		{"udp://239.0.0.1:1234", true},
		{"  https://padded.example.com/a  ", true},
		{"", false},
		{"/relative/path.m3u8", false},
		{"file:///tmp/a.ts", false},
		{"mailto:a@b", false},
		{"https://", false},
	}
	for _, tt := range tests {
		if got := IsPlayable(tt.url); got != tt.want {
			t.Errorf("IsPlayable(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestHostMatches(t *testing.T) {
	tests := []struct {
		url, domain string
		want        bool
	}{
		{"https://www.youtube.com/watch?v=1", "youtube.com", true},
		{"https://m.youtube.com/live", "youtube.com", true},
		{"https://youtu.be/abc", "youtu.be", true},
		{"https://notyoutube.com/a", "youtube.com", false},
		{"https://YOUTUBE.COM:443/a", "youtube.com", true},
		{"https://cdn.example.com/a", "", false},
	}
	for _, tt := range tests {
		if got := HostMatches(Host(tt.url), tt.domain); got != tt.want {
			t.Errorf("HostMatches(%q, %q) = %v, want %v", tt.url, tt.domain, got, tt.want)
		}
	}
}
