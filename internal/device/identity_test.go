package device

import "testing"

func TestClassifyAgent(t *testing.T) {
	tests := []struct {
		userAgent string
		want      Agent
	}{
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36", AgentAndroid},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", AgentIPhone},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64)", AgentDesktop},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)", AgentDesktop},
		{"Mozilla/5.0 (X11; Linux x86_64)", AgentDesktop},
		{"curl/8.5.0", AgentUnknown},
		{"", AgentUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyAgent(tt.userAgent); got != tt.want {
			t.Errorf("ClassifyAgent(%q) = %q, want %q", tt.userAgent, got, tt.want)
		}
	}
}
