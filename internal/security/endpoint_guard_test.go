package security

import (
	"strings"
	"testing"
	"time"
)

// TestValidateEndpoint_Blocked は危険なURLが拒否されることをテストする。
func TestValidateEndpoint_Blocked(t *testing.T) {
	guard := NewEndpointGuard()

	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{
			name:    "空URL",
			url:     "",
			wantErr: "empty URL",
		},
		{
			name:    "fileスキーム",
			url:     "file:///etc/passwd",
			wantErr: "disallowed scheme",
		},
		{
			name:    "ftpスキーム",
			url:     "ftp://example.com/feed",
			wantErr: "disallowed scheme",
		},
		{
			name:    "ホストなし",
			url:     "https://",
			wantErr: "empty host",
		},
		{
			name:    "localhost",
			url:     "http://localhost/api",
			wantErr: "blocked host",
		},
		{
			name:    "ループバックIP",
			url:     "http://127.0.0.1:8080/api",
			wantErr: "blocked IP",
		},
		{
			name:    "プライベートIP 10.x",
			url:     "https://10.0.0.5/api",
			wantErr: "blocked IP",
		},
		{
			name:    "プライベートIP 192.168.x",
			url:     "https://192.168.1.1/api",
			wantErr: "blocked IP",
		},
		{
			name:    "クラウドメタデータIP",
			url:     "http://169.254.169.254/latest/meta-data/",
			wantErr: "blocked IP",
		},
		{
			name:    "IPv6ループバック",
			url:     "http://[::1]/api",
			wantErr: "blocked IP",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateEndpoint(tt.url)
			if err == nil {
				t.Fatalf("ValidateEndpoint(%q) = nil, want error containing %q", tt.url, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateEndpoint(%q) = %v, want error containing %q", tt.url, err, tt.wantErr)
			}
		})
	}
}

// TestValidateEndpoint_Allowed は正当なURLが許可されることをテストする。
func TestValidateEndpoint_Allowed(t *testing.T) {
	guard := NewEndpointGuard()

	urls := []string{
		"https://api.fitness-provider.example.com/v1/metrics",
		"https://auth.fitness-provider.example.com/oauth/authorize",
		"http://api.example.com/activities",
		"https://8.8.8.8/api",
	}

	for _, u := range urls {
		if err := guard.ValidateEndpoint(u); err != nil {
			t.Errorf("ValidateEndpoint(%q) = %v, want nil", u, err)
		}
	}
}

// TestValidateEndpoint_LocalGuard はローカル許可構成でループバック宛先が
// 許可されることをテストする。
func TestValidateEndpoint_LocalGuard(t *testing.T) {
	guard := NewLocalEndpointGuard()

	if err := guard.ValidateEndpoint("http://127.0.0.1:8080/api"); err != nil {
		t.Errorf("ValidateEndpoint(loopback) = %v, want nil", err)
	}
	if err := guard.ValidateEndpoint("http://localhost:8080/api"); err != nil {
		t.Errorf("ValidateEndpoint(localhost) = %v, want nil", err)
	}

	// スキーム検証はローカル構成でも維持される
	if err := guard.ValidateEndpoint("file:///etc/passwd"); err == nil {
		t.Error("ValidateEndpoint(file scheme) = nil, want error")
	}
}

// TestNewSafeClient はクライアント生成とタイムアウト設定をテストする。
func TestNewSafeClient(t *testing.T) {
	guard := NewEndpointGuard()
	client := guard.NewSafeClient(10 * time.Second)
	if client == nil {
		t.Fatal("NewSafeClient() = nil, want non-nil")
	}

	local := NewLocalEndpointGuard()
	localClient := local.NewSafeClient(5 * time.Second)
	if localClient == nil {
		t.Fatal("NewSafeClient() = nil, want non-nil")
	}
	if localClient.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want %v", localClient.Timeout, 5*time.Second)
	}
}
