package security

import "testing"

// TestSanitize は注記テキストからマークアップが除去されることをテストする。
func TestSanitize(t *testing.T) {
	s := NewNoteSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "プレーンテキストはそのまま",
			input: "同期: 8000歩 / 6.2km / 心拍平均72bpm",
			want:  "同期: 8000歩 / 6.2km / 心拍平均72bpm",
		},
		{
			name:  "空文字列",
			input: "",
			want:  "",
		},
		{
			name:  "scriptタグ除去",
			input: `歩数<script>alert("xss")</script>8000`,
			want:  "歩数8000",
		},
		{
			name:  "全タグ除去",
			input: "<b>8000歩</b> <a href=\"http://evil.example.com\">詳細</a>",
			want:  "8000歩 詳細",
		},
		{
			name:  "imgタグ除去",
			input: `<img src=x onerror=alert(1)>6.2km`,
			want:  "6.2km",
		},
		{
			name:  "前後の空白トリム",
			input: "  8000歩  ",
			want:  "8000歩",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_Idempotent は同一入力に対するサニタイズが冪等であることをテストする。
func TestSanitize_Idempotent(t *testing.T) {
	s := NewNoteSanitizer()

	input := `<b>同期</b>: 8000歩 / 6.2km`
	once := s.Sanitize(input)
	twice := s.Sanitize(once)
	if once != twice {
		t.Errorf("Sanitize not idempotent: first %q, second %q", once, twice)
	}
}
