package model

import "time"

// Credential はプロバイダーが発行したベアラートークンとその有効期限を表す。
// AuthorizationFlowの成功時に生成され、FitnessDataClientが全リクエスト前に参照する。
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// IsValid はトークンが有効かを判定する。
// アクセストークンと有効期限の両方が存在し、かつ期限前である場合のみ有効とする。
// 有効期限が欠落している場合は無効として扱う（fail-closed）。
func (c Credential) IsValid(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return now.Before(c.ExpiresAt)
}
