// Package model はドメインモデルを定義する。
package model

import (
	"regexp"
	"strings"
	"time"
)

// Device はユーザーが登録したBluetoothデバイスを表す。
// 1ユーザーにつき1台、1つのMACアドレスにつき所有者は最大1人。
type Device struct {
	ID        string
	UserID    string
	MAC       string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// macPattern は正規化後のMACアドレス形式（AA:BB:CC:DD:EE:FF）。
var macPattern = regexp.MustCompile(`^[0-9A-F]{2}(:[0-9A-F]{2}){5}$`)

// NormalizeMAC はMACアドレスを正規形（大文字・コロン区切り）に変換する。
// 形式が不正な場合はInvalidMACエラーを返す。
// AA-BB-CC-DD-EE-FF 形式のハイフン区切りも受け付ける。
func NormalizeMAC(mac string) (string, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(mac), "-", ":"))
	if !macPattern.MatchString(normalized) {
		return "", NewInvalidMACError(mac)
	}
	return normalized, nil
}
