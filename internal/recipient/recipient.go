// Package recipient はメール送信先フィールドの解析と検証を行う。
package recipient

import "strings"

// Parse は改行区切りの入力を送信先アドレスのリストに変換する。
// 各行は前後の空白を除去し、空行は捨てる。入力順は保持する。
func Parse(field string) []string {
	var out []string
	for line := range strings.Lines(field) {
		addr := strings.TrimSpace(line)
		if addr == "" {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// Valid はアドレスが最低限の形式（"@" と "." を含む）を満たすかどうかを返す。
func Valid(addr string) bool {
	return strings.Contains(addr, "@") && strings.Contains(addr, ".")
}

// Invalid はaddrsのうち形式が無効なものを入力順で返す。
func Invalid(addrs []string) []string {
	var invalid []string
	for _, a := range addrs {
		if !Valid(a) {
			invalid = append(invalid, a)
		}
	}
	return invalid
}
