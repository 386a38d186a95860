package shortlink

import (
	"errors"
	"net/url"
	"strings"
)

const (
	// MaxOriginalLen bounds the stored original URL.
	MaxOriginalLen = 2048
	// MaxShortLen bounds any short id, custom or generated.
	MaxShortLen = 16
	// ReservedShort is the path of the upload page; a short id equal to it would shadow the route.
	ReservedShort = "files"
)

var (
	ErrInvalidURL      = errors.New("invalid url")
	ErrInvalidCustomID = errors.New("invalid custom id")
)

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// ValidateCustomID 只做语法校验：长度 1~16，仅字母/数字。
// 是否被占用、是否为保留字由 Registrar 判断。
func ValidateCustomID(s string) error {
	if s == "" || len(s) > MaxShortLen {
		return ErrInvalidCustomID
	}
	for i := 0; i < len(s); i++ {
		if !isAlnum(s[i]) {
			return ErrInvalidCustomID
		}
	}
	return nil
}

// IsValidCandidate reports whether s may be committed as a short id:
// 1..16 ASCII letters or digits and not the reserved route word.
func IsValidCandidate(s string) bool {
	if ValidateCustomID(s) != nil {
		return false
	}
	// startswith("files") && len == len("files") is plain equality.
	return s != ReservedShort
}

// ValidateURL 校验表单里的长链接。
//
// 规则：
// - scheme 必须是 http/https
// - host 不能为空，且需要带顶级域名（localhost 也不行）
// - 长度不超过 MaxOriginalLen
func ValidateURL(raw string) error {
	if raw == "" || len(raw) > MaxOriginalLen {
		return ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	host := u.Hostname()
	if strings.TrimSpace(host) == "" {
		return ErrInvalidURL
	}
	if !strings.Contains(strings.Trim(host, "."), ".") {
		return ErrInvalidURL
	}
	return nil
}
