package models

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Credentials 当前认证材料的只读快照
type Credentials struct {
	Cookie       string        `json:"cookie"`  // x-ima-cookie
	Bkn          string        `json:"bkn"`     // x-ima-bkn
	Cookies      string        `json:"cookies"` // 普通 Cookie 头，可选
	ClientID     string        `json:"client_id"`
	UserID       string        `json:"user_id"`
	RefreshToken string        `json:"refresh_token"`
	Token        string        `json:"token"`
	ValidFor     time.Duration `json:"valid_for"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Version      uint64        `json:"version"`
}

var (
	imaUIDPattern      = regexp.MustCompile(`IMA-UID=([^;]+)`)
	userIDPattern      = regexp.MustCompile(`user_id=([a-f0-9]{16})`)
	refreshPattern     = regexp.MustCompile(`IMA-REFRESH-TOKEN=([^;]+)`)
	imaTokenPattern    = regexp.MustCompile(`IMA-TOKEN=([^;]+)`)
	cookieRefreshToken = regexp.MustCompile(`refresh_token=([^;]+)`)
	imaGUIDPattern     = regexp.MustCompile(`IMA-GUID=([^;]+)`)
)

// LoadCredentials 从配置的 cookie 中解析 user id 与 refresh token
func LoadCredentials(cookie, bkn, cookies, clientID string) Credentials {
	c := Credentials{
		Cookie:   strings.TrimSpace(cookie),
		Bkn:      strings.TrimSpace(bkn),
		Cookies:  strings.TrimSpace(cookies),
		ClientID: clientID,
	}
	c.UserID = firstMatch(c.Cookie, imaUIDPattern)
	if c.UserID == "" {
		c.UserID = firstMatch(c.Cookies, userIDPattern)
	}
	c.RefreshToken = unescape(firstMatch(c.Cookie, refreshPattern))
	if c.RefreshToken == "" {
		c.RefreshToken = unescape(firstMatch(c.Cookie, imaTokenPattern))
	}
	if c.RefreshToken == "" {
		c.RefreshToken = unescape(firstMatch(c.Cookies, cookieRefreshToken))
	}
	return c
}

// CanRefresh 是否具备刷新能力
func (c Credentials) CanRefresh() bool {
	return c.UserID != "" && c.RefreshToken != ""
}

// Expired 没有 token 或已进入提前刷新窗口
func (c Credentials) Expired(now time.Time, skew time.Duration) bool {
	if c.Token == "" || c.UpdatedAt.IsZero() || c.ValidFor <= 0 {
		return true
	}
	return now.After(c.UpdatedAt.Add(c.ValidFor - skew))
}

// ExpiresAt token 过期时间，没有 token 时返回零值
func (c Credentials) ExpiresAt() time.Time {
	if c.Token == "" || c.UpdatedAt.IsZero() {
		return time.Time{}
	}
	return c.UpdatedAt.Add(c.ValidFor)
}

// CookieHeader 返回替换了 IMA-TOKEN 的 x-ima-cookie
func (c Credentials) CookieHeader() string {
	if c.Token == "" {
		return c.Cookie
	}
	if imaTokenPattern.MatchString(c.Cookie) {
		return imaTokenPattern.ReplaceAllLiteralString(c.Cookie, "IMA-TOKEN="+c.Token)
	}
	base := strings.TrimRight(c.Cookie, "; ")
	if base == "" {
		return "IMA-TOKEN=" + c.Token
	}
	return base + "; IMA-TOKEN=" + c.Token
}

// GUID 返回 cookie 中的 IMA-GUID
func (c Credentials) GUID() string {
	if g := firstMatch(c.Cookie, imaGUIDPattern); g != "" {
		return g
	}
	return "default_guid"
}

func firstMatch(s string, re *regexp.Regexp) string {
	if s == "" {
		return ""
	}
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func unescape(s string) string {
	if s == "" {
		return s
	}
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}
