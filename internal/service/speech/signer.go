package speech

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"
)

// SignURL 为讯飞风格的 WebSocket 接口生成带鉴权参数的 URL。
// 同样的 (rawURL, apiKey, apiSecret, at) 输入必然产生同样的输出。
//
// 签名流程：
//  1. 拼规范串 "host: <host>\ndate: <RFC1123 日期>\nGET <path> HTTP/1.1"
//  2. 用 apiSecret 做 HMAC-SHA256，摘要 base64
//  3. 组 authorization 原串并整体再 base64
//  4. authorization/date/host 作为查询参数挂回 URL
func SignURL(rawURL, apiKey, apiSecret string, at time.Time) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse signing url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("signing url %q has no host", rawURL)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	date := at.UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
	canonical := fmt.Sprintf("host: %s\ndate: %s\nGET %s HTTP/1.1", u.Host, date, path)

	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(canonical))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	origin := fmt.Sprintf(
		`api_key="%s", algorithm="hmac-sha256", headers="host date request-line", signature="%s"`,
		apiKey, signature)
	authorization := base64.StdEncoding.EncodeToString([]byte(origin))

	query := u.Query()
	query.Set("authorization", authorization)
	query.Set("date", date)
	query.Set("host", u.Host)
	u.RawQuery = query.Encode()

	return u.String(), nil
}
