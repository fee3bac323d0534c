package util

// 上游接口路径
const (
	AskPath         = "/cgi-bin/assistant/qa"
	RefreshPath     = "/cgi-bin/auth_login/refresh"
	InitSessionPath = "/cgi-bin/session_logic/init_session"
)

// 请求固定参数
const (
	QuestionType     = 2
	CommandTypeQA    = 14
	RefreshTokenType = 14
	SessionMsgsLimit = 10
	DefaultTokenTTL  = 7200 // 秒，服务端未返回有效期时使用
)

// BrowserHeaders 模拟浏览器插件的固定请求头
var BrowserHeaders = map[string]string{
	"from_browser_ima":  "1",
	"extension_version": "999.999.999",
	"accept-language":   "zh-CN,zh;q=0.9,en;q=0.8,en-GB;q=0.7,en-US;q=0.6",
	"referer":           "https://ima.qq.com/wikis",
	"user-agent":        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36",
}
