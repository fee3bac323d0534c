package config

import (
	"errors"
	"time"
)

var imaConf Ima

type Ima struct {
	BaseURL         string `mapstructure:"baseUrl"`
	Cookie          string `mapstructure:"cookie"` // x-ima-cookie
	Bkn             string `mapstructure:"bkn"`    // x-ima-bkn
	Cookies         string `mapstructure:"cookies"`
	ClientID        string `mapstructure:"clientId"`
	KnowledgeBaseID string `mapstructure:"knowledgeBaseId"`
	RobotType       int    `mapstructure:"robotType"`
	SceneType       int    `mapstructure:"sceneType"`
	ModelType       int    `mapstructure:"modelType"`

	Timeout        time.Duration `mapstructure:"timeout"`        // 单次 ask 的总时长，覆盖所有尝试
	AttemptTimeout time.Duration `mapstructure:"attemptTimeout"` // 单次 HTTP 尝试的上限
	MaxAttempts    int           `mapstructure:"maxAttempts"`
	BackoffBase    time.Duration `mapstructure:"backoffBase"`
	BackoffMax     time.Duration `mapstructure:"backoffMax"`
	Jitter         bool          `mapstructure:"jitter"`

	RefreshAttempts int           `mapstructure:"refreshAttempts"`
	RefreshTimeout  time.Duration `mapstructure:"refreshTimeout"`
	EagerRefresh    bool          `mapstructure:"eagerRefresh"`

	RawLog RawLog `mapstructure:"rawLog"`
}

type RawLog struct {
	Enable    bool   `mapstructure:"enable"`
	Sink      string `mapstructure:"sink"` // file | mysql
	Dir       string `mapstructure:"dir"`
	MaxBytes  int    `mapstructure:"maxBytes"`
	OnSuccess bool   `mapstructure:"onSuccess"`
}

func GetImaConf() Ima {
	return imaConf
}

// Validate 检查必填的认证与知识库参数
func (c Ima) Validate() error {
	var errs []error
	if c.Cookie == "" {
		errs = append(errs, errors.New("ima.cookie (IMA_X_IMA_COOKIE) is required"))
	}
	if c.Bkn == "" {
		errs = append(errs, errors.New("ima.bkn (IMA_X_IMA_BKN) is required"))
	}
	if c.ClientID == "" {
		errs = append(errs, errors.New("ima.clientId (IMA_CLIENT_ID) is required"))
	}
	if c.KnowledgeBaseID == "" {
		errs = append(errs, errors.New("ima.knowledgeBaseId (IMA_KNOWLEDGE_BASE_ID) is required"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("ima.maxAttempts must be at least 1"))
	}
	return errors.Join(errs...)
}
