package models

// AskParams 一次提问的不可变参数
type AskParams struct {
	Question        string
	KnowledgeBaseID string
	RobotType       int
	SceneType       int
	ModelType       int
	SessionID       string
}

// AskRequest 问答接口请求体
type AskRequest struct {
	SessionID       string      `json:"session_id"`
	RobotType       int         `json:"robot_type"`
	SceneType       int         `json:"scene_type"`
	KnowledgeBaseID string      `json:"knowledge_base_id"`
	Question        string      `json:"question"`
	QuestionType    int         `json:"question_type"`
	ClientID        string      `json:"client_id"`
	CommandInfo     CommandInfo `json:"command_info"`
	ModelInfo       ModelInfo   `json:"model_info"`
	HistoryInfo     struct{}    `json:"history_info"`
	DeviceInfo      DeviceInfo  `json:"device_info"`
}

type CommandInfo struct {
	Type            int             `json:"type"`
	KnowledgeQaInfo KnowledgeQaInfo `json:"knowledge_qa_info"`
}

type KnowledgeQaInfo struct {
	Tags         []string `json:"tags"`
	KnowledgeIDs []string `json:"knowledge_ids"`
}

type ModelInfo struct {
	ModelType         int  `json:"model_type"`
	EnableEnhancement bool `json:"enable_enhancement"`
}

type DeviceInfo struct {
	Uskey              string `json:"uskey"`
	UskeyBusInfosInput string `json:"uskey_bus_infos_input"`
}

// InitSessionRequest 会话初始化请求体
type InitSessionRequest struct {
	EnvInfo                     EnvInfo                     `json:"envInfo"`
	RelatedURL                  string                      `json:"relatedUrl"`
	SceneType                   int                         `json:"sceneType"`
	MsgsLimit                   int                         `json:"msgsLimit"`
	ForbidAutoAddToHistoryList  bool                        `json:"forbidAutoAddToHistoryList"`
	KnowledgeBaseInfoWithFolder KnowledgeBaseInfoWithFolder `json:"knowledgeBaseInfoWithFolder"`
}

type EnvInfo struct {
	RobotType    int `json:"robotType"`
	InteractType int `json:"interactType"`
}

type KnowledgeBaseInfoWithFolder struct {
	KnowledgeBaseID string   `json:"knowledgeBaseId"`
	FolderIDs       []string `json:"folderIds"`
}

type InitSessionResponse struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	SessionID string `json:"session_id"`
}

// TokenRefreshRequest token 刷新请求体
type TokenRefreshRequest struct {
	UserID       string `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
	TokenType    int    `json:"token_type"`
}

type TokenRefreshResponse struct {
	Code           int    `json:"code"`
	Msg            string `json:"msg"`
	Token          string `json:"token"`
	TokenValidTime string `json:"token_valid_time"`
	UserID         string `json:"user_id"`
}

// RemoteError 非流式错误响应
type RemoteError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
