package speech

// TTSConfig 语音合成配置
type TTSConfig struct {
	// Volcengine 凭证
	AppID       string `json:"appId"`
	AccessToken string `json:"accessToken"`

	Endpoint   string  `json:"endpoint"`   // WebSocket 地址，留空使用默认
	Voice      string  `json:"voice"`      // 发音人
	Speed      float32 `json:"speed"`      // 语速倍率 0.5-2.0
	Volume     float32 `json:"volume"`     // 音量倍率
	Language   string  `json:"language"`   // 语言，如 en、zh-CN
	SampleRate int     `json:"sampleRate"` // PCM 采样率

	Timeout int `json:"timeout"` // 秒
}

// Enabled 表示是否提供了必需的凭证。
func (c TTSConfig) Enabled() bool {
	return c.AppID != "" && c.AccessToken != ""
}
