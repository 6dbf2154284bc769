package a2a

import "github.com/google/uuid"

/*
PushConfig is an outbound webhook registration bound to a task. Only URL is
required; Token/HMACSecret/JWTSecret select which of the three auth modes
the push notifier (C6) applies, and are mutually additive, not exclusive --
a config may set more than one and the notifier sends every header that
applies.
*/
type PushConfig struct {
	ConfigID    string `json:"configId"`
	TaskID      string `json:"taskId"`
	URL         string `json:"url"`
	Token       string `json:"token,omitempty"`
	HMACSecret  string `json:"hmacSecret,omitempty"`
	JWTSecret   string `json:"jwtSecret,omitempty"`
	JWTIssuer   string `json:"jwtIssuer,omitempty"`
	JWTAudience string `json:"jwtAudience,omitempty"`
	JWTKid      string `json:"jwtKid,omitempty"`
}

func NewPushConfig(taskID, url string) *PushConfig {
	return &PushConfig{
		ConfigID: uuid.NewString(),
		TaskID:   taskID,
		URL:      url,
	}
}
