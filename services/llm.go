package services

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrMissingCredential 未配置AI服务密钥，属于配置问题而非网络失败
var ErrMissingCredential = errors.New("未配置AI服务密钥")

// ReframeClient OpenAI兼容的文本生成客户端
type ReframeClient struct {
	Chat  llms.Model
	Model string
}

func NewReframeClient(apiKey, apiEndpoint, model string) (*ReframeClient, error) {
	if apiKey == "" {
		return nil, ErrMissingCredential
	}

	chat, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithBaseURL(apiEndpoint),
		openai.WithModel(model),
		openai.WithResponseFormat(&openai.ResponseFormat{
			Type: "json_object",
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reframe client: %w", err)
	}

	return &ReframeClient{
		Chat:  chat,
		Model: model,
	}, nil
}
