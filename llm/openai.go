// =============================================================================
// PolicyQA OpenAI-Compatible Chat Provider
// =============================================================================
// 适用于 OpenAI 以及兼容 /v1/chat/completions 协议的服务（Azure 网关、
// vLLM、Ollama 等），只需替换 BaseURL 与模型名。
// =============================================================================

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/policyqa/types"
)

const (
	defaultOpenAIBaseURL  = "https://api.openai.com"
	defaultChatEndpoint   = "/v1/chat/completions"
	defaultOpenAITimeout  = 60 * time.Second
	defaultOpenAIProvider = "openai"
)

// OpenAIConfig OpenAI 兼容 Provider 配置
type OpenAIConfig struct {
	// ProviderName 唯一标识，默认 "openai"
	ProviderName string
	APIKey       string
	// BaseURL 默认 https://api.openai.com
	BaseURL string
	Model   string
	// Timeout HTTP 客户端超时，默认 60s
	Timeout time.Duration
	// EndpointPath 默认 /v1/chat/completions
	EndpointPath string
}

// OpenAIProvider 通过 HTTP 调用 OpenAI 兼容的聊天接口
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIProvider 创建 OpenAI 兼容 Provider
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = defaultOpenAIProvider
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = defaultChatEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultOpenAITimeout
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("provider", cfg.ProviderName)),
	}
}

// Name 实现 Provider.Name
func (p *OpenAIProvider) Name() string { return p.cfg.ProviderName }

// Model 返回默认模型
func (p *OpenAIProvider) Model() string { return p.cfg.Model }

// =============================================================================
// 协议类型
// =============================================================================

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature"`
}

type openAIChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason"`
	Message      Message `json:"message"`
}

type openAIChatResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Created int64              `json:"created"`
	Choices []openAIChatChoice `json:"choices"`
	Usage   *ChatUsage         `json:"usage,omitempty"`
}

// Completion 实现 Provider.Completion
func (p *OpenAIProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, types.NewInvalidRequestError("chat request has no messages")
	}

	model := req.Model
	if override, ok := types.LLMModel(ctx); ok {
		model = override
	}
	if model == "" {
		model = p.cfg.Model
	}

	body := openAIChatRequest{
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "encode chat request").WithCause(err)
	}

	endpoint := fmt.Sprintf("%s%s", strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.EndpointPath)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build chat request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, NetworkError(p.Name(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		msg := ReadErrorMessage(resp.Body)
		p.logger.Warn("chat completion failed",
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg))
		return nil, MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var oa openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oa); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode chat response").
			WithCause(err).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(p.Name())
	}
	if len(oa.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "chat response has no choices").
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(p.Name())
	}

	out := &ChatResponse{
		ID:           oa.ID,
		Provider:     p.Name(),
		Model:        oa.Model,
		Content:      oa.Choices[0].Message.Content,
		FinishReason: oa.Choices[0].FinishReason,
	}
	if oa.Usage != nil {
		out.Usage = *oa.Usage
	}
	if oa.Created != 0 {
		out.CreatedAt = time.Unix(oa.Created, 0)
	}
	return out, nil
}
