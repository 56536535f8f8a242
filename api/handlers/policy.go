package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/policyqa/api"
	"github.com/BaSui01/policyqa/policy"
	"github.com/BaSui01/policyqa/rag"
	"github.com/BaSui01/policyqa/types"
)

// =============================================================================
// 📜 政策问答 Handler
// =============================================================================

// PolicyService 是 handler 依赖的服务面，*policy.Service 满足该接口
type PolicyService interface {
	IndexDocument(ctx context.Context, path, title string) (*policy.IndexResult, error)
	IndexDirectory(ctx context.Context, dir string) (*policy.BulkResult, error)
	Ask(ctx context.Context, question string, history []types.Turn) (*rag.Answer, error)
	Status(ctx context.Context) policy.Status
	Suggestions() []string
}

// PolicyHandler 政策问答处理器
type PolicyHandler struct {
	service PolicyService
	logger  *zap.Logger
}

// NewPolicyHandler 创建政策问答处理器
func NewPolicyHandler(service PolicyService, logger *zap.Logger) *PolicyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyHandler{
		service: service,
		logger:  logger.With(zap.String("handler", "policy")),
	}
}

// Register 在 mux 上挂载全部政策路由
func (h *PolicyHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/policies/index", h.HandleIndex)
	mux.HandleFunc("POST /api/v1/policies/index-dir", h.HandleIndexDir)
	mux.HandleFunc("POST /api/v1/policies/ask", h.HandleAsk)
	mux.HandleFunc("GET /api/v1/policies/status", h.HandleStatus)
	mux.HandleFunc("GET /api/v1/policies/suggestions", h.HandleSuggestions)
}

// HandleIndex 摄入单个政策文件
// @Summary 摄入政策文件
// @Description 加载、切分、嵌入并追加到向量索引，成功后立即持久化
// @Tags 政策
// @Accept json
// @Produce json
// @Param request body api.IndexDocumentRequest true "文件路径与标题"
// @Success 200 {object} Response "摄入成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 422 {object} Response "摄入失败"
// @Router /api/v1/policies/index [post]
func (h *PolicyHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.IndexDocumentRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if strings.TrimSpace(req.Path) == "" {
		WriteError(w, r, types.NewInvalidRequestError("path is required"), h.logger)
		return
	}

	result, err := h.service.IndexDocument(r.Context(), req.Path, strings.TrimSpace(req.Title))
	if err != nil {
		WriteErr(w, r, err, h.logger)
		return
	}

	WriteSuccess(w, r, result)
}

// HandleIndexDir 批量摄入目录
// @Summary 批量摄入目录
// @Description 单个文件失败只计入 failed 列表，不中断整体
// @Tags 政策
// @Accept json
// @Produce json
// @Param request body api.IndexDirectoryRequest true "目录"
// @Success 200 {object} Response "批量结果"
// @Router /api/v1/policies/index-dir [post]
func (h *PolicyHandler) HandleIndexDir(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.IndexDirectoryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Dir) == "" {
		WriteError(w, r, types.NewInvalidRequestError("dir is required"), h.logger)
		return
	}

	result, err := h.service.IndexDirectory(r.Context(), req.Dir)
	if err != nil {
		WriteErr(w, r, err, h.logger)
		return
	}

	WriteSuccess(w, r, result)
}

// HandleAsk 回答问题
// @Summary 政策问答
// @Description 结合对话历史改写问题、检索并生成带来源的回答
// @Tags 政策
// @Accept json
// @Produce json
// @Param request body api.AskRequest true "问题与历史"
// @Success 200 {object} Response "回答"
// @Failure 409 {object} Response "尚未索引任何政策"
// @Failure 503 {object} Response "外部能力暂时不可用"
// @Router /api/v1/policies/ask [post]
func (h *PolicyHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.AskRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	// 1. 转换历史
	history, err := api.ToTurns(req.History)
	if err != nil {
		WriteErr(w, r, err, h.logger)
		return
	}

	// 2. 问答（空问题由服务层校验）
	answer, err := h.service.Ask(r.Context(), req.Question, history)
	if err != nil {
		WriteErr(w, r, err, h.logger)
		return
	}

	WriteSuccess(w, r, answer)
}

// HandleStatus 索引状态
// @Summary 索引状态
// @Tags 政策
// @Produce json
// @Success 200 {object} Response "索引状态"
// @Router /api/v1/policies/status [get]
func (h *PolicyHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.service.Status(r.Context()))
}

// HandleSuggestions 推荐问题
// @Summary 推荐问题
// @Tags 政策
// @Produce json
// @Success 200 {object} Response "推荐问题"
// @Router /api/v1/policies/suggestions [get]
func (h *PolicyHandler) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, api.SuggestionsResponse{Suggestions: h.service.Suggestions()})
}
