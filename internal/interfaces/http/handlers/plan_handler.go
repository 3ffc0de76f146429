package handlers

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"xchain-router.backend/internal/coordination"
	"xchain-router.backend/internal/domain/entities"
	domainerrors "xchain-router.backend/internal/domain/errors"
	"xchain-router.backend/internal/domain/repositories"
	"xchain-router.backend/internal/execution"
	"xchain-router.backend/internal/interfaces/http/response"
	"xchain-router.backend/internal/routing"
	"xchain-router.backend/pkg/logger"
	"xchain-router.backend/pkg/utils"
)

// PlanHandler exposes the thin HTTP surface named in SPEC_FULL.md's
// component O: submit a deposit-observed plan, inspect its status, and
// (dev-only) list/advance in-progress plans without waiting on the
// background worker. It is intentionally thin - the routing/execution
// packages hold all the engineering weight, this layer only parses
// requests, calls them in order, and serializes the result, the same
// division the teacher's own handlers keep from their usecases layer.
type PlanHandler struct {
	registry      repositories.RegistryRepository
	indexer       routing.DexIndexer
	plans         repositories.PlanRepository
	driver        planDriver
	assigner      planAssigner
	prestart      prestartEnforcer
	pathCfg       routing.PathFinderConfig
	minReserveUsd int64
	execAddr      entities.Address
}

// planAssigner is the slice of coordination.Assigner this handler needs:
// registering a freshly persisted plan as active so the worker's next poll
// picks it up. *coordination.Assigner satisfies this with no changes.
type planAssigner interface {
	RegisterExecPlan(ctx context.Context, planUUID string) error
}

// prestartEnforcer is the slice of coordination.PrestartEnforcer this
// handler needs, narrowed for testability.
// *coordination.PrestartEnforcer satisfies this with no changes.
type prestartEnforcer interface {
	ClaimDeposit(ctx context.Context, depositTxHash, planUUID string) error
}

// planDriver is the slice of *execution.Driver the handler needs: Advance
// (for the dev-only "advance one tick" endpoint) and
// RegisterPrestartDeposit, narrowed so the handler's tests can use a stub
// instead of constructing a full Executor.
type planDriver interface {
	Advance(ctx context.Context, plan *execution.ExecutionPlan) error
	RegisterPrestartDeposit(ctx context.Context, plan *execution.ExecutionPlan, depositTxHash string) error
}

func NewPlanHandler(
	registry repositories.RegistryRepository,
	indexer routing.DexIndexer,
	plans repositories.PlanRepository,
	driver *execution.Driver,
	assigner *coordination.Assigner,
	prestart *coordination.PrestartEnforcer,
	pathCfg routing.PathFinderConfig,
	minReserveUsd int64,
	execAddr entities.Address,
) *PlanHandler {
	return &PlanHandler{
		registry:      registry,
		indexer:       indexer,
		plans:         plans,
		driver:        driver,
		assigner:      assigner,
		prestart:      prestart,
		pathCfg:       pathCfg,
		minReserveUsd: minReserveUsd,
		execAddr:      execAddr,
	}
}

// submitPlanRequest is the deposit-observed plan submission body: the caller
// has already seen the user's funds land at execAddr and is asking the
// router to compute and persist a plan moving them to destination.
type submitPlanRequest struct {
	SrcChain      string `json:"srcChain" binding:"required"`
	SrcTokenKind  string `json:"srcTokenKind" binding:"required"`
	SrcTokenAddr  string `json:"srcTokenAddr"`
	DestChain     string `json:"destChain" binding:"required"`
	DestTokenKind string `json:"destTokenKind" binding:"required"`
	DestTokenAddr string `json:"destTokenAddr"`
	AmountIn      string `json:"amountIn" binding:"required"`
	SrcAddr       string `json:"srcAddr" binding:"required"`
	DestAddr      string `json:"destAddr" binding:"required"`

	// DepositTxHash is the on-chain hash of the deposit that funded
	// execAddr for this request. Claimed exactly once via PrestartEnforcer
	// so a replayed or duplicated submission can never spin up a second
	// plan against the same deposit.
	DepositTxHash string `json:"depositTxHash" binding:"required"`
}

type submitPlanResponse struct {
	PlanUUID string `json:"planUuid"`
	Status   string `json:"status"`
}

// SubmitPlan builds the token graph, computes a route, converts it into an
// execution plan, and persists it.
// POST /api/v1/plans
func (h *PlanHandler) SubmitPlan(c *gin.Context) {
	var req submitPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	srcToken, err := parseTokenId(req.SrcChain, req.SrcTokenKind, req.SrcTokenAddr)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("srcToken: "+err.Error()))
		return
	}
	destToken, err := parseTokenId(req.DestChain, req.DestTokenKind, req.DestTokenAddr)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("destToken: "+err.Error()))
		return
	}
	amountIn, err := uint256.FromDecimal(req.AmountIn)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("amountIn: "+err.Error()))
		return
	}
	srcAddr, err := parseAddress(req.SrcAddr)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("srcAddr: "+err.Error()))
		return
	}
	destAddr, err := parseAddress(req.DestAddr)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("destAddr: "+err.Error()))
		return
	}

	ctx := c.Request.Context()

	input, err := h.registry.LoadBuilderInput(ctx)
	if err != nil {
		logger.Error(ctx, "failed to load builder input", zap.Error(err))
		response.Error(c, domainerrors.InternalError(err))
		return
	}
	graph, err := routing.BuildGraph(ctx, h.indexer, input, h.minReserveUsd)
	if err != nil {
		logger.Error(ctx, "failed to build graph", zap.Error(err))
		response.Error(c, domainerrors.InternalError(err))
		return
	}

	solution, err := routing.ComputeGraphSolution(graph, srcToken, destToken, amountIn, srcAddr, destAddr, h.pathCfg)
	if err != nil {
		if errors.Is(err, routing.ErrSameSrcDest) || errors.Is(err, routing.ErrNoPathFound) {
			response.Error(c, domainerrors.BadRequest(err.Error()))
			return
		}
		response.Error(c, domainerrors.InternalError(err))
		return
	}

	plan, err := execution.ConvertToExecutionPlan(solution, h.execAddr)
	if err != nil {
		response.Error(c, domainerrors.InternalError(err))
		return
	}
	planUUIDHex := hex.EncodeToString(plan.UUID[:])

	if err := h.prestart.ClaimDeposit(ctx, req.DepositTxHash, planUUIDHex); err != nil {
		if errors.Is(err, coordination.ErrDuplicateDeposit) {
			response.Error(c, domainerrors.Conflict(err.Error()))
			return
		}
		response.Error(c, domainerrors.InternalError(err))
		return
	}

	if err := h.driver.RegisterPrestartDeposit(ctx, plan, req.DepositTxHash); err != nil {
		logger.Error(ctx, "failed to register prestart deposit", zap.Error(err))
		response.Error(c, domainerrors.InternalError(err))
		return
	}

	if err := h.plans.Save(ctx, plan); err != nil {
		response.Error(c, domainerrors.InternalError(err))
		return
	}

	if err := h.assigner.RegisterExecPlan(ctx, planUUIDHex); err != nil {
		logger.Error(ctx, "failed to register exec plan with assigner", zap.Error(err))
		response.Error(c, domainerrors.InternalError(err))
		return
	}

	response.Success(c, http.StatusCreated, submitPlanResponse{
		PlanUUID: planUUIDHex,
		Status:   plan.Status().String(),
	})
}

type planStatusResponse struct {
	PlanUUID         string `json:"planUuid"`
	Status           string `json:"status"`
	AllPathsSucceeded bool  `json:"allPathsSucceeded"`
}

// GetPlanStatus reports the aggregate status of a persisted plan.
// GET /api/v1/plans/:uuid
func (h *PlanHandler) GetPlanStatus(c *gin.Context) {
	planUUID, err := parsePlanUUID(c.Param("uuid"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	plan, err := h.plans.Get(c.Request.Context(), planUUID)
	if err != nil {
		response.Error(c, domainerrors.NotFound(err.Error()))
		return
	}

	response.Success(c, http.StatusOK, planStatusResponse{
		PlanUUID:          c.Param("uuid"),
		Status:            plan.Status().String(),
		AllPathsSucceeded: plan.AllPathsSucceeded(),
	})
}

// ListInProgress is a dev-only convenience mirroring what the background
// worker polls every tick, useful for manual testing without a worker
// process running alongside the server. The worker itself always drives
// every in-progress plan regardless of page/limit - pagination here only
// bounds what this inspection endpoint returns.
// GET /api/v1/dev/plans?page=1&limit=50
func (h *PlanHandler) ListInProgress(c *gin.Context) {
	uuids, err := h.plans.ListInProgress(c.Request.Context())
	if err != nil {
		response.Error(c, domainerrors.InternalError(err))
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	pagination := utils.GetPaginationParams(page, limit)

	total := int64(len(uuids))
	start := pagination.CalculateOffset()
	if start > len(uuids) {
		start = len(uuids)
	}
	end := len(uuids)
	if pagination.Limit > 0 && start+pagination.Limit < end {
		end = start + pagination.Limit
	}
	pageSlice := uuids[start:end]

	out := make([]string, 0, len(pageSlice))
	for _, u := range pageSlice {
		out = append(out, hex.EncodeToString(u[:]))
	}

	meta := utils.CalculateMeta(total, pagination.Page, pagination.Limit)
	response.Success(c, http.StatusOK, gin.H{
		"planUuids": out,
		"meta":      meta,
	})
}

// AdvanceOne is a dev-only endpoint that drives one plan by one tick
// synchronously, for manual testing without waiting on the worker's poll
// interval.
// POST /api/v1/dev/plans/:uuid/advance
func (h *PlanHandler) AdvanceOne(c *gin.Context) {
	planUUID, err := parsePlanUUID(c.Param("uuid"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	ctx := c.Request.Context()
	plan, err := h.plans.Get(ctx, planUUID)
	if err != nil {
		response.Error(c, domainerrors.NotFound(err.Error()))
		return
	}
	if err := h.driver.Advance(ctx, plan); err != nil {
		response.Error(c, domainerrors.InternalError(err))
		return
	}
	if err := h.plans.Save(ctx, plan); err != nil {
		response.Error(c, domainerrors.InternalError(err))
		return
	}

	response.Success(c, http.StatusOK, planStatusResponse{
		PlanUUID:          c.Param("uuid"),
		Status:            plan.Status().String(),
		AllPathsSucceeded: plan.AllPathsSucceeded(),
	})
}
