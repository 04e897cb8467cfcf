package httpapi

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/fd1az/quote-engine/business/quoting/app"
	"github.com/fd1az/quote-engine/internal/apperror"
	"github.com/fd1az/quote-engine/internal/logger"
)

// OperatorHeader carries the address an admin request acts as.
const OperatorHeader = "X-Operator"

// AdminHandler reads and updates the quoting settings.
type AdminHandler struct {
	settings *app.Settings
	logger   logger.LoggerInterface
}

var _ Handler = (*AdminHandler)(nil)

func NewAdminHandler(settings *app.Settings, log logger.LoggerInterface) *AdminHandler {
	return &AdminHandler{settings: settings, logger: log}
}

func (h *AdminHandler) Root() string {
	return "/settings"
}

func (h *AdminHandler) SetRoutes(pub *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.get)
	admin.PUT("/slippage", h.update("set_slippage", h.settings.SetSlippage))
	admin.PUT("/tolerance", h.update("set_tolerance", h.settings.SetTolerance))
}

// UpdateRequest is the body of both settings updates.
type UpdateRequest struct {
	Bps *uint32 `json:"bps" binding:"required"`
}

func (h *AdminHandler) get(c *gin.Context) {
	success(c, h.settings.Snapshot())
}

func (h *AdminHandler) update(action string, set func(caller common.Address, bps uint32) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		caller := c.GetHeader(OperatorHeader)
		if !common.IsHexAddress(caller) {
			adminActions.WithLabelValues(action, string(apperror.CodeUnauthorizedOperator)).Inc()
			fail(c, apperror.New(apperror.CodeUnauthorizedOperator,
				apperror.WithContext("missing or malformed "+OperatorHeader)))
			return
		}

		var req UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			adminActions.WithLabelValues(action, string(apperror.CodeInvalidInput)).Inc()
			badRequest(c, err.Error())
			return
		}

		before := h.settings.Snapshot()
		if err := set(common.HexToAddress(caller), *req.Bps); err != nil {
			code := apperror.GetCode(err)
			adminActions.WithLabelValues(action, string(code)).Inc()
			h.logger.Warn(ctx, "settings update refused",
				"action", action, "caller", caller, "bps", *req.Bps, "code", code)
			fail(c, err)
			return
		}

		after := h.settings.Snapshot()
		adminActions.WithLabelValues(action, "ok").Inc()
		h.logger.Info(ctx, "settings updated",
			"action", action,
			"caller", caller,
			"slippage_bps", before.SlippageBps, "new_slippage_bps", after.SlippageBps,
			"tolerance_bps", before.ToleranceBps, "new_tolerance_bps", after.ToleranceBps,
		)
		success(c, after)
	}
}
