package httpapi

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/fd1az/quote-engine/business/quoting/app"
	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/business/quoting/infra/redisfeed"
	"github.com/fd1az/quote-engine/internal/asset"
)

// SnapshotStore serves the watcher's last published quotes.
type SnapshotStore interface {
	Latest(ctx context.Context, pair string) (redisfeed.Snapshot, error)
	Pairs(ctx context.Context) ([]string, error)
}

// QuoteHandler exposes the quoting operations over GET.
type QuoteHandler struct {
	swapper   app.Swapper
	registry  *asset.Registry
	chainID   uint64
	snapshots SnapshotStore
}

var _ Handler = (*QuoteHandler)(nil)

// NewQuoteHandler creates the handler. snapshots may be nil, which disables the snapshot routes.
func NewQuoteHandler(swapper app.Swapper, registry *asset.Registry, chainID uint64, snapshots SnapshotStore) *QuoteHandler {
	return &QuoteHandler{
		swapper:   swapper,
		registry:  registry,
		chainID:   chainID,
		snapshots: snapshots,
	}
}

func (h *QuoteHandler) Root() string {
	return "/quotes"
}

func (h *QuoteHandler) SetRoutes(pub *gin.RouterGroup, _ *gin.RouterGroup) {
	pub.GET("/supported", h.isPairSupported)
	pub.GET("/optimal", h.quote(h.swapper.FindOptimalSwap))
	pub.GET("/executable", h.quote(h.swapper.FindExecutableSwap))
	pub.GET("/unsafe", h.quote(h.swapper.UnsafeFindExecutableSwap))

	if h.snapshots != nil {
		pub.GET("/snapshots", h.listPairs)
		pub.GET("/snapshots/:in/:out", h.latest)
	}
}

// QuoteRequest is the query of every quote route. Tokens are hex addresses or registered
// symbols; AmountIn is in base units of tokenIn.
type QuoteRequest struct {
	TokenIn  string `form:"tokenIn" binding:"required"`
	TokenOut string `form:"tokenOut" binding:"required"`
	AmountIn string `form:"amountIn" binding:"required"`
}

// QuoteResponse is one quote. AmountOutFormatted is set when tokenOut is registered.
type QuoteResponse struct {
	TokenIn            string   `json:"tokenIn"`
	TokenOut           string   `json:"tokenOut"`
	AmountIn           string   `json:"amountIn"`
	AmountOut          string   `json:"amountOut"`
	AmountOutFormatted string   `json:"amountOutFormatted,omitempty"`
	Venue              string   `json:"venue,omitempty"`
	Kind               string   `json:"kind"`
	Pools              []string `json:"pools"`
	FeesBps            []uint32 `json:"feesBps"`
}

// SupportedResponse answers the pair support check.
type SupportedResponse struct {
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	Supported bool   `json:"supported"`
}

type parsedQuery struct {
	tokenIn  common.Address
	tokenOut common.Address
	amountIn *big.Int
}

func (h *QuoteHandler) parse(c *gin.Context) (parsedQuery, bool) {
	var req QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err.Error())
		return parsedQuery{}, false
	}

	tokenIn, err := h.registry.Resolve(h.chainID, req.TokenIn)
	if err != nil {
		badRequest(c, "tokenIn: "+err.Error())
		return parsedQuery{}, false
	}
	tokenOut, err := h.registry.Resolve(h.chainID, req.TokenOut)
	if err != nil {
		badRequest(c, "tokenOut: "+err.Error())
		return parsedQuery{}, false
	}
	amountIn, ok := new(big.Int).SetString(req.AmountIn, 10)
	if !ok {
		badRequest(c, "amountIn must be a base-10 integer")
		return parsedQuery{}, false
	}

	return parsedQuery{tokenIn: tokenIn, tokenOut: tokenOut, amountIn: amountIn}, true
}

func (h *QuoteHandler) isPairSupported(c *gin.Context) {
	q, ok := h.parse(c)
	if !ok {
		return
	}

	supported, err := h.swapper.IsPairSupported(c.Request.Context(), q.tokenIn, q.tokenOut, q.amountIn)
	if err != nil {
		fail(c, err)
		return
	}

	success(c, SupportedResponse{
		TokenIn:   q.tokenIn.Hex(),
		TokenOut:  q.tokenOut.Hex(),
		Supported: supported,
	})
}

type quoteFn func(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (domain.Quote, error)

func (h *QuoteHandler) quote(fn quoteFn) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, ok := h.parse(c)
		if !ok {
			return
		}

		quote, err := fn(c.Request.Context(), q.tokenIn, q.tokenOut, q.amountIn)
		if err != nil {
			fail(c, err)
			return
		}

		success(c, h.toResponse(q, quote))
	}
}

func (h *QuoteHandler) toResponse(q parsedQuery, quote domain.Quote) QuoteResponse {
	amountOut := quote.AmountOut
	if amountOut == nil {
		amountOut = new(big.Int)
	}

	resp := QuoteResponse{
		TokenIn:   q.tokenIn.Hex(),
		TokenOut:  q.tokenOut.Hex(),
		AmountIn:  q.amountIn.String(),
		AmountOut: amountOut.String(),
		Venue:     string(quote.Venue),
		Kind:      quote.Kind.String(),
		Pools:     make([]string, 0, len(quote.Pools)),
		FeesBps:   append([]uint32{}, quote.Fees...),
	}
	for _, p := range quote.Pools {
		resp.Pools = append(resp.Pools, p.Hex())
	}
	if out, ok := h.registry.Get(h.chainID, q.tokenOut); ok {
		resp.AmountOutFormatted = asset.NewAmount(out, amountOut).ToDecimal().String()
	}
	return resp
}

func (h *QuoteHandler) listPairs(c *gin.Context) {
	pairs, err := h.snapshots.Pairs(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	success(c, pairs)
}

func (h *QuoteHandler) latest(c *gin.Context) {
	snap, err := h.snapshots.Latest(c.Request.Context(), c.Param("in")+"/"+c.Param("out"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, snap)
}
