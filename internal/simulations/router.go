package simulations

import (
	"context"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/logger"
	"github.com/the-standard/smart-vault/internal/types"
	"github.com/the-standard/smart-vault/internal/utils"
)

// RateScale is the fixed point scale of router rates: out = in * rate / RateScale.
var RateScale = utils.Pow10(18)

type pair struct {
	in  common.Address
	out common.Address
}

// Router is a fixed-rate swap facility. It pays out of its own bank balance, so it must be funded with every
// token it is expected to deliver.
type Router struct {
	mu      sync.Mutex
	bank    *Bank
	address common.Address
	clock   func() time.Time
	rates   map[pair]sdkmath.Int

	singles []types.ExactInputSingleParams
	multi   []types.ExactInputParams
}

func NewRouter(bank *Bank, address common.Address, clock func() time.Time) *Router {
	return &Router{
		bank:    bank,
		address: address,
		clock:   clock,
		rates:   make(map[pair]sdkmath.Int),
	}
}

func (r *Router) Address() common.Address { return r.address }

// SetRate fixes the rate for tokenIn -> tokenOut.
func (r *Router) SetRate(tokenIn, tokenOut common.Address, rate sdkmath.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[pair{in: tokenIn, out: tokenOut}] = rate
}

// Quote returns the output of a single hop without executing it.
func (r *Router) Quote(tokenIn, tokenOut common.Address, amountIn sdkmath.Int) (sdkmath.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quoteLocked(tokenIn, tokenOut, amountIn)
}

func (r *Router) quoteLocked(tokenIn, tokenOut common.Address, amountIn sdkmath.Int) (sdkmath.Int, error) {
	rate, ok := r.rates[pair{in: tokenIn, out: tokenOut}]
	if !ok {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrSwapFailed, "no pool for %s -> %s", tokenIn.Hex(), tokenOut.Hex())
	}
	out, err := utils.MulDiv(amountIn, rate, RateScale)
	if err != nil {
		return sdkmath.ZeroInt(), errorsmod.Wrap(types.ErrSwapFailed, err.Error())
	}
	return out, nil
}

// ExactInputSingle swaps AmountIn of TokenIn held by Sender and pays TokenOut to Recipient.
func (r *Router) ExactInputSingle(_ context.Context, params types.ExactInputSingleParams) (sdkmath.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkDeadline(params.Deadline); err != nil {
		return sdkmath.ZeroInt(), err
	}
	out, err := r.quoteLocked(params.TokenIn, params.TokenOut, params.AmountIn)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := r.settle(params.TokenIn, params.TokenOut, params.Sender, params.Recipient, params.AmountIn, out, params.AmountOutMinimum); err != nil {
		return sdkmath.ZeroInt(), err
	}
	r.singles = append(r.singles, params)
	return out, nil
}

// ExactInput swaps along a multi-hop route.
func (r *Router) ExactInput(_ context.Context, params types.ExactInputParams) (sdkmath.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := params.Path.Validate(); err != nil {
		return sdkmath.ZeroInt(), errorsmod.Wrap(types.ErrSwapFailed, err.Error())
	}
	if err := r.checkDeadline(params.Deadline); err != nil {
		return sdkmath.ZeroInt(), err
	}
	out := params.AmountIn
	for i := 0; i+1 < len(params.Path.Tokens); i++ {
		var err error
		out, err = r.quoteLocked(params.Path.Tokens[i], params.Path.Tokens[i+1], out)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
	}
	if err := r.settle(params.Path.TokenIn(), params.Path.TokenOut(), params.Sender, params.Recipient, params.AmountIn, out, params.AmountOutMinimum); err != nil {
		return sdkmath.ZeroInt(), err
	}
	r.multi = append(r.multi, params)
	return out, nil
}

func (r *Router) settle(tokenIn, tokenOut, sender, recipient common.Address, amountIn, amountOut, minimum sdkmath.Int) error {
	if !minimum.IsNil() && amountOut.LT(minimum) {
		return errorsmod.Wrapf(types.ErrSwapFailed, "too little received: %s < %s", amountOut, minimum)
	}
	if err := r.bank.Transfer(tokenIn, sender, r.address, amountIn); err != nil {
		return errorsmod.Wrapf(types.ErrSwapFailed, "pulling input: %v", err)
	}
	if err := r.bank.Transfer(tokenOut, r.address, recipient, amountOut); err != nil {
		return errorsmod.Wrapf(types.ErrSwapFailed, "paying output: %v", err)
	}
	swapLogger := logger.GetForComponent("swap_simulator")
	swapLogger.Debug().
		Str("tokenIn", tokenIn.Hex()).
		Str("tokenOut", tokenOut.Hex()).
		Str("amountIn", amountIn.String()).
		Str("amountOut", amountOut.String()).
		Msg("Simulated swap settled")
	return nil
}

func (r *Router) checkDeadline(deadline time.Time) error {
	if !deadline.IsZero() && r.clock().After(deadline) {
		return errorsmod.Wrapf(types.ErrDeadlineExpired, "swap deadline %s passed", deadline.Format(time.RFC3339))
	}
	return nil
}

// LastSingle returns the most recent single hop swap.
func (r *Router) LastSingle() (types.ExactInputSingleParams, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.singles) == 0 {
		return types.ExactInputSingleParams{}, false
	}
	return r.singles[len(r.singles)-1], true
}

// Singles returns every settled single hop swap in order.
func (r *Router) Singles() []types.ExactInputSingleParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.ExactInputSingleParams(nil), r.singles...)
}

// SwapCount returns how many swaps settled, single and multi hop.
func (r *Router) SwapCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.singles) + len(r.multi)
}
