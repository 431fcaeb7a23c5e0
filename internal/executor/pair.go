package executor

import (
	"fmt"
	"math/big"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/crypto"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
)

type legSide int

const (
	yesLeg legSide = iota
	noLeg
)

// legResult is the normalized outcome of one order submission.
type legResult struct {
	orderID string
	price   float64
	size    float64
	filled  float64
	resting bool
	err     error
}

// restingLeg is a submitted order still open on the book.
type restingLeg struct {
	side    legSide
	orderID string
	price   float64
	size    float64
	filled  float64 // immediate partial at submit time
}

// pairState guards the mutable fill state of one pair execution. All
// resolution paths (expiry timer, cutoff, close) funnel through it, and
// takeUnresolved hands out each resting leg exactly once.
type pairState struct {
	mu         sync.Mutex
	exec       domain.PairExecution
	unresolved []restingLeg
	done       bool
}

func newPairState(w domain.MarketWindow, opp domain.Opportunity, yesPrice, noPrice float64, reservationID string) *pairState {
	return &pairState{
		exec: domain.PairExecution{
			ID:            uuid.NewString(),
			WindowID:      w.ID,
			ConditionID:   w.ConditionID,
			Symbol:        w.Symbol,
			YesAssetID:    w.YesAssetID,
			NoAssetID:     w.NoAssetID,
			YesPrice:      yesPrice,
			NoPrice:       noPrice,
			Size:          opp.Size,
			Combined:      opp.Combined,
			ProfitRatio:   opp.ProfitRatio,
			ReservationID: reservationID,
			NegRisk:       w.NegRisk,
			Status:        domain.PairStatusPending,
			WindowCloseAt: w.CloseTime,
			CreatedAt:     time.Now().UTC(),
		},
	}
}

// applySubmit records a leg's submission outcome.
func (p *pairState) applySubmit(side legSide, res legResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if side == yesLeg {
		p.exec.YesOrderID = res.orderID
		p.exec.YesFilled = res.filled
	} else {
		p.exec.NoOrderID = res.orderID
		p.exec.NoFilled = res.filled
	}
	if res.resting {
		p.unresolved = append(p.unresolved, restingLeg{
			side:    side,
			orderID: res.orderID,
			price:   res.price,
			size:    res.size,
			filled:  res.filled,
		})
	}
}

// applyFinalFill overwrites a leg's fill with its settled value.
func (p *pairState) applyFinalFill(side legSide, filled float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if side == yesLeg {
		p.exec.YesFilled = filled
	} else {
		p.exec.NoFilled = filled
	}
}

// takeUnresolved removes and returns the resting legs. The second caller
// gets nothing, which makes resolution idempotent.
func (p *pairState) takeUnresolved() []restingLeg {
	p.mu.Lock()
	defer p.mu.Unlock()
	legs := p.unresolved
	p.unresolved = nil
	return legs
}

// resolved reports whether no resting legs remain.
func (p *pairState) resolved() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.unresolved) == 0
}

// finalize stamps the terminal status from the fill state.
func (p *pairState) finalize() domain.PairExecution {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.done {
		p.done = true
		switch {
		case p.exec.YesFilled > 0 && p.exec.NoFilled > 0:
			p.exec.Status = domain.PairStatusHedged
		case p.exec.YesFilled > 0 || p.exec.NoFilled > 0:
			p.exec.Status = domain.PairStatusPartial
		default:
			p.exec.Status = domain.PairStatusFailed
		}
	}
	return p.exec
}

// snapshot returns a copy of the current pair record.
func (p *pairState) snapshot() domain.PairExecution {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exec
}

// buildOrder constructs and signs a buy order for one leg. Maker amount is
// the USDC notional, taker amount the share count, both in 1e6 base units
// per the CLOB contract.
func (e *Executor) buildOrder(w domain.MarketWindow, assetID string, price, size float64) (domain.Order, error) {
	priceTicks := int64(price*1e6 + 0.5)
	sizeUnits := int64(size*1e6 + 0.5)

	maker := new(big.Int).Div(
		new(big.Int).Mul(big.NewInt(priceTicks), big.NewInt(sizeUnits)),
		big.NewInt(1e6),
	)
	taker := big.NewInt(sizeUnits)

	var expiration int64
	if e.cfg.OrderType == domain.OrderTypeGTD {
		expiration = time.Now().Add(e.cfg.GtdExpiration).Unix()
	}

	salt := strconv.FormatInt(rand.Int63n(1<<62), 10)
	payload := crypto.OrderPayload{
		Salt:          salt,
		Maker:         e.cfg.Wallet,
		Signer:        e.cfg.Wallet,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       assetID,
		MakerAmount:   maker.String(),
		TakerAmount:   taker.String(),
		Expiration:    strconv.FormatInt(expiration, 10),
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          0, // BUY
		SignatureType: e.cfg.SignatureType,
	}

	sig, err := e.signer.SignOrder(payload)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	return domain.Order{
		MarketID:      w.ID,
		TokenID:       assetID,
		Wallet:        e.cfg.Wallet,
		Side:          domain.OrderSideBuy,
		Type:          e.cfg.OrderType,
		PriceTicks:    priceTicks,
		SizeUnits:     sizeUnits,
		MakerAmount:   maker,
		TakerAmount:   taker,
		Expiration:    expiration,
		Status:        domain.OrderStatusPending,
		Salt:          salt,
		SignatureType: e.cfg.SignatureType,
		Signature:     sig,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
