package service

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/ledger"
	"github.com/hexastock/internal/models"
	"github.com/hexastock/internal/types"
)

// symbolPattern accepts exchange tickers such as AAPL, BRK.B, ^GSPC and EURUSD=X
var symbolPattern = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-=^]{0,19}$`)

// validateSymbol normalizes symbol and rejects anything that is not a ticker
func validateSymbol(symbol string) (string, error) {
	normalized := ledger.NormalizeSymbol(symbol)
	if !symbolPattern.MatchString(normalized) {
		return "", apperrors.NewInvalidSymbolError(symbol)
	}
	return normalized, nil
}

func validateTrade(quantity, price decimal.Decimal) error {
	if !quantity.IsPositive() {
		return apperrors.NewInvalidQuantityError(quantity.String())
	}
	if price.IsNegative() {
		return apperrors.NewInvalidPriceError(price.String())
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.NewInvalidAmountError(amount.String())
	}
	return nil
}

// applyTransaction applies one journal entry to p. Every check runs before
// the first write, so p is unchanged when an error is returned. For a SELL
// the realized gain is written back to t.
func applyTransaction(p *models.Portfolio, t *models.Transaction) error {
	if p.Holdings == nil {
		p.Holdings = make(map[string]*ledger.Holding)
	}

	switch t.Type {
	case types.TransactionBuy:
		return applyBuy(p, t)
	case types.TransactionSell:
		return applySell(p, t)
	case types.TransactionDeposit:
		return applyDeposit(p, t)
	case types.TransactionWithdrawal:
		return applyWithdrawal(p, t)
	default:
		return apperrors.NewInvalidParameterError("type", fmt.Sprintf("unknown transaction type %q", t.Type))
	}
}

// applyBuy opens a new lot identified by the BUY's transaction ID
func applyBuy(p *models.Portfolio, t *models.Transaction) error {
	cost := t.Amount()
	if cost.GreaterThan(p.Cash) {
		return apperrors.NewInsufficientFundsError(cost.String(), p.Cash.String())
	}

	lot, err := ledger.NewLot(t.Quantity, t.UnitPrice, t.Timestamp)
	if err != nil {
		return ledgerError(t.Symbol, err)
	}
	lot.ID = t.ID

	h, ok := p.Holdings[t.Symbol]
	if !ok {
		h = ledger.NewHolding(t.Symbol)
	}
	if err := h.AddLot(lot); err != nil {
		return ledgerError(t.Symbol, err)
	}

	p.Holdings[t.Symbol] = h
	p.Cash = p.Cash.Sub(cost)
	t.RealizedGain = decimal.Zero
	return nil
}

func applySell(p *models.Portfolio, t *models.Transaction) error {
	h, ok := p.Holdings[t.Symbol]
	if !ok || h.IsEmpty() {
		return apperrors.NewSymbolNotHeldError(t.Symbol)
	}

	held := h.TotalQuantity()
	if t.Quantity.GreaterThan(held) {
		return apperrors.NewInsufficientHoldingsError(t.Symbol, t.Quantity.String(), held.String())
	}

	consumed, err := h.ConsumeFIFO(t.Quantity)
	if err != nil {
		return ledgerError(t.Symbol, err)
	}

	proceeds := t.Amount()
	t.RealizedGain = proceeds.Sub(consumed.Cost)
	p.Cash = p.Cash.Add(proceeds)
	if h.IsEmpty() {
		delete(p.Holdings, t.Symbol)
	}
	return nil
}

func applyDeposit(p *models.Portfolio, t *models.Transaction) error {
	amount := t.Amount()
	if err := validateAmount(amount); err != nil {
		return err
	}
	p.Cash = p.Cash.Add(amount)
	t.RealizedGain = decimal.Zero
	return nil
}

func applyWithdrawal(p *models.Portfolio, t *models.Transaction) error {
	amount := t.Amount()
	if err := validateAmount(amount); err != nil {
		return err
	}
	if amount.GreaterThan(p.Cash) {
		return apperrors.NewInsufficientFundsError(amount.String(), p.Cash.String())
	}
	p.Cash = p.Cash.Sub(amount)
	t.RealizedGain = decimal.Zero
	return nil
}

// ledgerError maps lot ledger failures onto the engine's error kinds
func ledgerError(symbol string, err error) error {
	switch {
	case errors.Is(err, ledger.ErrNonPositiveQuantity):
		return apperrors.NewInvalidQuantityError(err.Error())
	case errors.Is(err, ledger.ErrNegativeUnitCost):
		return apperrors.NewInvalidPriceError(err.Error())
	case errors.Is(err, ledger.ErrInsufficientQuantity):
		return apperrors.NewInsufficientHoldingsError(symbol, "", "")
	default:
		return apperrors.NewInternalError("lot ledger failure", err)
	}
}
