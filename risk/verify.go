package risk

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/carry/broker"
	"github.com/rustyeddy/carry/market"
	"github.com/shopspring/decimal"
)

// AdmissionFloorPct is the maintenance ratio an account must hold before
// new positions are added. It is stricter than the protection threshold.
const AdmissionFloorPct = 110

const (
	CodeMarginInsufficient    = "MARGIN_INSUFFICIENT"
	CodeMaintenanceBelowFloor = "MAINTENANCE_BELOW_FLOOR"
)

var hundred = decimal.NewFromInt(100)

// Leg is one signed order of a basket.
type Leg struct {
	Instrument string
	Units      int64
}

// Basket is submitted leg by leg in slice order.
type Basket []Leg

func (b Basket) String() string {
	parts := make([]string, len(b))
	for i, l := range b {
		parts[i] = fmt.Sprintf("%s %+d", l.Instrument, l.Units)
	}
	return strings.Join(parts, ", ")
}

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	RequiredMargin decimal.Decimal
	// MaintenancePct is NAV / margin used * 100. Unset when nothing is in use.
	MaintenancePct decimal.Decimal
	HasMaintenance bool
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Reason joins the violation messages.
func (d Decision) Reason() string {
	msgs := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		msgs[i] = v.Msg
	}
	return strings.Join(msgs, "; ")
}

// RequiredMargin is the home-currency margin the broker holds for a new
// position: |units| * ask(BASE_HOME) * rate.
func RequiredMargin(instrument string, units int64, book *market.PriceBook, table LeverageTable, home string) (decimal.Decimal, error) {
	rate, err := table.Rate(instrument)
	if err != nil {
		return decimal.Zero, err
	}
	base, _, err := market.Split(instrument)
	if err != nil {
		return decimal.Zero, err
	}

	conv := decimal.NewFromInt(1)
	if base != home {
		conv, err = book.Ask(market.Pair(base, home))
		if err != nil {
			return decimal.Zero, fmt.Errorf("margin %s: %w", instrument, err)
		}
	}

	n := units
	if n < 0 {
		n = -n
	}
	return decimal.NewFromInt(n).Mul(conv).Mul(rate), nil
}

// MaintenanceRatio returns NAV / margin used * 100. ok is false when no
// margin is in use.
func MaintenanceRatio(acct broker.AccountSnapshot) (pct decimal.Decimal, ok bool) {
	if acct.MarginUsed.IsZero() {
		return decimal.Zero, false
	}
	return acct.NAV.Div(acct.MarginUsed).Mul(hundred), true
}

type Verifier struct {
	Table LeverageTable
	Home  string
	Floor decimal.Decimal
}

func NewVerifier(table LeverageTable, home string) *Verifier {
	return &Verifier{
		Table: table,
		Home:  home,
		Floor: decimal.NewFromInt(AdmissionFloorPct),
	}
}

// VerifyBasket decides whether the account can take on the whole basket.
// Equality passes both checks. An error means a price or leverage lookup
// failed, not that the basket was refused.
func (v *Verifier) VerifyBasket(basket Basket, book *market.PriceBook, acct broker.AccountSnapshot) (Decision, error) {
	d := Decision{Allowed: true}

	total := decimal.Zero
	for _, leg := range basket {
		m, err := RequiredMargin(leg.Instrument, leg.Units, book, v.Table, v.Home)
		if err != nil {
			return Decision{}, err
		}
		total = total.Add(m)
	}
	d.RequiredMargin = total

	if acct.MarginAvailable.LessThan(total) {
		d.add(CodeMarginInsufficient,
			fmt.Sprintf("margin available %s < required %s",
				acct.MarginAvailable.StringFixed(2), total.StringFixed(2)))
	}

	if pct, ok := MaintenanceRatio(acct); ok {
		d.MaintenancePct = pct
		d.HasMaintenance = true
		if pct.LessThan(v.Floor) {
			d.add(CodeMaintenanceBelowFloor,
				fmt.Sprintf("maintenance ratio %s%% below floor %s%%",
					pct.StringFixed(2), v.Floor.String()))
		}
	}

	return d, nil
}
