// Package export renders ledger snapshots as printable statements.
package export

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/budget-service/internal/models"
)

const stylesheet = `
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
td.amount { text-align: right; }
tr.income td.amount { color: #17803d; }
tr.expense td.amount { color: #b42318; }
@media print { body { margin: 0; } }
`

// Options controls statement rendering.
type Options struct {
	Title       string
	Currency    string
	GeneratedAt time.Time
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = "Transaction statement"
	}
	if o.Currency == "" {
		o.Currency = money.USD
	}
	if o.GeneratedAt.IsZero() {
		o.GeneratedAt = time.Now()
	}
	return o
}

var (
	maxMinorUnits = decimal.NewFromInt(math.MaxInt64)
	minMinorUnits = decimal.NewFromInt(math.MinInt64)
)

// FormatAmount renders amount in currency. Unknown currency codes, amounts
// finer than the currency's minor unit and amounts whose minor units overflow
// int64 fall back to the plain decimal followed by the code.
func FormatAmount(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.String() + " " + currency
	}
	fraction := int32(cur.Fraction)
	minor := amount.Shift(fraction)
	if !minor.IsInteger() {
		return amount.String() + " " + cur.Code
	}
	if minor.GreaterThan(maxMinorUnits) || minor.LessThan(minMinorUnits) {
		return amount.StringFixed(fraction) + " " + cur.Code
	}
	return money.New(minor.IntPart(), cur.Code).Display()
}

// WriteHTML writes a standalone HTML statement listing every transaction
// followed by the running balance.
func WriteHTML(w io.Writer, snap models.LedgerSnapshot, opts Options) error {
	opts = opts.withDefaults()

	doc := etree.NewDocument()
	doc.WriteSettings.CanonicalEndTags = true
	doc.CreateDirective("DOCTYPE html")

	html := doc.CreateElement("html")
	html.CreateAttr("lang", "en")
	head := html.CreateElement("head")
	head.CreateElement("meta").CreateAttr("charset", "utf-8")
	head.CreateElement("title").SetText(opts.Title)
	head.CreateElement("style").SetText(stylesheet)

	body := html.CreateElement("body")
	body.CreateElement("h1").SetText(opts.Title)
	body.CreateElement("p").SetText("Generated " + opts.GeneratedAt.UTC().Format(time.RFC1123))

	table := body.CreateElement("table")
	header := table.CreateElement("thead").CreateElement("tr")
	for _, col := range []string{"ID", "Type", "Amount", "Description", "Date"} {
		header.CreateElement("th").SetText(col)
	}

	tbody := table.CreateElement("tbody")
	if len(snap.Transactions) == 0 {
		td := tbody.CreateElement("tr").CreateElement("td")
		td.CreateAttr("colspan", "5")
		td.SetText("No transactions")
	}
	for _, tx := range snap.Transactions {
		row := tbody.CreateElement("tr")
		row.CreateAttr("class", tx.Type)
		row.CreateElement("td").SetText(strconv.FormatInt(tx.TID, 10))
		row.CreateElement("td").SetText(tx.Type)
		amount := row.CreateElement("td")
		amount.CreateAttr("class", "amount")
		amount.SetText(FormatAmount(tx.Amount, opts.Currency))
		row.CreateElement("td").SetText(tx.Description)
		row.CreateElement("td").SetText(tx.Date)
	}

	footer := table.CreateElement("tfoot").CreateElement("tr")
	label := footer.CreateElement("th")
	label.CreateAttr("colspan", "2")
	label.SetText("Balance")
	total := footer.CreateElement("td")
	total.CreateAttr("class", "amount")
	total.SetText(FormatAmount(snap.Balance, opts.Currency))
	footer.CreateElement("td").CreateAttr("colspan", "2")

	doc.Indent(2)
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write statement: %w", err)
	}
	return nil
}

// Markdown renders the statement as a markdown table.
func Markdown(snap models.LedgerSnapshot, opts Options) string {
	opts = opts.withDefaults()

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", opts.Title)
	fmt.Fprintf(&b, "_Generated %s_\n\n", opts.GeneratedAt.UTC().Format(time.RFC1123))
	if len(snap.Transactions) == 0 {
		b.WriteString("No transactions.\n\n")
	} else {
		b.WriteString("| ID | Type | Amount | Description | Date |\n")
		b.WriteString("|---:|---|---:|---|---|\n")
		for _, tx := range snap.Transactions {
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
				tx.TID, tx.Type, FormatAmount(tx.Amount, opts.Currency), escapeCell(tx.Description), tx.Date)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "**Balance:** %s\n", FormatAmount(snap.Balance, opts.Currency))
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
