package billing

import (
	"fmt"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

// FormatAmount renders a minor-unit amount with its currency symbol,
// e.g. 249900 USD -> "US$ 2,499.00". Unknown ISO codes fall back to a
// plain "CODE 2499.00" rendering rather than failing the request.
func FormatAmount(cents int64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%s %.2f", code, float64(cents)/100)
	}
	return moneyPrinter.Sprint(currency.Symbol(unit.Amount(float64(cents) / 100)))
}
