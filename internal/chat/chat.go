// Package chat composes the plain-text order and inquiry messages handed off
// to the WhatsApp click-to-chat sink, and the links that carry them.
package chat

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

const (
	DefaultBaseURL   = "https://api.whatsapp.com/send"
	DefaultRecipient = "5491140461603"
)

var printer = message.NewPrinter(language.MustParse("es-AR"))

// FormatMoney renders an amount with storefront (es-AR) grouping and at most
// two fraction digits, without the currency sign. Digits come from the
// decimal itself, so large amounts keep their cents.
func FormatMoney(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}

	whole := d.Truncate(0)
	out := sign + groupThousands(whole)
	frac := strings.TrimRight(d.Sub(whole).StringFixed(2)[2:], "0")
	if frac != "" {
		out += "," + frac
	}
	return out
}

func groupThousands(whole decimal.Decimal) string {
	if n := whole.BigInt(); n.IsInt64() {
		return printer.Sprintf("%d", n.Int64())
	}
	digits := whole.String()
	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func Units(n int) string {
	if n == 1 {
		return "1 unidad"
	}
	return fmt.Sprintf("%d unidades", n)
}

// OrderMessage builds the numbered order summary. Callers reject empty carts
// before getting here.
func OrderMessage(items []domain.LineItem, total decimal.Decimal) string {
	var b strings.Builder
	b.WriteString("*PEDIDO MAYORISTA*\n\n")
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item.Name)
		fmt.Fprintf(&b, "   Cantidad: %s\n", Units(item.Quantity))
		fmt.Fprintf(&b, "   Precio unitario: $%s\n", FormatMoney(item.UnitPrice))
		fmt.Fprintf(&b, "   Subtotal: $%s\n\n", FormatMoney(item.Subtotal()))
	}
	fmt.Fprintf(&b, "*TOTAL: $%s*\n\n", FormatMoney(total))
	b.WriteString("Aguardo confirmación del pedido. Gracias!")
	return b.String()
}

func InquiryMessage(productName string, quantity int, total decimal.Decimal) string {
	return fmt.Sprintf("Hola! Consulta sobre: %s\nCantidad: %s\nPrecio: $%s",
		productName, Units(quantity), FormatMoney(total))
}

// componentUnescape undoes the QueryEscape output that encodeURIComponent
// leaves literal: spaces as %20 and the marks ! * ' ( ).
var componentUnescape = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%2A", "*",
	"%27", "'",
	"%28", "(",
	"%29", ")",
)

// Encode percent-encodes text exactly as browsers' encodeURIComponent does,
// so the link opens with the message pre-filled.
func Encode(text string) string {
	return componentUnescape.Replace(url.QueryEscape(text))
}

// Link addresses a click-to-chat URL to recipient with text pre-filled.
func Link(baseURL, recipient, text string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if recipient == "" {
		recipient = DefaultRecipient
	}
	return fmt.Sprintf("%s?phone=%s&text=%s", baseURL, url.QueryEscape(recipient), Encode(text))
}

// Sender carries the fixed recipient shared by the cart and the price calculator.
type Sender struct {
	BaseURL   string
	Recipient string
}

func (s Sender) Link(text string) string {
	return Link(s.BaseURL, s.Recipient, text)
}
