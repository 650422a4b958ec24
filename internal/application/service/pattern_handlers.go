package service

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/garyjia/invoice-memory/internal/domain/entity"
)

var (
	currencyTokenRe  = regexp.MustCompile(`(?i)\b(EUR|USD|GBP|CHF)\b`)
	skontoTriggerRe  = regexp.MustCompile(`(?i)(\d+)%\s*skonto.*?(\d+)\s*days`)
	vatIncludedHints = []string{"incl", "inkl", "included", "already included"}
)

// handlerOutcome is what a successful vendor pattern handler reports back
type handlerOutcome struct {
	corrections []string
	reasoning   string
}

// patternHandler applies one vendor pattern to the normalized fields.
// It returns false when the pattern does not apply; that is not an error.
type patternHandler func(inv *entity.Invoice, pattern *entity.VendorPattern, fields *entity.InvoiceFields) (handlerOutcome, bool)

func defaultPatternHandlers() map[entity.PatternKind]patternHandler {
	return map[entity.PatternKind]patternHandler{
		entity.KindServiceDateMapping: applyServiceDateMapping,
		entity.KindVatIncluded:        applyVatIncluded,
		entity.KindCurrencyFromText:   applyCurrencyFromText,
		entity.KindDiscountTerms:      applyDiscountTerms,
		entity.KindSkuMapping:         applySkuMapping,
	}
}

func applyServiceDateMapping(inv *entity.Invoice, pattern *entity.VendorPattern, fields *entity.InvoiceFields) (handlerOutcome, bool) {
	mapping, ok := pattern.Value.(entity.ServiceDateMapping)
	if !ok || fields.ServiceDate != "" || mapping.Source == "" {
		return handlerOutcome{}, false
	}

	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(mapping.Source) + `:\s*(\d{1,2}\.\d{1,2}\.\d{4})`)
	if err != nil {
		return handlerOutcome{}, false
	}
	match := re.FindStringSubmatch(inv.RawText)
	if match == nil {
		return handlerOutcome{}, false
	}

	fields.ServiceDate = entity.DottedDateToISO(match[1])
	return handlerOutcome{
		corrections: []string{fmt.Sprintf("Set serviceDate from %s: %s", mapping.Source, fields.ServiceDate)},
		reasoning: fmt.Sprintf("Applied learned pattern: %s from %q (confidence: %.2f)",
			pattern.Key, mapping.Source, pattern.Confidence),
	}, true
}

// applyVatIncluded triggers on the fixed indicator set regardless of the stored indicators
func applyVatIncluded(inv *entity.Invoice, pattern *entity.VendorPattern, fields *entity.InvoiceFields) (handlerOutcome, bool) {
	if _, ok := pattern.Value.(entity.VatIncluded); !ok {
		return handlerOutcome{}, false
	}
	if !containsAnyFold(inv.RawText, vatIncludedHints) {
		return handlerOutcome{}, false
	}

	net := fields.GrossTotal / (1 + fields.TaxRate)
	tax := fields.GrossTotal - net
	fields.NetTotal = roundCents(net)
	fields.TaxTotal = roundCents(tax)

	return handlerOutcome{
		corrections: []string{fmt.Sprintf("Recalculated VAT (included in total): net=%s, tax=%s",
			formatAmount(fields.NetTotal), formatAmount(fields.TaxTotal))},
		reasoning: fmt.Sprintf("Applied learned pattern: VAT already included in totals (confidence: %.2f)", pattern.Confidence),
	}, true
}

func applyCurrencyFromText(inv *entity.Invoice, pattern *entity.VendorPattern, fields *entity.InvoiceFields) (handlerOutcome, bool) {
	stored, ok := pattern.Value.(entity.CurrencyFromText)
	if !ok || fields.Currency != "" {
		return handlerOutcome{}, false
	}

	match := currencyTokenRe.FindStringSubmatch(inv.RawText)
	if match == nil {
		return handlerOutcome{}, false
	}

	fields.Currency = strings.ToUpper(match[1])
	return handlerOutcome{
		corrections: []string{fmt.Sprintf("Recovered currency from text: %s", fields.Currency)},
		reasoning:   fmt.Sprintf("Recovered currency from text: %s (confidence: %.2f)", stored.Currency, pattern.Confidence),
	}, true
}

// applyDiscountTerms is gated by the skonto structure in raw text but writes the
// vendor's stored terms, not the matched text
func applyDiscountTerms(inv *entity.Invoice, pattern *entity.VendorPattern, fields *entity.InvoiceFields) (handlerOutcome, bool) {
	terms, ok := pattern.Value.(entity.DiscountTerms)
	if !ok || !skontoTriggerRe.MatchString(inv.RawText) {
		return handlerOutcome{}, false
	}

	fields.DiscountTerms = terms.Terms
	return handlerOutcome{
		corrections: []string{fmt.Sprintf("Added discount terms: %s", terms.Terms)},
		reasoning:   fmt.Sprintf("Detected known discount pattern: %s (confidence: %.2f)", terms.Terms, pattern.Confidence),
	}, true
}

func applySkuMapping(inv *entity.Invoice, pattern *entity.VendorPattern, fields *entity.InvoiceFields) (handlerOutcome, bool) {
	mapping, ok := pattern.Value.(entity.SkuMapping)
	if !ok || mapping.Description == "" || mapping.SKU == "" {
		return handlerOutcome{}, false
	}

	stored := strings.ToLower(mapping.Description)
	var corrections []string
	for i := range fields.LineItems {
		item := &fields.LineItems[i]
		if item.SKU != "" || item.Description == "" {
			continue
		}
		desc := strings.ToLower(item.Description)
		if strings.Contains(desc, stored) || strings.Contains(stored, desc) {
			item.SKU = mapping.SKU
			corrections = append(corrections, fmt.Sprintf("Mapped %q to SKU %s", item.Description, mapping.SKU))
		}
	}

	if len(corrections) == 0 {
		return handlerOutcome{}, false
	}
	return handlerOutcome{
		corrections: corrections,
		reasoning:   fmt.Sprintf("Mapped description to SKU: %s (confidence: %.2f)", mapping.SKU, pattern.Confidence),
	}, true
}

func containsAnyFold(text string, needles []string) bool {
	lower := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// roundCents rounds half-up to two decimals
func roundCents(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
