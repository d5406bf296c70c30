// Package format renders human-readable invoice numbers.
package format

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)
	seqRe    = regexp.MustCompile(`\{SEQ\d*\}`)
)

const DefaultInvoiceNumberTemplate = "INV-{YYYY}{MM}-{SEQ6}"

var ErrInvalidTemplate = errors.New("invalid_invoice_number_template")

// FormatInvoiceNumber renders template for an invoice confirmed at issuedAt
// carrying sequence seq. It has no side effects.
func FormatInvoiceNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTemplate)
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	issuedAt = issuedAt.UTC()
	out := template
	out = strings.ReplaceAll(out, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", issuedAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", issuedAt.Format("02"))
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("%w: unresolved token in %s", ErrInvalidTemplate, out)
	}
	return out, nil
}

// ValidateTemplate checks that template renders and carries a sequence token,
// otherwise two invoices confirmed on the same day would share a number.
func ValidateTemplate(template string) error {
	if !seqRe.MatchString(template) {
		return fmt.Errorf("%w: missing {SEQ} token", ErrInvalidTemplate)
	}
	_, err := FormatInvoiceNumber(template, time.Unix(0, 0), 1)
	return err
}
