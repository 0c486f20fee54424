// internal/service/template_service.go
package service

import (
	"regexp"
	"strings"

	"github.com/unclebandit/leadreach-backend/internal/model"
)

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// RenderTemplate substitutes {placeholder} tokens from data. Tokens with no
// value render as the empty string; rendering never fails.
func RenderTemplate(template string, data map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(tok string) string {
		key := strings.Trim(tok, "{}")
		return data[key]
	})
}

// LeadTemplateData is the fixed token set campaign templates may reference.
func LeadTemplateData(l *model.Lead) map[string]string {
	return map[string]string{
		"first_name":        l.FirstName,
		"last_name":         l.LastName,
		"company":           l.Company,
		"location":          l.Location,
		"preferred_product": l.PreferredProduct,
	}
}
