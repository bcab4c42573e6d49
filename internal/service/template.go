package service

import (
	"strings"

	"github.com/unclebandit/waleopard-backend/internal/model"
)

// RenderTemplate fills {placeholder} tokens in a campaign template. Empty
// values render as <unknown> rather than vanishing silently.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		if v == "" {
			v = "<unknown>"
		}
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// RenderForContact renders a campaign template against a contact record.
func RenderForContact(template string, c *model.Contact) string {
	return RenderTemplate(template, map[string]string{
		"display_name": c.DisplayName,
		"phone":        c.ChannelAddress,
		"email":        c.Email,
	})
}
