package validation

import (
	"errors"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
)

var (
	ErrAppNameRequired = errors.New("app name is required")
	ErrAppNameLength   = errors.New("app name must be between 3 and 40 characters")
	ErrAppNameFormat   = errors.New("app name may only contain lowercase letters, digits and single dashes")
	ErrAppNameReserved = errors.New("app name is reserved")
)

const (
	MinAppNameLength = 3
	MaxAppNameLength = 40
)

// dnsLabel also rejects leading digits so names stay valid as hostnames.
var dnsLabel = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$`)

var reservedAppNames = map[string]bool{
	"www":   true,
	"api":   true,
	"admin": true,
	"mail":  true,
}

// ValidateAppName checks that name is usable as the instance subdomain.
func ValidateAppName(name string) error {
	if name == "" {
		return ErrAppNameRequired
	}
	if len(name) < MinAppNameLength || len(name) > MaxAppNameLength {
		return ErrAppNameLength
	}
	if !dnsLabel.MatchString(name) || strings.Contains(name, "--") {
		return ErrAppNameFormat
	}
	if reservedAppNames[name] {
		return ErrAppNameReserved
	}
	return nil
}

// SuggestAppName turns free text (e.g. a company name) into a candidate app name.
func SuggestAppName(text string) string {
	name := slug.Make(text)
	if len(name) > MaxAppNameLength {
		name = strings.TrimRight(name[:MaxAppNameLength], "-")
	}
	return name
}
