package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/devilmonastery/gatekeeper/internal/client"
	"github.com/devilmonastery/gatekeeper/internal/validation"
)

// FormatError renders err for the terminal, listing field problems one per line
func FormatError(err error) string {
	var fe validation.FieldErrors
	if errors.As(err, &fe) {
		return "invalid input:\n" + fieldLines(fe)
	}

	if apiErr, ok := client.AsAPIError(err); ok {
		switch apiErr.Kind() {
		case client.KindTransport:
			return fmt.Sprintf("cannot reach the API: %v", errors.Unwrap(apiErr))
		case client.KindValidation:
			return apiErr.Message + ":\n" + fieldLines(apiErr.FieldErrors())
		default:
			return apiErr.Message
		}
	}
	return err.Error()
}

func fieldLines(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "  %s: %s\n", name, fields[name])
	}
	return strings.TrimRight(b.String(), "\n")
}
