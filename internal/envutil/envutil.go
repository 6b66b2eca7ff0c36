package envutil

import (
	"os"
	"strings"
)

// IsDev reports whether B2C_FRONT_ENV selects development mode, where
// cookies are sent without the Secure flag
func IsDev() bool {
	env := strings.ToLower(os.Getenv("B2C_FRONT_ENV"))
	return env == "development" || env == "dev"
}
