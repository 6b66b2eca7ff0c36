package ioutil

import (
	"fmt"
	"io"
)

// ReadLimited reads at most limit bytes of r for use in error messages.
// Longer content is cut and marked with "...", and a failed read is
// described in place of the content.
func ReadLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	if int64(len(body)) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
