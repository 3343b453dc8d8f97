package shared

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID produces an identifier of the form "<prefix>_<8 hex>". The short
// uuid suffix keeps ids readable in logs and advisor prompts while staying
// unique for the lifetime of a single engine.
func NewID(prefix string) string {
	return fmt.Sprintf("%s_%.8s", prefix, uuid.NewString())
}
