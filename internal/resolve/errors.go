package resolve

import (
	"errors"
	"fmt"
	"strings"

	dErrors "docket/pkg/domain-errors"
)

var (
	// ErrCycle marks a reference that reappeared on its own resolution chain.
	ErrCycle = errors.New("reference cycle")
	// ErrDepthExceeded marks output still holding references at the depth limit.
	ErrDepthExceeded = errors.New("resolution depth exceeded")
)

func cycleError(chain []string, key string) error {
	path := append(append([]string(nil), chain...), key)
	return dErrors.Wrap(ErrCycle, dErrors.CodeCircularReference,
		"circular reference: "+strings.Join(path, " -> "))
}

func depthError(chain []string, maxDepth int) error {
	return dErrors.Wrap(ErrDepthExceeded, dErrors.CodeCircularReference,
		fmt.Sprintf("depth exceeded: %s still contains references at max depth %d", strings.Join(chain, " -> "), maxDepth))
}

// degradable reports whether lenient mode may replace the failure with a
// warning. True cycles never degrade.
func degradable(err error) bool {
	if errors.Is(err, ErrCycle) {
		return false
	}
	if errors.Is(err, ErrDepthExceeded) {
		return true
	}
	code := dErrors.CodeOf(err)
	return code == dErrors.CodeUnknownReferenceKind || code == dErrors.CodeResolverFailure
}
