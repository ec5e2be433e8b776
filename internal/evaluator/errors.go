package evaluator

import "github.com/kubilitics/policy-engine/internal/apperr"

func notFound(err error) bool {
	return apperr.Is(err, apperr.CodePlatformNotFound)
}
