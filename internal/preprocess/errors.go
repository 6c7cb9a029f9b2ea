package preprocess

import (
	"fmt"

	apperrors "salesforecast/internal/errors"
)

func unsupported(what string, v fmt.Stringer) error {
	return apperrors.InvalidParameter("unsupported %s %q", what, v.String())
}
