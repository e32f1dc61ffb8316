package translation

import "errors"

// ErrEmptyTranslation is reported when the service returns no text.
var ErrEmptyTranslation = errors.New("translation returned no text")
