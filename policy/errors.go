package policy

import (
	"errors"
	"fmt"
)

// Indicates a malformed include reference, or fragment text which could not be parsed in any supported format.
var ErrConfigParse = errors.New("config parse error")

// Indicates that a document or fragment did not match the expected structure for its level.
var ErrSchemaValidation = errors.New("schema validation failed")

// A document defined both non-empty top-level "runs" and "checks". Also matches ErrSchemaValidation.
var ErrDocumentShape = fmt.Errorf("%w: document may not define both runs and checks", ErrSchemaValidation)

// Two entities were registered under the same (case-insensitive) name, with differing content.
var ErrNamingConflict = errors.New("naming conflict")

// A named reference did not match any registered entity.
var ErrUnresolvedReference = errors.New("unresolved reference")

// Retrieving a remote fragment failed. A wrapped error may provide more context.
var ErrFetch = errors.New("fragment fetch failed")

// Remote fragment does not exist. Also matches ErrFetch.
var ErrNotFound = fmt.Errorf("%w: not found", ErrFetch)

// Remote fragment exists but access was denied. Also matches ErrFetch.
var ErrForbidden = fmt.Errorf("%w: forbidden", ErrFetch)

// Kind-specific rule logic failed while processing an item.
var ErrRuleProcess = errors.New("rule processing failed")
