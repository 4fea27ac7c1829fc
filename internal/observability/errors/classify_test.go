package errors

import (
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/clipforge/clipforge/internal/errors"
)

type flakyNetworkError struct{}

func (flakyNetworkError) Error() string { return "connection reset" }

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Classify(nil))
	assert.Equal(t, "empty_selection", Classify(apperrors.EmptySelection("no items matched")))
	assert.Equal(t, "validation", Classify(apperrors.Validation("bad url")))

	wrapped := fmt.Errorf("fetch: %w", flakyNetworkError{})
	assert.Equal(t, "errors_flakynetworkerror", Classify(wrapped))

	assert.Equal(t, "errors_errorstring", Classify(goerrors.New("plain")))
}
