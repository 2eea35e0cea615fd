package errors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/Skryldev/imagefetch/errors"
)

func TestCategorize(t *testing.T) {
	base := errors.New("connection reset")

	err := apperrors.Categorize(apperrors.CategoryFetch, "fetch", base)
	assert.Equal(t, apperrors.CategoryFetch, err.Category)
	assert.ErrorIs(t, err, base)

	// Already in the category: returned as-is.
	again := apperrors.Categorize(apperrors.CategoryFetch, "outer", err)
	assert.Same(t, err, again)

	// Different category: restamped, original still reachable.
	transient := apperrors.Transient("http.do", base)
	restamped := apperrors.Categorize(apperrors.CategoryFetch, "fetch", transient)
	assert.Equal(t, apperrors.CategoryFetch, apperrors.CategoryOf(restamped))
	assert.True(t, apperrors.IsRetryable(transient))
	assert.ErrorIs(t, restamped, base)

	assert.Nil(t, apperrors.Categorize(apperrors.CategoryFetch, "fetch", nil))
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, apperrors.Category(""), apperrors.CategoryOf(errors.New("plain")))

	wrapped := fmt.Errorf("context: %w", apperrors.New(apperrors.CategoryDecode, "decode", apperrors.ErrUnsupportedFormat))
	assert.Equal(t, apperrors.CategoryDecode, apperrors.CategoryOf(wrapped))
	assert.True(t, apperrors.IsCategory(wrapped, apperrors.CategoryDecode))
	assert.ErrorIs(t, wrapped, apperrors.ErrUnsupportedFormat)
}

func TestProcessingError_Error(t *testing.T) {
	err := apperrors.New(apperrors.CategoryCacheWrite, "disk.write", errors.New("disk full"))
	assert.Equal(t, "[cache_write] disk.write: disk full", err.Error())
	assert.Nil(t, apperrors.Wrap(apperrors.CategoryStorage, "op", nil))
}
