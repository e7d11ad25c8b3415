package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeWindows(t *testing.T) {
	got, err := NormalizeWindows([]int{30, 90, 30, 7})
	require.NoError(t, err)
	assert.Equal(t, []int{90, 30, 7}, got)

	_, err = NormalizeWindows([]int{30, 0})
	assert.True(t, errors.Is(err, ErrInvalidWindow))
	assert.True(t, errors.Is(ValidateWindow(-1), ErrInvalidWindow))
	assert.NoError(t, ValidateWindow(45))
}
