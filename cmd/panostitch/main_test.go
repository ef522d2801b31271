package main

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRect(t *testing.T) {
	r, err := parseRect("10, 20,30,40")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(10, 20, 30, 40), rect(r))

	_, err = parseRect("1,2,3")
	assert.Error(t, err)
	_, err = parseRect("1,2,3,x")
	assert.Error(t, err)
}

func TestPointArgs(t *testing.T) {
	cp, err := pointArgs([]string{"1", "2.5", "3", "4"})
	require.NoError(t, err)
	assert.Equal(t, 2.5, cp.Y1)
	assert.True(t, cp.ColorBalance)

	_, err = pointArgs([]string{"1", "2"})
	assert.Error(t, err)
	_, err = pointArgs([]string{"1", "2", "3", "four"})
	assert.Error(t, err)
}
