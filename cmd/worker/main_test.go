package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snapgallery/backoffice/internal/app"
	_ "github.com/snapgallery/backoffice/internal/testing/guard"
)

func TestMainReturnsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	assert.True(t, app.InTestMode())
	assert.NotPanics(t, main)
}
