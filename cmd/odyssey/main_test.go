package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fulfillment/cmd/odyssey/cli"
	_ "github.com/odyssey-erp/odyssey-fulfillment/internal/testing/guard"
)

func TestRunSkipsInTestMode(t *testing.T) {
	require.Equal(t, cli.ExitOK, run())
}
