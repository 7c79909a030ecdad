// Package guard switches the binaries into test mode when imported from a
// test, so nothing under test dials postgres or redis through main.
package guard

import "github.com/odyssey-erp/odyssey-fulfillment/internal/app"

func init() {
	app.ForceTestMode()
}
