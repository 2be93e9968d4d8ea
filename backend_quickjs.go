//go:build !v8 && !goja

package worker

import "github.com/cryguy/jsworker/internal/quickjs"

const backendName = "quickjs"

var newUnit UnitFactory = quickjs.New
