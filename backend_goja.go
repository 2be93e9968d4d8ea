//go:build goja && !v8

package worker

import "github.com/cryguy/jsworker/internal/gojaengine"

const backendName = "goja"

var newUnit UnitFactory = gojaengine.New
