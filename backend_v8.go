//go:build v8

package worker

import "github.com/cryguy/jsworker/internal/v8engine"

const backendName = "v8"

var newUnit UnitFactory = v8engine.New
