package webapi

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cryguy/jsworker/internal/clone"
	"github.com/cryguy/jsworker/internal/core"
	"github.com/cryguy/jsworker/internal/eventloop"
)

// globalsJS defines small global APIs on top of the clone codec and the
// Go-backed helpers registered by SetupGlobals.
const globalsJS = `
(function() {
	globalThis.structuredClone = function(value) {
		if (arguments.length === 0) throw new TypeError("structuredClone requires 1 argument");
		return JSON.parse(JSON.stringify(__clonePayload(value)));
	};

	globalThis.queueMicrotask = function(fn) {
		if (typeof fn !== 'function') throw new TypeError("queueMicrotask requires a function");
		Promise.resolve().then(function() {
			try {
				fn();
			} catch (e) {
				if (typeof globalThis.__uncaught !== 'function') throw e;
				globalThis.__uncaught(e, 'microtask');
			}
		});
	};

	var origin = __perfNow();
	globalThis.performance = {
		timeOrigin: Date.now() - origin,
		now: function() { return __perfNow() - origin; }
	};

	globalThis.btoa = function(data) {
		if (arguments.length < 1) throw new TypeError("btoa requires 1 argument");
		var s = String(data);
		for (var i = 0; i < s.length; i++) {
			if (s.charCodeAt(i) > 255) throw new Error("btoa: string contains characters outside of the Latin1 range");
		}
		return __b64encode(s);
	};
	globalThis.atob = function(data) {
		if (arguments.length < 1) throw new TypeError("atob requires 1 argument");
		return __b64decode(String(data));
	};
})();
`

var processStart = time.Now()

// SetupClone installs __clonePayload. Every other setup function that
// renders or copies values depends on it, so it runs first.
func SetupClone(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.Eval(clone.ScriptJS); err != nil {
		return fmt.Errorf("evaluating clone codec: %w", err)
	}
	return nil
}

// SetupGlobals registers structuredClone, queueMicrotask, performance.now,
// atob and btoa.
func SetupGlobals(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.RegisterFunc("__perfNow", func() float64 {
		return float64(time.Since(processStart).Microseconds()) / 1000
	}); err != nil {
		return err
	}

	// Strings cross as UTF-8; each JS char code 0-255 is one rune here.
	if err := rt.RegisterFunc("__b64encode", func(s string) string {
		b := make([]byte, 0, len(s))
		for _, r := range s {
			b = append(b, byte(r))
		}
		return base64.StdEncoding.EncodeToString(b)
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__b64decode", func(s string) (string, error) {
		s = strings.Map(func(r rune) rune {
			switch r {
			case ' ', '\t', '\n', '\f', '\r':
				return -1
			}
			return r
		}, s)
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		}
		if err != nil {
			return "", fmt.Errorf("invalid base64 string")
		}
		var sb strings.Builder
		for _, c := range b {
			sb.WriteRune(rune(c))
		}
		return sb.String(), nil
	}); err != nil {
		return err
	}

	if err := rt.Eval(globalsJS); err != nil {
		return fmt.Errorf("evaluating globals: %w", err)
	}
	return nil
}
