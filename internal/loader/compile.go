package loader

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"

	"github.com/cryguy/jsworker/internal/core"
)

// Compile validates src and lowers it to plain script form. TypeScript
// sources (".ts") have their types stripped. Syntax errors come back as a
// ScriptLoad error carrying name "SyntaxError" and the first location.
func Compile(name, src string) (*core.Script, error) {
	loader := esbuild.LoaderJS
	if strings.HasSuffix(name, ".ts") {
		loader = esbuild.LoaderTS
	}

	result := esbuild.Transform(src, esbuild.TransformOptions{
		Loader:     loader,
		Target:     esbuild.ES2020,
		Sourcefile: name,
		Charset:    esbuild.CharsetUTF8,
	})
	if len(result.Errors) > 0 {
		return nil, syntaxError(name, result.Errors)
	}
	return &core.Script{Name: name, Source: string(result.Code)}, nil
}

// Bundle follows the import graph of the script at entry (a path below
// dir) and produces one self-contained IIFE script.
func Bundle(dir, entry string) (*core.Script, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, core.ScriptLoad(entry, err)
	}

	result := esbuild.Build(esbuild.BuildOptions{
		EntryPoints:   []string{filepath.Join(abs, filepath.FromSlash(entry))},
		AbsWorkingDir: abs,
		Bundle:        true,
		Format:        esbuild.FormatIIFE,
		Write:         false,
		Platform:      esbuild.PlatformNeutral,
		Target:        esbuild.ES2020,
		TreeShaking:   esbuild.TreeShakingFalse,
		Charset:       esbuild.CharsetUTF8,
	})
	if len(result.Errors) > 0 {
		return nil, syntaxError(entry, result.Errors)
	}
	if len(result.OutputFiles) == 0 {
		return nil, core.ScriptLoad(entry, errors.New("bundling produced no output"))
	}
	return &core.Script{Name: entry, Source: string(result.OutputFiles[0].Contents)}, nil
}

// needsBundling checks if a script contains import statements. Plain
// worker scripts skip the bundler.
func needsBundling(source string) bool {
	return strings.Contains(source, "import ") ||
		strings.Contains(source, "import{") ||
		strings.Contains(source, "export ")
}

func syntaxError(name string, msgs []esbuild.Message) *core.Error {
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		texts = append(texts, m.Text)
	}

	e := core.ScriptLoad(name, nil)
	e.Name = "SyntaxError"
	e.Detail = strings.Join(texts, "; ")
	if loc := msgs[0].Location; loc != nil {
		if loc.File != "" {
			e.Filename = path.Clean(filepath.ToSlash(loc.File))
		}
		e.Line = loc.Line
		e.Column = loc.Column
	}
	return e
}

// notFound reports a designator that resolved to nothing.
func notFound(designator string, cause error) *core.Error {
	e := core.ScriptLoad(designator, cause)
	e.Name = "Error"
	e.Detail = fmt.Sprintf("cannot find script %q", designator)
	return e
}
