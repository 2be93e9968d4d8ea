package worker

import (
	"github.com/cryguy/jsworker/internal/core"
	"github.com/cryguy/jsworker/internal/engine"
	"github.com/cryguy/jsworker/internal/host"
	"github.com/cryguy/jsworker/internal/lifecycle"
	"github.com/cryguy/jsworker/internal/loader"
	"github.com/cryguy/jsworker/internal/logging"
	"github.com/cryguy/jsworker/internal/webapi"
)

// Type aliases re-exporting the internal packages so callers can use
// worker.Engine, worker.Error, etc. without importing them directly.

type Engine = engine.Engine
type Worker = engine.Handle
type Option = engine.Option
type Dispatcher = engine.Dispatcher
type DispatcherFunc = engine.DispatcherFunc
type Loop = engine.Loop
type MessageEvent = engine.MessageEvent
type ErrorEvent = engine.ErrorEvent

type Host = host.Host
type HostOption = host.Option

type Config = core.EngineConfig
type Script = core.Script
type ScriptLoader = core.ScriptLoader
type ScriptLoaderFunc = core.ScriptLoaderFunc
type MapLoader = loader.MapLoader
type FSLoader = loader.FSLoader
type JSRuntime = core.JSRuntime
type Unit = core.Unit
type UnitFactory = core.UnitFactory
type SetupFunc = webapi.SetupFunc

type Error = core.Error
type ErrorKind = core.Kind
type Exception = core.Exception

type State = lifecycle.State
type LoggerConfig = logging.Config

// Error kinds and sentinels for errors.Is.
const (
	KindArgument   = core.KindArgument
	KindInvocation = core.KindInvocation
	KindScriptLoad = core.KindScriptLoad
	KindRuntime    = core.KindRuntime
)

var (
	ErrArgument   = core.ErrArgument
	ErrInvocation = core.ErrInvocation
	ErrScriptLoad = core.ErrScriptLoad
	ErrRuntime    = core.ErrRuntime
)

// Lifecycle states.
const (
	Created    = lifecycle.Created
	Running    = lifecycle.Running
	Closing    = lifecycle.Closing
	Terminated = lifecycle.Terminated
)

// Engine options.
var (
	WithLogger      = engine.WithLogger
	WithDispatcher  = engine.WithDispatcher
	WithRegisterer  = engine.WithRegisterer
	WithUnitFactory = engine.WithUnitFactory
	WithSetup       = engine.WithSetup
	NewLoop         = engine.NewLoop
	ValidDesignator = engine.Designator
)

// Host options.
var (
	WithHostLogger     = host.WithLogger
	WithHostSetup      = host.WithSetup
	WithHostRegisterer = host.WithRegisterer
)

// Configuration, loaders and logging.
var (
	DefaultConfig       = core.DefaultConfig
	LoadConfig          = core.LoadConfig
	NewDirLoader        = loader.NewDir
	NewFSLoader         = loader.NewFS
	NewLogger           = logging.New
	DefaultLoggerConfig = logging.DefaultConfig
	SetLogger           = logging.SetLogger
)
