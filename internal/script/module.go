// Package script runs window-management policies written in Lua. A module
// is a directory holding a module.toml manifest and an entry file that
// defines two globals:
//
//	function get_info()
//	  return { name = "tiler", version = "1.0.0", abi_major = 0, abi_minor = 1 }
//	end
//
//	function create_wm(server, settings)
//	  local wm = {}
//	  function wm:new_toplevel(t) ... end
//	  return wm
//	end
//
// Entry points are looked up on the returned table and called as methods;
// missing ones are skipped.
// Every entry point runs with the manifest's timeout on a fresh context.
// The Lua state only has the base, table, string and math libraries.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/1broseidon/wmcore/internal/module"
)

// ErrNoEntryPoint is returned when a script lacks get_info or create_wm.
var ErrNoEntryPoint = errors.New("script does not define the required entry point")

// Options configures how script modules run.
type Options struct {
	Logger *slog.Logger
	// Timeout overrides the manifest's per-call timeout when non-zero.
	Timeout time.Duration
}

// Module is a compiled script module. Each Create gets its own Lua state.
type Module struct {
	manifest *Manifest
	proto    *lua.FunctionProto
	timeout  time.Duration
	logger   *slog.Logger
}

var _ module.Module = (*Module)(nil)

// Load reads the manifest in dir and compiles the entry file. Nothing is
// executed until Info or Create is called.
func Load(dir string, opts Options) (*Module, error) {
	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}

	src, err := os.ReadFile(manifest.MainPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read module entry: %w", err)
	}
	proto, err := compile(manifest.Main, string(src))
	if err != nil {
		return nil, err
	}

	timeout := manifest.Timeout.Duration
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{
		manifest: manifest,
		proto:    proto,
		timeout:  timeout,
		logger:   logger.With("script", manifest.Dir()),
	}, nil
}

func compile(name, src string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", name, err)
	}
	return proto, nil
}

// Manifest returns the module's manifest.
func (m *Module) Manifest() *Manifest { return m.manifest }

// Info runs the script in a throwaway state and calls get_info.
func (m *Module) Info() (module.Info, error) {
	rt, err := m.start(nil)
	if err != nil {
		return module.Info{}, err
	}
	defer rt.close()

	fn, err := rt.global("get_info")
	if err != nil {
		return module.Info{}, err
	}
	ret, err := rt.call(fn)
	if err != nil {
		return module.Info{}, fmt.Errorf("get_info: %w", err)
	}
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return module.Info{}, fmt.Errorf("get_info: expected a table, got %s", ret.Type())
	}
	return infoFromTable(tbl)
}

func infoFromTable(tbl *lua.LTable) (module.Info, error) {
	major, err := uint16Field(tbl, "abi_major")
	if err != nil {
		return module.Info{}, err
	}
	minor, err := uint16Field(tbl, "abi_minor")
	if err != nil {
		return module.Info{}, err
	}
	return module.Info{
		Name:    lua.LVAsString(tbl.RawGetString("name")),
		Version: lua.LVAsString(tbl.RawGetString("version")),
		ABI:     module.ABI{Major: major, Minor: minor},
	}, nil
}

func uint16Field(tbl *lua.LTable, key string) (uint16, error) {
	n, ok := tbl.RawGetString(key).(lua.LNumber)
	if !ok || n < 0 || n > 0xffff || float64(n) != float64(int64(n)) {
		return 0, fmt.Errorf("get_info: %s must be an integer between 0 and 65535", key)
	}
	return uint16(n), nil
}

// Create runs the script in a new state and calls create_wm with the
// server and the manifest settings. The returned table holds the entry
// points; missing ones are no-ops.
func (m *Module) Create(srv *module.Server) (module.Instance, error) {
	rt, err := m.start(srv)
	if err != nil {
		return nil, err
	}

	fn, err := rt.global("create_wm")
	if err != nil {
		rt.close()
		return nil, err
	}
	ret, err := rt.call(fn, rt.server, toLua(rt.L, m.manifest.Settings))
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("create_wm: %w", err)
	}
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		rt.close()
		return nil, fmt.Errorf("create_wm: expected a table, got %s", ret.Type())
	}
	return &instance{rt: rt, wm: tbl}, nil
}

// runtime is one sandboxed Lua state.
type runtime struct {
	L       *lua.LState
	timeout time.Duration
	logger  *slog.Logger
	srv     *module.Server
	server  lua.LValue
}

func (m *Module) start(srv *module.Server) (*runtime, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	rt := &runtime{L: L, timeout: m.timeout, logger: m.logger, srv: srv, server: lua.LNil}

	openLibs(L)
	rt.installGlobals()
	if srv != nil {
		rt.server = rt.newServer(srv)
	}

	chunk := L.NewFunctionFromProto(m.proto)
	err := rt.budget(func() error {
		return L.CallByParam(lua.P{Fn: chunk, NRet: 0, Protect: true})
	})
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to run %s: %w", m.manifest.Main, err)
	}
	return rt, nil
}

func openLibs(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func (rt *runtime) installGlobals() {
	rt.L.SetGlobal("log", rt.L.NewFunction(rt.luaLog))
	rt.L.SetGlobal("print", rt.L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		rt.logger.Info(strings.Join(parts, "\t"))
		return 0
	}))
}

// luaLog implements log(level, msg).
func (rt *runtime) luaLog(L *lua.LState) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		L.ArgError(1, "level must be debug, info, warn or error")
		return 0
	}
	rt.logger.Log(context.Background(), lvl, msg)
	return 0
}

func (rt *runtime) global(name string) (*lua.LFunction, error) {
	fn, ok := rt.L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEntryPoint, name)
	}
	return fn, nil
}

// call invokes fn and returns its first result.
func (rt *runtime) call(fn *lua.LFunction, args ...lua.LValue) (lua.LValue, error) {
	err := rt.budget(func() error {
		return rt.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	})
	if err != nil {
		return lua.LNil, err
	}
	ret := rt.L.Get(-1)
	rt.L.Pop(1)
	return ret, nil
}

// budget runs fn with the per-call timeout attached to the state.
func (rt *runtime) budget(fn func() error) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), rt.timeout)
	defer cancel()
	rt.L.SetContext(ctx)
	defer rt.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	if err = fn(); err != nil && ctx.Err() != nil {
		err = fmt.Errorf("exceeded %s budget: %w", rt.timeout, err)
	}
	return err
}

func (rt *runtime) close() {
	rt.L.Close()
}
