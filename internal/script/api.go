package script

import (
	"fmt"
	"math"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/1broseidon/wmcore/internal/module"
	"github.com/1broseidon/wmcore/internal/registry"
	"github.com/1broseidon/wmcore/internal/wm"
)

// Userdata type names.
const (
	serverType    = "wmcore.server"
	toplevelType  = "wmcore.toplevel"
	outputType    = "wmcore.output"
	configureType = "wmcore.configure"
	snapshotType  = "wmcore.snapshot"
)

// Host methods return (value, nil) on success and (nil, message) on
// failure so scripts can handle stale handles without pcall.
func result(L *lua.LState, v lua.LValue, err error) int {
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(v)
	L.Push(lua.LNil)
	return 2
}

func done(L *lua.LState, err error) int {
	return result(L, lua.LTrue, err)
}

func (rt *runtime) registerType(name string, methods map[string]lua.LGFunction) {
	mt := rt.L.NewTypeMetatable(name)
	rt.L.SetField(mt, "__index", rt.L.SetFuncs(rt.L.NewTable(), methods))
	rt.L.SetField(mt, "__tostring", rt.L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(describe(name, L.CheckUserData(1).Value)))
		return 1
	}))
}

func describe(typ string, v any) string {
	switch val := v.(type) {
	case *module.Toplevel:
		return val.ID().String()
	case *module.Output:
		return val.ID().String()
	case *registry.Snapshot:
		return fmt.Sprintf("snapshot(%v)", val.Toplevel())
	case fmt.Stringer:
		return val.String()
	default:
		return typ
	}
}

func (rt *runtime) wrap(typ string, v any) *lua.LUserData {
	ud := rt.L.NewUserData()
	ud.Value = v
	rt.L.SetMetatable(ud, rt.L.GetTypeMetatable(typ))
	return ud
}

func check[T any](L *lua.LState, n int, typ string) T {
	ud := L.CheckUserData(n)
	v, ok := ud.Value.(T)
	if !ok {
		L.ArgError(n, typ+" expected")
	}
	return v
}

// optToplevel accepts a toplevel or nil.
func optToplevel(L *lua.LState, n int) *module.Toplevel {
	if L.Get(n) == lua.LNil {
		return nil
	}
	return check[*module.Toplevel](L, n, toplevelType)
}

func (rt *runtime) newServer(srv *module.Server) lua.LValue {
	rt.registerType(serverType, map[string]lua.LGFunction{
		"toplevels":          rt.serverToplevels,
		"outputs":            rt.serverOutputs,
		"toplevel":           rt.serverToplevel,
		"output":             rt.serverOutput,
		"keyboard_focus":     rt.serverKeyboardFocus,
		"set_keyboard_focus": rt.serverSetKeyboardFocus,
		"set_pointer_focus":  rt.serverSetPointerFocus,
		"configure":          rt.serverConfigure,
	})
	rt.registerType(toplevelType, map[string]lua.LGFunction{
		"id":            toplevelID,
		"ownership":     toplevelOwnership,
		"borrow":        rt.toplevelBorrow,
		"features":      toplevelFeatures,
		"app_id":        toplevelAppID,
		"title":         toplevelTitle,
		"min_size":      toplevelMinSize,
		"max_size":      toplevelMaxSize,
		"geometry":      toplevelGeometry,
		"parent":        rt.toplevelParent,
		"state":         toplevelState,
		"decorations":   toplevelDecorations,
		"resize_edge":   toplevelResizeEdge,
		"mapped":        toplevelMapped,
		"request_close": toplevelRequestClose,
		"release":       toplevelRelease,
	})
	rt.registerType(outputType, map[string]lua.LGFunction{
		"id":           outputID,
		"name":         outputName,
		"geometry":     outputGeometry,
		"refresh_rate": outputRefreshRate,
		"release":      outputRelease,
	})
	rt.registerType(configureType, map[string]lua.LGFunction{
		"set_state":       configureSetState,
		"set_decorations": configureSetDecorations,
		"set_size":        configureSetSize,
		"set_bounds":      configureSetBounds,
		"set_position":    configureSetPosition,
		"set_parent":      configureSetParent,
		"submit":          configureSubmit,
	})
	rt.registerType(snapshotType, map[string]lua.LGFunction{
		"toplevel": snapshotToplevel,
		"size":     snapshotSize,
		"scale":    snapshotScale,
		"release":  snapshotRelease,
	})
	return rt.wrap(serverType, srv)
}

// server methods

func (rt *runtime) serverToplevels(L *lua.LState) int {
	srv := check[*module.Server](L, 1, serverType)
	list, err := srv.Toplevels()
	tbl := L.NewTable()
	for _, t := range list {
		tbl.Append(rt.wrap(toplevelType, t))
	}
	return result(L, tbl, err)
}

func (rt *runtime) serverOutputs(L *lua.LState) int {
	srv := check[*module.Server](L, 1, serverType)
	list, err := srv.Outputs()
	tbl := L.NewTable()
	for _, o := range list {
		tbl.Append(rt.wrap(outputType, o))
	}
	return result(L, tbl, err)
}

func (rt *runtime) serverToplevel(L *lua.LState) int {
	srv := check[*module.Server](L, 1, serverType)
	t, err := srv.Toplevel(wm.ToplevelID(L.CheckInt(2)))
	if err != nil {
		return result(L, lua.LNil, err)
	}
	return result(L, rt.wrap(toplevelType, t), nil)
}

func (rt *runtime) serverOutput(L *lua.LState) int {
	srv := check[*module.Server](L, 1, serverType)
	o, err := srv.Output(wm.OutputID(L.CheckInt(2)))
	if err != nil {
		return result(L, lua.LNil, err)
	}
	return result(L, rt.wrap(outputType, o), nil)
}

func (rt *runtime) serverKeyboardFocus(L *lua.LState) int {
	srv := check[*module.Server](L, 1, serverType)
	t, err := srv.KeyboardFocus()
	if err != nil || t == nil {
		return result(L, lua.LNil, err)
	}
	return result(L, rt.wrap(toplevelType, t), nil)
}

func (rt *runtime) serverSetKeyboardFocus(L *lua.LState) int {
	srv := check[*module.Server](L, 1, serverType)
	return done(L, srv.SetKeyboardFocus(optToplevel(L, 2)))
}

func (rt *runtime) serverSetPointerFocus(L *lua.LState) int {
	srv := check[*module.Server](L, 1, serverType)
	return done(L, srv.SetPointerFocus(optToplevel(L, 2)))
}

func (rt *runtime) serverConfigure(L *lua.LState) int {
	srv := check[*module.Server](L, 1, serverType)
	cfg, err := srv.NewConfigure(check[*module.Toplevel](L, 2, toplevelType))
	if err != nil {
		return result(L, lua.LNil, err)
	}
	return result(L, rt.wrap(configureType, cfg), nil)
}

// toplevel methods

func toplevelID(L *lua.LState) int {
	L.Push(lua.LNumber(check[*module.Toplevel](L, 1, toplevelType).ID()))
	return 1
}

func toplevelOwnership(L *lua.LState) int {
	L.Push(lua.LString(check[*module.Toplevel](L, 1, toplevelType).Ownership().String()))
	return 1
}

func (rt *runtime) toplevelBorrow(L *lua.LState) int {
	b, err := check[*module.Toplevel](L, 1, toplevelType).Borrow()
	if err != nil {
		return result(L, lua.LNil, err)
	}
	return result(L, rt.wrap(toplevelType, b), nil)
}

func toplevelFeatures(L *lua.LState) int {
	f, err := check[*module.Toplevel](L, 1, toplevelType).Features()
	return result(L, nameSet(L, f.Names()), err)
}

func toplevelAppID(L *lua.LState) int {
	s, err := check[*module.Toplevel](L, 1, toplevelType).AppID()
	return result(L, lua.LString(s), err)
}

func toplevelTitle(L *lua.LState) int {
	s, err := check[*module.Toplevel](L, 1, toplevelType).Title()
	return result(L, lua.LString(s), err)
}

func toplevelMinSize(L *lua.LState) int {
	sz, err := check[*module.Toplevel](L, 1, toplevelType).MinSize()
	return result(L, sizeTable(L, sz), err)
}

func toplevelMaxSize(L *lua.LState) int {
	sz, err := check[*module.Toplevel](L, 1, toplevelType).MaxSize()
	return result(L, sizeTable(L, sz), err)
}

func toplevelGeometry(L *lua.LState) int {
	g, ok, err := check[*module.Toplevel](L, 1, toplevelType).Geometry()
	if err != nil || !ok {
		return result(L, lua.LNil, err)
	}
	return result(L, geometryTable(L, g), nil)
}

func (rt *runtime) toplevelParent(L *lua.LState) int {
	p, err := check[*module.Toplevel](L, 1, toplevelType).Parent()
	if err != nil || p == nil {
		return result(L, lua.LNil, err)
	}
	return result(L, rt.wrap(toplevelType, p), nil)
}

func toplevelState(L *lua.LState) int {
	st, err := check[*module.Toplevel](L, 1, toplevelType).State()
	return result(L, nameSet(L, st.Names()), err)
}

func toplevelDecorations(L *lua.LState) int {
	d, err := check[*module.Toplevel](L, 1, toplevelType).Decorations()
	return result(L, lua.LString(d.String()), err)
}

func toplevelResizeEdge(L *lua.LState) int {
	e, err := check[*module.Toplevel](L, 1, toplevelType).ResizeEdge()
	return result(L, lua.LString(e.String()), err)
}

func toplevelMapped(L *lua.LState) int {
	m, err := check[*module.Toplevel](L, 1, toplevelType).Mapped()
	return result(L, lua.LBool(m), err)
}

func toplevelRequestClose(L *lua.LState) int {
	return done(L, check[*module.Toplevel](L, 1, toplevelType).RequestClose())
}

func toplevelRelease(L *lua.LState) int {
	return done(L, check[*module.Toplevel](L, 1, toplevelType).Release())
}

// output methods

func outputID(L *lua.LState) int {
	L.Push(lua.LNumber(check[*module.Output](L, 1, outputType).ID()))
	return 1
}

func outputName(L *lua.LState) int {
	s, err := check[*module.Output](L, 1, outputType).Name()
	return result(L, lua.LString(s), err)
}

func outputGeometry(L *lua.LState) int {
	g, err := check[*module.Output](L, 1, outputType).Geometry()
	return result(L, geometryTable(L, g), err)
}

func outputRefreshRate(L *lua.LState) int {
	r, err := check[*module.Output](L, 1, outputType).RefreshRate()
	return result(L, lua.LNumber(r), err)
}

func outputRelease(L *lua.LState) int {
	return done(L, check[*module.Output](L, 1, outputType).Release())
}

// configure methods

func configureSetState(L *lua.LState) int {
	cfg := check[*module.Configure](L, 1, configureType)
	var st wm.ToplevelState
	var bad string
	L.CheckTable(2).ForEach(func(k, v lua.LValue) {
		name := lua.LVAsString(k)
		if _, isIndex := k.(lua.LNumber); isIndex {
			name = lua.LVAsString(v)
		} else if !lua.LVAsBool(v) {
			return
		}
		flag, ok := wm.ParseStateFlag(name)
		if !ok {
			bad = name
			return
		}
		st |= flag
	})
	if bad != "" {
		L.ArgError(2, fmt.Sprintf("unknown state flag %q", bad))
		return 0
	}
	return done(L, cfg.SetState(st))
}

func configureSetDecorations(L *lua.LState) int {
	cfg := check[*module.Configure](L, 1, configureType)
	mode, err := wm.ParseDecorationMode(L.CheckString(2))
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	return done(L, cfg.SetDecorations(mode))
}

func checkSize(L *lua.LState, n int) wm.Size {
	w, h := L.CheckInt(n), L.CheckInt(n+1)
	if w < 0 || h < 0 {
		L.ArgError(n, "size must not be negative")
	}
	if int64(w) > math.MaxUint32 || int64(h) > math.MaxUint32 {
		L.ArgError(n, "size out of range")
	}
	return wm.Size{Width: uint32(w), Height: uint32(h)}
}

func checkCoord(L *lua.LState, n int) int32 {
	v := L.CheckInt(n)
	if int64(v) < math.MinInt32 || int64(v) > math.MaxInt32 {
		L.ArgError(n, "coordinate out of range")
	}
	return int32(v)
}

func configureSetSize(L *lua.LState) int {
	cfg := check[*module.Configure](L, 1, configureType)
	return done(L, cfg.SetSize(checkSize(L, 2)))
}

func configureSetBounds(L *lua.LState) int {
	cfg := check[*module.Configure](L, 1, configureType)
	return done(L, cfg.SetBounds(checkSize(L, 2)))
}

func configureSetPosition(L *lua.LState) int {
	cfg := check[*module.Configure](L, 1, configureType)
	p := wm.Point{X: checkCoord(L, 2), Y: checkCoord(L, 3)}
	return done(L, cfg.SetPosition(p))
}

func configureSetParent(L *lua.LState) int {
	cfg := check[*module.Configure](L, 1, configureType)
	return done(L, cfg.SetParent(optToplevel(L, 2)))
}

func configureSubmit(L *lua.LState) int {
	serial, err := check[*module.Configure](L, 1, configureType).Submit()
	return result(L, lua.LNumber(serial), err)
}

// snapshot methods

func snapshotToplevel(L *lua.LState) int {
	L.Push(lua.LNumber(check[*registry.Snapshot](L, 1, snapshotType).Toplevel()))
	return 1
}

func snapshotSize(L *lua.LState) int {
	sz, err := check[*registry.Snapshot](L, 1, snapshotType).Size()
	return result(L, sizeTable(L, sz), err)
}

func snapshotScale(L *lua.LState) int {
	s, err := check[*registry.Snapshot](L, 1, snapshotType).Scale()
	return result(L, lua.LNumber(s), err)
}

func snapshotRelease(L *lua.LState) int {
	return done(L, check[*registry.Snapshot](L, 1, snapshotType).Release())
}

// conversions

func sizeTable(L *lua.LState, sz wm.Size) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("width", lua.LNumber(sz.Width))
	tbl.RawSetString("height", lua.LNumber(sz.Height))
	return tbl
}

func geometryTable(L *lua.LState, g wm.Geometry) *lua.LTable {
	tbl := sizeTable(L, g.Size())
	tbl.RawSetString("x", lua.LNumber(g.X))
	tbl.RawSetString("y", lua.LNumber(g.Y))
	return tbl
}

// nameSet turns flag names into a set: { activated = true, ... }.
func nameSet(L *lua.LState, names []string) *lua.LTable {
	tbl := L.NewTable()
	for _, n := range names {
		tbl.RawSetString(n, lua.LTrue)
	}
	return tbl
}

// toLua converts decoded TOML values.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int64:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		tbl := L.NewTable()
		for _, item := range val {
			tbl.Append(toLua(L, item))
		}
		return tbl
	case []map[string]any:
		tbl := L.NewTable()
		for _, item := range val {
			tbl.Append(toLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tbl.RawSetString(k, toLua(L, val[k]))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(val))
	}
}
