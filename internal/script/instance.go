package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/1broseidon/wmcore/internal/module"
	"github.com/1broseidon/wmcore/internal/registry"
	"github.com/1broseidon/wmcore/internal/wm"
)

// instance dispatches entry points to the table create_wm returned.
type instance struct {
	rt *runtime
	wm *lua.LTable
}

var (
	_ module.Instance = (*instance)(nil)
	_ module.Closer   = (*instance)(nil)
)

// invoke calls wm[name](wm, args...) when the script defines it.
func (i *instance) invoke(name string, args ...lua.LValue) (lua.LValue, error) {
	fn, ok := i.wm.RawGetString(name).(*lua.LFunction)
	if !ok {
		return lua.LNil, nil
	}
	ret, err := i.rt.call(fn, append([]lua.LValue{i.wm}, args...)...)
	if err != nil {
		return lua.LNil, fmt.Errorf("%s: %w", name, err)
	}
	return ret, nil
}

func (i *instance) NewToplevel(t *module.Toplevel) error {
	_, err := i.invoke("new_toplevel", i.rt.wrap(toplevelType, t))
	return err
}

func (i *instance) ClosedToplevel(id wm.ToplevelID) error {
	_, err := i.invoke("closed_toplevel", lua.LNumber(id))
	return err
}

// UpdateToplevel passes the changed fields as a set: { title = true }.
func (i *instance) UpdateToplevel(t *module.Toplevel, flags wm.UpdateFlags) error {
	_, err := i.invoke("update_toplevel", i.rt.wrap(toplevelType, t), nameSet(i.rt.L, flags.Names()))
	return err
}

func (i *instance) AckToplevel(t *module.Toplevel, serial uint32) error {
	_, err := i.invoke("ack_toplevel", i.rt.wrap(toplevelType, t), lua.LNumber(serial))
	return err
}

func (i *instance) CommittedToplevel(t *module.Toplevel, snap *registry.Snapshot) error {
	var s lua.LValue = lua.LNil
	if snap != nil {
		s = i.rt.wrap(snapshotType, snap)
	}
	_, err := i.invoke("committed_toplevel", i.rt.wrap(toplevelType, t), s)
	return err
}

// Key expects "drop" or "forward"; anything else, including no key
// function, forwards.
func (i *instance) Key(ev wm.KeyEvent) (wm.KeyFilter, error) {
	tbl := i.rt.L.NewTable()
	tbl.RawSetString("time", lua.LNumber(ev.Time))
	tbl.RawSetString("keysym", lua.LNumber(ev.Keysym))
	var compose lua.LValue = lua.LNil
	if ev.Compose != "" {
		compose = lua.LString(ev.Compose)
	}
	tbl.RawSetString("compose", compose)
	tbl.RawSetString("status", lua.LString(ev.Status.String()))
	tbl.RawSetString("pressed", lua.LBool(ev.Status == wm.KeyPressed))

	ret, err := i.invoke("key", tbl)
	if err != nil {
		return wm.KeyForward, err
	}
	if lua.LVAsString(ret) == wm.KeyDrop.String() {
		return wm.KeyDrop, nil
	}
	return wm.KeyForward, nil
}

func (i *instance) KeyModifiers(m wm.Modifiers) error {
	_, err := i.invoke("key_modifiers", nameSet(i.rt.L, m.Names()))
	return err
}

func (i *instance) NewOutput(o *module.Output) error {
	_, err := i.invoke("new_output", i.rt.wrap(outputType, o))
	return err
}

func (i *instance) DisconnectOutput(id wm.OutputID) error {
	_, err := i.invoke("disconnect_output", lua.LNumber(id))
	return err
}

func (i *instance) Close() error {
	i.rt.close()
	return nil
}
