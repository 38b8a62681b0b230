package wm

// UpdateFlags tells a module which toplevel attributes changed. The new
// values are not carried; the module re-reads them through the toplevel's
// accessors.
type UpdateFlags uint32

const (
	UpdateAppID UpdateFlags = 1 << iota
	UpdateTitle
	UpdateParent
	UpdateMinSize
	UpdateMaxSize
	UpdateGeometry
	UpdateRequestSetMaximized
	UpdateRequestUnsetMaximized
	UpdateRequestSetFullscreen
	UpdateRequestUnsetFullscreen
	UpdateRequestMinimize
	UpdateRequestMove
	UpdateRequestResize
)

// UpdateRequests covers the client-requested flags.
const UpdateRequests = UpdateRequestSetMaximized | UpdateRequestUnsetMaximized |
	UpdateRequestSetFullscreen | UpdateRequestUnsetFullscreen |
	UpdateRequestMinimize | UpdateRequestMove | UpdateRequestResize

var updateNames = []flagName[UpdateFlags]{
	{UpdateAppID, "app-id"},
	{UpdateTitle, "title"},
	{UpdateParent, "parent"},
	{UpdateMinSize, "min-size"},
	{UpdateMaxSize, "max-size"},
	{UpdateGeometry, "geometry"},
	{UpdateRequestSetMaximized, "set-maximized"},
	{UpdateRequestUnsetMaximized, "unset-maximized"},
	{UpdateRequestSetFullscreen, "set-fullscreen"},
	{UpdateRequestUnsetFullscreen, "unset-fullscreen"},
	{UpdateRequestMinimize, "set-minimized"},
	{UpdateRequestMove, "move-request"},
	{UpdateRequestResize, "resize-request"},
}

// Has reports whether every flag in f is set.
func (u UpdateFlags) Has(f UpdateFlags) bool {
	return u&f == f
}

func (u UpdateFlags) String() string {
	return formatFlags(u, updateNames)
}

// Names lists the set flags in declaration order.
func (u UpdateFlags) Names() []string {
	return flagList(u, updateNames)
}
