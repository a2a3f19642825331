package display

// Interface names advertised by the registry.
const (
	ifaceCompositor = "wl_compositor"
	ifaceShm        = "wl_shm"
	ifaceXdgWmBase  = "xdg_wm_base"
	ifaceShell      = "wl_shell"
)

// Request opcodes, by interface.
const (
	registryBind = 0

	compositorCreateSurface = 0

	shmCreatePool = 0

	shmPoolCreateBuffer = 0
	shmPoolDestroy      = 1

	bufferDestroy = 0

	surfaceDestroy = 0
	surfaceAttach  = 1
	surfaceDamage  = 2
	surfaceFrame   = 3
	surfaceCommit  = 6

	xdgWmBaseDestroy       = 0
	xdgWmBaseGetXdgSurface = 2
	xdgWmBasePong          = 3

	xdgSurfaceDestroy      = 0
	xdgSurfaceGetToplevel  = 1
	xdgSurfaceAckConfigure = 4

	xdgToplevelDestroy  = 0
	xdgToplevelSetTitle = 2
	xdgToplevelSetAppID = 3

	shellGetShellSurface = 0

	shellSurfacePong        = 0
	shellSurfaceSetToplevel = 3
	shellSurfaceSetTitle    = 8
)

// Event opcodes, by interface.
const (
	registryEventGlobal       = 0
	registryEventGlobalRemove = 1

	shmEventFormat = 0

	bufferEventRelease = 0

	callbackEventDone = 0

	xdgWmBaseEventPing = 0

	xdgSurfaceEventConfigure = 0

	xdgToplevelEventConfigure = 0
	xdgToplevelEventClose     = 1

	shellSurfaceEventPing = 0
)

// shmFormatXRGB8888 is wl_shm.format.xrgb8888.
const shmFormatXRGB8888 = 1

// Highest versions this client speaks.
const (
	compositorVersion = 4
	shmVersion        = 1
	xdgWmBaseVersion  = 1
	shellVersion      = 1
)
