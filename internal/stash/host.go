package stash

// ItemSource is the read-only view of the held-item container.
type ItemSource interface {
	// Items returns the held items. ok is false while the list is not yet available.
	Items() (items []Item, ok bool)

	// InventoryRect returns the held-item grid in screen coordinates.
	InventoryRect() Rect
}

// ContainerSource is the read-only view of the storage containers.
type ContainerSource interface {
	// ContainerNames returns the live tab names in order. ok is false while
	// the list is not yet available.
	ContainerNames() (names []string, ok bool)

	// VisibleIndex returns the index of the visible tab, or -1 if none.
	VisibleIndex() int

	// VisibleReady reports whether the visible tab's content table is loaded.
	VisibleReady() bool

	// PanelOpen reports whether both the inventory and the storage panel are shown.
	PanelOpen() bool
}
