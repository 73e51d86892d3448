// Package hotplug refreshes the camera list when video4linux devices are
// plugged in or removed, using kernel uevents from the netlink socket.
package hotplug
