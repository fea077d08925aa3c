package drone

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackadi-io/hive/cmd/hive/option"
	"github.com/jackadi-io/hive/cmd/hive/style"
	"github.com/jackadi-io/hive/internal/server/store"
)

func sortDroneFunc(a, b store.Drone) int {
	return strings.Compare(string(a.ID), string(b.ID))
}

func prettyTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format("January 2, 2006 at 15:04 UTC")
}

func connectedState(d store.Drone) string {
	if d.Connected {
		return style.RenderSuccess("connected")
	}
	return style.RenderUnknown("disconnected")
}

func prettyDroneListSprint(drones []store.Drone, showDetails bool) string {
	if len(drones) == 0 {
		return style.Subtitle("no drone has checked in yet")
	}
	if option.GetSortOutput() {
		slices.SortFunc(drones, sortDroneFunc)
	}

	items := ""
	for _, d := range drones {
		if !showDetails {
			items += style.Item(fmt.Sprintf("%s (%s)", style.RenderID(string(d.ID)), connectedState(d)))
			continue
		}

		items += style.Item(style.RenderID(string(d.ID)))
		items += style.SubItem(fmt.Sprintf("state: %s", connectedState(d)))
		items += style.SubItem(fmt.Sprintf("hostname: %s", d.Hostname))
		items += style.SubItem(fmt.Sprintf("address: %s", d.Address))
		items += style.SubItem(fmt.Sprintf("first seen: %s", prettyTime(d.FirstSeen)))
		items += style.SubItem(fmt.Sprintf("last seen: %s", prettyTime(d.LastSeen)))
	}

	return style.SpacedBlock(items)
}
