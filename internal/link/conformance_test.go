package link_test

import (
	"testing"

	"github.com/radio-control/mavbridge/internal/link"
	"github.com/radio-control/mavbridge/internal/link/linktest"
)

// Before the first heartbeat the mode table is unknown, so only numeric
// custom modes are accepted.
func TestMAVLinkConformance(t *testing.T) {
	linktest.RunConformance(t, func(t *testing.T) link.IVehicleLink {
		return link.NewTestLink()
	}, linktest.Capabilities{KnownMode: "HOLD", UnknownMode: "WARP"})
}
