package logic

import (
	"fmt"
	"net"

	"github.com/avct/uasurfer"

	"github.com/openmediate/gateway/internal/geoip"
	"github.com/openmediate/gateway/internal/models"
)

// ResolveDeviceFromUA parses a raw User-Agent string into a DeviceContext
// using the uasurfer library.
func ResolveDeviceFromUA(uaString string) models.DeviceContext {
	u := uasurfer.Parse(uaString)

	var deviceType string
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		deviceType = "desktop"
	case uasurfer.DevicePhone:
		deviceType = "mobile"
	case uasurfer.DeviceTablet:
		deviceType = "tablet"
	default:
		deviceType = "other"
	}

	v := u.OS.Version
	fullOS := fmt.Sprintf("%s %s %d.%d.%d", u.OS.Platform.String(), u.OS.Name.String(), v.Major, v.Minor, v.Patch)

	return models.DeviceContext{
		DeviceType: deviceType,
		OS:         fullOS,
		IsBot:      u.IsBot(),
	}
}

// ResolveDevice parses the UA string and IP address into a DeviceContext.
func ResolveDevice(g *geoip.GeoIP, uaString, ipString string) models.DeviceContext {
	ctx := ResolveDeviceFromUA(uaString)
	if ip := net.ParseIP(ipString); ip != nil && g != nil {
		ctx.Country = g.Country(ip)
	}
	return ctx
}

// DefaultSizeForDevice picks the requested banner area substituted when
// neither the request nor the placement constrains the size. Phones get the
// standard banner slot; tablets and desktops have room for a leaderboard.
func DefaultSizeForDevice(dc models.DeviceContext) models.RequestedSize {
	switch dc.DeviceType {
	case "tablet", "desktop":
		return models.RequestedSize{Width: 728, Height: 90}
	default:
		return models.RequestedSize{Width: 320, Height: 50}
	}
}
