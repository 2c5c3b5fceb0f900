// Package sim simulates an ArduRover vehicle speaking MAVLink so the bridge
// can be exercised without hardware. The rover answers arm, disarm, mode,
// reboot, RC override and ping requests and streams the telemetry the bridge
// normalizes.
package sim
