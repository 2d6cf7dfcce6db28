package dahua

import (
	"fmt"
)

// stream names as the host application knows them
const (
	StreamMain = "Main"
	StreamSub  = "Sub"
)

// Subtype translates a stream name to the numeric subtype index the API
// expects. Anything unrecognized falls back to the main stream.
func Subtype(name string) int {
	if name == StreamSub {
		return 1
	}
	return 0
}

// StreamName is the inverse of Subtype
func StreamName(subtype int) string {
	if subtype == 1 {
		return StreamSub
	}
	return StreamMain
}

// RTSPURL returns the realmonitor URL for the supplied channel and subtype
// (0=Main stream, 1=Sub stream). The URL embeds the credentials and is
// meant for an external media player, this library never opens it.
func (c *Client) RTSPURL(channel, subtype int) string {
	return fmt.Sprintf(
		"rtsp://%s:%s@%s:%d/cam/realmonitor?channel=%d&subtype=%d",
		c.username, c.password, c.host, c.rtspPort, channel, subtype,
	)
}
