package dahua

import (
	"fmt"
	"strconv"
	"strings"
)

// coaxial control targets for SetCoaxialControlState
const (
	CoaxialTypeWhiteLight = 1 // the visible light, not the IR illuminator
	CoaxialTypeSiren      = 2 // triggers for roughly ten seconds, then stops
)

// Snapshot takes a still image on channel and returns the JPEG bytes.
// Best-effort: nil means no image was available.
func (c *Client) Snapshot(channel int) []byte {
	return c.GetBytes(fmt.Sprintf("/cgi-bin/snapshot.cgi?channel=%d", channel))
}

// SystemInfo returns device type, hardware version, serial number etc.
func (c *Client) SystemInfo() (Values, error) {
	return c.Get("/cgi-bin/magicBox.cgi?action=getSystemInfo")
}

// SoftwareVersion returns the firmware version, e.g.
// version=2.800.0000016.0.R,build:2020-06-05
func (c *Client) SoftwareVersion() (Values, error) {
	return c.Get("/cgi-bin/magicBox.cgi?action=getSoftwareVersion")
}

// MachineName returns the device name, e.g. name=FrontDoorCam
func (c *Client) MachineName() (Values, error) {
	return c.Get("/cgi-bin/magicBox.cgi?action=getMachineName")
}

func (c *Client) Vendor() (Values, error) {
	return c.Get("/cgi-bin/magicBox.cgi?action=getVendor")
}

// Config fetches one named config table, e.g. Lighting[0][0]
func (c *Client) Config(name string) (Values, error) {
	return c.Get("/cgi-bin/configManager.cgi?action=getConfig&name=" + name)
}

// GeneralConfig returns the General table, which carries the machine name
// and the login lockout settings.
func (c *Client) GeneralConfig() (Values, error) {
	return c.Config("General")
}

// CommonConfig returns the motion detect state together with the IR light
// config for a profile. profileMode: 0=day, 1=night, 2=normal scene.
func (c *Client) CommonConfig(profileMode int) (Values, error) {
	return c.Get(fmt.Sprintf(
		"/cgi-bin/configManager.cgi?action=getConfig&name=MotionDetect&action=getConfig&name=Lighting[0][%d]",
		profileMode,
	))
}

// LightingV2 returns the illuminator state. This is the white visible
// light, not the IR light. Not all cameras have it.
func (c *Client) LightingV2() (Values, error) {
	return c.Config("Lighting_V2")
}

// VideoInMode returns the active profile config (0=day, 1=night, 2=scene)
func (c *Client) VideoInMode() (Values, error) {
	return c.Config("VideoInMode")
}

// DisarmingLinkage reports the Event -> Disarming switch:
// table.DisableLinkage.Enable=false
func (c *Client) DisarmingLinkage() (Values, error) {
	return c.Config("DisableLinkage")
}

// CoaxialControlStatus returns the current speaker and white light state:
//
//	status.status.Speaker=Off
//	status.status.WhiteLight=Off
//
// The WhiteLight field also covers the red/blue alarm light on cameras
// that have one.
func (c *Client) CoaxialControlStatus() (Values, error) {
	return c.Get("/cgi-bin/coaxialControlIO.cgi?action=getStatus&channel=1")
}

// SetLightingV1 turns the IR light on (Manual mode) or off
func (c *Client) SetLightingV1(enabled bool, brightness int) (Values, error) {
	mode := "Manual"
	if !enabled {
		mode = "Off"
	}
	return c.SetLightingV1Mode(mode, brightness)
}

// SetLightingV1Mode sets the IR light mode (Manual, Off or Auto) and
// brightness (0..100).
func (c *Client) SetLightingV1Mode(mode string, brightness int) (Values, error) {
	if strings.EqualFold(mode, "on") {
		mode = "Manual"
	}
	// the API wants the first char capitalized
	mode = capitalize(mode)

	return c.Get(fmt.Sprintf(
		"/cgi-bin/configManager.cgi?action=setConfig&Lighting[0][0].Mode=%s&Lighting[0][0].MiddleLight[0].Light=%d",
		mode, brightness,
	))
}

// SetLightingV2 turns the white light on or off. brightness is 0..100,
// profileMode is 0=day, 1=night, 2=scene.
func (c *Client) SetLightingV2(enabled bool, brightness int, profileMode string) (Values, error) {
	mode := "Manual"
	if !enabled {
		mode = "Off"
	}
	path := fmt.Sprintf(
		"/cgi-bin/configManager.cgi?action=setConfig&Lighting_V2[0][%s][0].Mode=%s&Lighting_V2[0][%s][0].MiddleLight[0].Light=%d",
		profileMode, mode, profileMode, brightness,
	)
	c.Log.Debug().Str("url", path).Msg("[dahua] set lighting")
	return c.Get(path)
}

// SetVideoProfileMode switches the camera profile. mode is Day or Night.
func (c *Client) SetVideoProfileMode(mode string) error {
	if strings.EqualFold(mode, "night") {
		mode = "1"
	} else {
		// default to day
		mode = "0"
	}

	vs, err := c.Get("/cgi-bin/configManager.cgi?action=setConfig&VideoInMode[0].Config[0]=" + mode)
	if err != nil {
		return err
	}
	if !confirmAck(vs) {
		return fmt.Errorf("set video profile mode: %w", ErrNoConfirm)
	}
	return nil
}

// SetRecordMode sets the record mode: auto, manual/on or off
func (c *Client) SetRecordMode(mode string) (Values, error) {
	switch strings.ToLower(mode) {
	case "auto":
		mode = "0"
	case "manual", "on":
		mode = "1"
	case "off":
		mode = "2"
	}
	path := "/cgi-bin/configManager.cgi?action=setConfig&RecordMode[0].Mode=" + mode
	c.Log.Debug().Str("url", path).Msg("[dahua] set record mode")
	return c.Get(path)
}

// SetCoaxialControlState drives the white light or the siren, see the
// CoaxialType constants.
func (c *Client) SetCoaxialControlState(typ int, enabled bool) (Values, error) {
	// on = 1, off = 2
	io := "1"
	if !enabled {
		io = "2"
	}
	path := fmt.Sprintf(
		"/cgi-bin/coaxialControlIO.cgi?action=control&channel=0&info[0].Type=%d&info[0].IO=%s",
		typ, io,
	)
	c.Log.Debug().Str("url", path).Msg("[dahua] set coaxial control state")
	return c.Get(path)
}

// SetDisarmingLinkage sets the Event -> Disarming switch
func (c *Client) SetDisarmingLinkage(enabled bool) (Values, error) {
	return c.Get("/cgi-bin/configManager.cgi?action=setConfig&DisableLinkage[0].Enable=" +
		strconv.FormatBool(enabled))
}

// EnableMotionDetection turns motion detection on or off. Newer firmwares
// want the DetectVersion parameter, older ones reject it, so the plain
// call is used as fallback when the first form is not acknowledged.
func (c *Client) EnableMotionDetection(enabled bool) (Values, error) {
	value := strconv.FormatBool(enabled)

	vs, err := c.Get(
		"/cgi-bin/configManager.cgi?action=setConfig&MotionDetect[0].Enable=" + value +
			"&MotionDetect[0].DetectVersion=V3.0")
	if err != nil {
		return nil, err
	}
	if confirmAck(vs) {
		return vs, nil
	}

	return c.Get("/cgi-bin/configManager.cgi?action=setConfig&MotionDetect[0].Enable=" + value)
}

// EnableChannelTitle toggles the channel name overlay
func (c *Client) EnableChannelTitle(channel int, enabled bool) error {
	vs, err := c.Get(fmt.Sprintf(
		"/cgi-bin/configManager.cgi?action=setConfig&VideoWidget[%d].ChannelTitle.EncodeBlend=%t",
		channel, enabled,
	))
	if err != nil {
		return err
	}
	if !confirmAck(vs) {
		return fmt.Errorf("enable channel title: %w", ErrNoConfirm)
	}
	return nil
}

// EnableTimeOverlay toggles the clock overlay
func (c *Client) EnableTimeOverlay(channel int, enabled bool) error {
	vs, err := c.Get(fmt.Sprintf(
		"/cgi-bin/configManager.cgi?action=setConfig&VideoWidget[%d].TimeTitle.EncodeBlend=%t",
		channel, enabled,
	))
	if err != nil {
		return err
	}
	if !confirmAck(vs) {
		return fmt.Errorf("enable time overlay: %w", ErrNoConfirm)
	}
	return nil
}

// EnableTextOverlay toggles one free-text overlay group
func (c *Client) EnableTextOverlay(channel, group int, enabled bool) error {
	vs, err := c.Get(fmt.Sprintf(
		"/cgi-bin/configManager.cgi?action=setConfig&VideoWidget[%d].CustomTitle[%d].EncodeBlend=%t",
		channel, group, enabled,
	))
	if err != nil {
		return err
	}
	if !confirmAck(vs) {
		return fmt.Errorf("enable text overlay: %w", ErrNoConfirm)
	}
	return nil
}

// EnableCustomOverlay toggles one user-defined overlay group
func (c *Client) EnableCustomOverlay(channel, group int, enabled bool) error {
	vs, err := c.Get(fmt.Sprintf(
		"/cgi-bin/configManager.cgi?action=setConfig&VideoWidget[%d].UserDefinedTitle[%d].EncodeBlend=%t",
		channel, group, enabled,
	))
	if err != nil {
		return err
	}
	if !confirmAck(vs) {
		return fmt.Errorf("enable custom overlay: %w", ErrNoConfirm)
	}
	return nil
}

// SetChannelTitle sets the channel title, empty lines are dropped
func (c *Client) SetChannelTitle(channel int, lines ...string) error {
	vs, err := c.Get(fmt.Sprintf(
		"/cgi-bin/configManager.cgi?action=setConfig&ChannelTitle[%d].Name=%s",
		channel, joinLines(lines),
	))
	if err != nil {
		return err
	}
	if !confirmAck(vs) {
		return fmt.Errorf("set channel title: %w", ErrNoConfirm)
	}
	return nil
}

// SetTextOverlay sets the free-text overlay for a group
func (c *Client) SetTextOverlay(channel, group int, lines ...string) error {
	vs, err := c.Get(fmt.Sprintf(
		"/cgi-bin/configManager.cgi?action=setConfig&VideoWidget[%d].CustomTitle[%d].Text=%s",
		channel, group, joinLines(lines),
	))
	if err != nil {
		return err
	}
	if !confirmAck(vs) {
		return fmt.Errorf("set text overlay: %w", ErrNoConfirm)
	}
	return nil
}

// SetCustomOverlay sets the user-defined overlay for a group
func (c *Client) SetCustomOverlay(channel, group int, lines ...string) error {
	vs, err := c.Get(fmt.Sprintf(
		"/cgi-bin/configManager.cgi?action=setConfig&VideoWidget[%d].UserDefinedTitle[%d].Text=%s",
		channel, group, joinLines(lines),
	))
	if err != nil {
		return err
	}
	if !confirmAck(vs) {
		return fmt.Errorf("set custom overlay: %w", ErrNoConfirm)
	}
	return nil
}

// joinLines - overlay text lines are separated by '|', empties dropped
func joinLines(lines []string) string {
	var keep []string
	for _, s := range lines {
		if s != "" {
			keep = append(keep, s)
		}
	}
	return strings.Join(keep, "|")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
