package navdata

import (
	"encoding/json"
	"math/bits"
)

// Vehicle state word
type State uint32

const (
	Flying State = 1 << iota
	VideoEnabled
	VisionEnabled
	ControlAlgo
	AltitudeControl
	UserFeedback
	CommandAck
	CameraReady
	TravellingEnabled
	USBReady
	NavdataDemo
	NavdataBootstrap
	MotorsProblem
	CommunicationLost
	SoftwareFault
	BatteryLow
	UserEmergency
	TimerElapsed
	MagnetoCalib
	AnglesOutOfRange
	WindTooHigh
	UltrasoundDeaf
	CutoutDetected
	PICVersionOK
	ATCodecThreadOn
	NavdataThreadOn
	VideoThreadOn
	AcquisitionThreadOn
	ControlWatchdog
	ADCWatchdog
	COMWatchdog
	Emergency
)

var stateNames = [32]string{
	"flying",
	"video_enabled",
	"vision_enabled",
	"control_algo",
	"altitude_control",
	"user_feedback",
	"command_ack",
	"camera_ready",
	"travelling_enabled",
	"usb_ready",
	"navdata_demo",
	"navdata_bootstrap",
	"motors_problem",
	"communication_lost",
	"software_fault",
	"battery_low",
	"user_emergency",
	"timer_elapsed",
	"magneto_calib",
	"angles_out_of_range",
	"wind_too_high",
	"ultrasound_deaf",
	"cutout_detected",
	"pic_version_ok",
	"atcodec_thread_on",
	"navdata_thread_on",
	"video_thread_on",
	"acquisition_thread_on",
	"control_watchdog",
	"adc_watchdog",
	"com_watchdog",
	"emergency",
}

func (state State) Has(flag State) (set bool) {
	set = state&flag == flag
	return
}

// Names of all set bits, lowest bit first
func (state State) Names() (names []string) {
	word := uint32(state)
	for word != 0 {
		bit := bits.TrailingZeros32(word)
		names = append(names, stateNames[bit])
		word &^= 1 << bit
	}
	return
}

// Every named flag with its value
func (state State) Flags() (flags map[string]bool) {
	flags = make(map[string]bool, len(stateNames))
	for bit, name := range stateNames {
		flags[name] = state.Has(State(1) << bit)
	}
	return
}

func (state State) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Raw   uint32          `json:"raw"`
		Flags map[string]bool `json:"flags"`
	}{
		Raw:   uint32(state),
		Flags: state.Flags(),
	})
}

func (state *State) UnmarshalJSON(data []byte) (err error) {
	var wire struct {
		Raw uint32 `json:"raw"`
	}
	err = json.Unmarshal(data, &wire)
	if err != nil {
		return
	}
	*state = State(wire.Raw)
	return
}
