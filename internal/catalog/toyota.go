package catalog

import "fmt"

// Toyota radar and chassis arbitration ids.
const (
	TrackBaseID    uint32 = 0x210
	TrackMaxID     uint32 = 0x21F
	SpeedID        uint32 = 0x0B4
	PCMCruiseID    uint32 = 0x1D2
	PCMCruise2ID   uint32 = 0x1D3
	ACCControlID   uint32 = 0x343
	PCMCruiseSMID  uint32 = 0x399
	TrackSlotCount        = int(TrackMaxID-TrackBaseID) + 1
)

// Layout names used by the decoder and keep-alive.
const (
	LayoutSpeed       = "SPEED"
	LayoutACCControl  = "ACC_CONTROL"
	LayoutPCMCruise   = "PCM_CRUISE"
	LayoutPCMCruise2  = "PCM_CRUISE_2"
	LayoutPCMCruiseSM = "PCM_CRUISE_SM"
)

// Track signal names.
const (
	SigCounter   = "COUNTER"
	SigLongDist  = "LONG_DIST"
	SigNewTrack  = "NEW_TRACK"
	SigLatDist   = "LAT_DIST"
	SigRelSpeed  = "REL_SPEED"
	SigValid     = "VALID"
	SigChecksum  = "CHECKSUM"
	SigSpeed     = "SPEED"
	SigEncoder   = "ENCODER"
	SigAccelCmd  = "ACCEL_CMD"
	SigSetMeX63  = "SET_ME_X63"
	SigRelease   = "RELEASE_STANDSTILL"
	SigSetMe1    = "SET_ME_1"
	SigCancelReq = "CANCEL_REQ"
)

// TrackLayoutName returns the layout name for a radar track slot.
func TrackLayoutName(slot int) string {
	return fmt.Sprintf("TRACK_A_%d", slot)
}

func trackLayout(slot int) Layout {
	return Layout{
		Name:   TrackLayoutName(slot),
		ID:     TrackBaseID + uint32(slot),
		Length: 8,
		Kind:   KindTrack,
		Slot:   slot,
		Signals: []Signal{
			{Name: SigCounter, Start: 7, Size: 8, BigEndian: true, Factor: 1, Max: 255},
			{Name: SigLongDist, Start: 15, Size: 13, BigEndian: true, Factor: 0.04, Min: 0, Max: 327.64, Unit: "m"},
			{Name: SigNewTrack, Start: 18, Size: 1, BigEndian: true, Factor: 1, Max: 1},
			{Name: SigLatDist, Start: 31, Size: 11, BigEndian: true, Signed: true, Factor: 0.04, Min: -50, Max: 50, Unit: "m"},
			{Name: SigRelSpeed, Start: 47, Size: 12, BigEndian: true, Signed: true, Factor: 0.025, Min: -100, Max: 100, Unit: "m/s"},
			{Name: SigValid, Start: 48, Size: 1, BigEndian: true, Factor: 1, Max: 1},
			{Name: SigChecksum, Start: 63, Size: 8, BigEndian: true, Factor: 1, Max: 255},
		},
	}
}

// ToyotaLayouts returns the built-in radar and chassis layouts.
func ToyotaLayouts() []Layout {
	layouts := make([]Layout, 0, TrackSlotCount+5)
	for slot := 0; slot < TrackSlotCount; slot++ {
		layouts = append(layouts, trackLayout(slot))
	}
	layouts = append(layouts,
		Layout{
			Name: LayoutSpeed, ID: SpeedID, Length: 8, Kind: KindVehicleState,
			Signals: []Signal{
				{Name: SigEncoder, Start: 39, Size: 8, BigEndian: true, Factor: 1, Max: 255},
				{Name: SigSpeed, Start: 47, Size: 16, BigEndian: true, Factor: 0.01, Min: 0, Max: 250, Unit: "kph"},
				{Name: SigChecksum, Start: 63, Size: 8, BigEndian: true, Factor: 1, Max: 255},
			},
		},
		Layout{
			Name: LayoutPCMCruise, ID: PCMCruiseID, Length: 8, Kind: KindControl,
			Signals: []Signal{
				{Name: "GAS_RELEASED", Start: 4, Size: 1, BigEndian: true, Factor: 1, Max: 1},
				{Name: "CRUISE_ACTIVE", Start: 5, Size: 1, BigEndian: true, Factor: 1, Max: 1},
				{Name: "STANDSTILL_ON", Start: 12, Size: 1, BigEndian: true, Factor: 1, Max: 1},
				{Name: "ACCEL_NET", Start: 23, Size: 16, BigEndian: true, Signed: true, Factor: 0.001, Min: -20, Max: 20, Unit: "m/s^2"},
				{Name: "CRUISE_STATE", Start: 55, Size: 4, BigEndian: true, Factor: 1, Max: 15},
				{Name: SigChecksum, Start: 63, Size: 8, BigEndian: true, Factor: 1, Max: 255},
			},
		},
		Layout{
			Name: LayoutPCMCruise2, ID: PCMCruise2ID, Length: 8, Kind: KindControl,
			Signals: []Signal{
				{Name: "MAIN_ON", Start: 15, Size: 1, BigEndian: true, Factor: 1, Max: 1},
				{Name: "LOW_SPEED_LOCKOUT", Start: 14, Size: 2, BigEndian: true, Factor: 1, Max: 3},
				{Name: "SET_SPEED", Start: 23, Size: 8, BigEndian: true, Factor: 1, Max: 255, Unit: "km/h"},
				{Name: SigChecksum, Start: 63, Size: 8, BigEndian: true, Factor: 1, Max: 255},
			},
		},
		Layout{
			Name: LayoutACCControl, ID: ACCControlID, Length: 8, Kind: KindControl,
			Signals: []Signal{
				{Name: SigAccelCmd, Start: 7, Size: 16, BigEndian: true, Signed: true, Factor: 0.001, Min: -20, Max: 20, Unit: "m/s^2"},
				{Name: SigSetMeX63, Start: 23, Size: 8, BigEndian: true, Factor: 1, Max: 255},
				{Name: SigRelease, Start: 31, Size: 1, BigEndian: true, Factor: 1, Max: 1},
				{Name: SigSetMe1, Start: 30, Size: 1, BigEndian: true, Factor: 1, Max: 1},
				{Name: SigCancelReq, Start: 24, Size: 1, BigEndian: true, Factor: 1, Max: 1},
				{Name: SigChecksum, Start: 63, Size: 8, BigEndian: true, Factor: 1, Max: 255},
			},
		},
		Layout{
			Name: LayoutPCMCruiseSM, ID: PCMCruiseSMID, Length: 8, Kind: KindControl,
			Signals: []Signal{
				{Name: "MAIN_ON", Start: 4, Size: 1, BigEndian: true, Factor: 1, Max: 1},
				{Name: "CRUISE_CONTROL_STATE", Start: 11, Size: 4, BigEndian: true, Factor: 1, Max: 15},
				{Name: "UI_SET_SPEED", Start: 31, Size: 8, BigEndian: true, Factor: 1, Max: 255, Unit: "km/h"},
			},
		},
	)
	return layouts
}

// Toyota returns the built-in catalog.
func Toyota() *Catalog {
	c, err := New(ToyotaLayouts()...)
	if err != nil {
		panic("catalog: built-in Toyota layouts invalid: " + err.Error())
	}
	return c
}

// ToyotaChecksum computes the Toyota frame checksum: the byte sum of the
// identifier, the length and every payload byte but the last.
func ToyotaChecksum(id uint32, data []byte) uint8 {
	sum := (id >> 8) + (id & 0xFF) + uint32(len(data))
	for i := 0; i < len(data)-1; i++ {
		sum += uint32(data[i])
	}
	return uint8(sum)
}
