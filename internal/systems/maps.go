package systems

import "github.com/skeld-project/skeld/internal/content"

var (
	_ System = (*AutoDoorsSystem)(nil)
	_ System = (*DoorsSystem)(nil)
	_ System = (*ElectricalDoorsSystem)(nil)
	_ System = (*SwitchSystem)(nil)
	_ System = (*HudOverrideSystem)(nil)
	_ System = (*HqHudSystem)(nil)
	_ System = (*ReactorSystem)(nil)
	_ System = (*LifeSuppSystem)(nil)
	_ System = (*HeliSabotageSystem)(nil)
	_ System = (*MedScanSystem)(nil)
	_ System = (*SecurityCameraSystem)(nil)
	_ System = (*SabotageSystem)(nil)
	_ System = (*DeconSystem)(nil)
	_ System = (*MovingPlatformSystem)(nil)

	_ DoorCloser = (*AutoDoorsSystem)(nil)
	_ DoorCloser = (*DoorsSystem)(nil)
)

// ForMap builds the systems of ship's map in serialization order.
func ForMap(ship Ship) []System {
	switch ship.Map() {
	case content.MapMiraHQ:
		return []System{
			NewReactorSystem(ship, content.SystemReactor),
			NewSwitchSystem(ship),
			NewLifeSuppSystem(ship),
			NewMedScanSystem(ship),
			NewHqHudSystem(ship),
			NewSabotageSystem(ship),
			NewDeconSystem(ship, content.SystemDecontamination),
		}
	case content.MapPolus:
		return []System{
			NewSwitchSystem(ship),
			NewMedScanSystem(ship),
			NewSecurityCameraSystem(ship),
			NewHudOverrideSystem(ship),
			NewDoorsSystem(ship),
			NewSabotageSystem(ship),
			NewDeconSystem(ship, content.SystemDecontamination),
			NewDeconSystem(ship, content.SystemDecontamination2),
			NewReactorSystem(ship, content.SystemLaboratory),
		}
	case content.MapAirship:
		return []System{
			NewSwitchSystem(ship),
			NewSecurityCameraSystem(ship),
			NewHudOverrideSystem(ship),
			NewMovingPlatformSystem(ship),
			NewHeliSabotageSystem(ship),
			NewSabotageSystem(ship),
			NewDoorsSystem(ship),
			NewElectricalDoorsSystem(ship),
		}
	default:
		return []System{
			NewReactorSystem(ship, content.SystemReactor),
			NewSwitchSystem(ship),
			NewLifeSuppSystem(ship),
			NewMedScanSystem(ship),
			NewSecurityCameraSystem(ship),
			NewHudOverrideSystem(ship),
			NewAutoDoorsSystem(ship),
			NewSabotageSystem(ship),
		}
	}
}
