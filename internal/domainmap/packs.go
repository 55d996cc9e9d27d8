package domainmap

import (
	"path/filepath"
	"strings"
)

// Pack file names recognized by the selector.
const (
	UniversalPack = "Universal_Base_Pack.json"
	RiskPack      = "Risk_Specialist_Pack.json"
	CivilPack     = "Civil_Basic_Pack.json"
	TransportPack = "Transport_Infra_Pack.json"
	EnergyPack    = "Energy_Industrial_Pack.json"
	MedicalPack   = "Special_Medical_Pack.json"
)

// tiers maps a domain key to the single domain-specific pack it selects.
// Keys not listed here select CivilPack.
var tiers = map[string]string{
	"municipal_road":      TransportPack,
	"municipal_drain":     TransportPack,
	"highway":             TransportPack,
	"railway":             TransportPack,
	"mep":                 EnergyPack,
	"industrial_pipeline": EnergyPack,
	"power_energy":        EnergyPack,
	"special_medical":     MedicalPack,
	"medical":             MedicalPack,
}

// TierPack returns the domain-specific pack name for a domain key.
func TierPack(domainKey string) string {
	if p, ok := tiers[strings.ToLower(strings.TrimSpace(domainKey))]; ok {
		return p
	}
	return CivilPack
}

// SelectPacks picks, from the configured pack paths, the universal and risk packs plus one domain pack.
// Packs that are not configured are skipped. The result is order-stable and duplicate-free.
func SelectPacks(domainKey string, configured []string) []string {
	byName := map[string]string{}
	for _, p := range configured {
		name := filepath.Base(p)
		if _, dup := byName[name]; !dup {
			byName[name] = p
		}
	}

	var selected []string
	seen := map[string]bool{}
	for _, name := range []string{UniversalPack, RiskPack, TierPack(domainKey)} {
		p, ok := byName[name]
		if !ok || seen[p] {
			continue
		}
		seen[p] = true
		selected = append(selected, p)
	}
	return selected
}
