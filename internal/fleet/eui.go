package fleet

import "strings"

// NormalizeEUI canonicalises a hardware EUI: separators stripped,
// uppercased, exactly 16 hex digits. Vendors print EUIs in every
// imaginable punctuation, so all comparisons run on this form.
func NormalizeEUI(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'F':
			b.WriteRune(r)
		case r == ':' || r == '-' || r == '.' || r == ' ':
			// separator, skip
		default:
			return "", ErrInvalidEUI
		}
	}
	eui := b.String()
	if len(eui) != 16 {
		return "", ErrInvalidEUI
	}
	return eui, nil
}

// GatewayRegistryID derives the deterministic registry identifier for a
// gateway: ft-gw- plus the last eight EUI digits, lowercased. The
// suffix keeps the ID stable across re-provisioning of the same
// hardware.
func GatewayRegistryID(normalizedEUI string) string {
	suffix := normalizedEUI
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return "ft-gw-" + strings.ToLower(suffix)
}

// DeviceRegistryID derives the registry identifier for an end device,
// following the registry's own eui-<lowercase> convention.
func DeviceRegistryID(normalizedEUI string) string {
	return "eui-" + strings.ToLower(normalizedEUI)
}
