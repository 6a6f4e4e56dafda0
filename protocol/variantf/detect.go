package variantf

import (
	"fmt"
	"strings"

	"github.com/sergev/floppybridge/protocol"

	"go.bug.st/serial/enumerator"
)

// VendorID and ProductID identify the binary-framed controller family on
// USB-CDC enumeration.
const (
	VendorID  = "1209"
	ProductID = "4d69"
)

// DetectPort enumerates system serial devices and scores each against the
// controller's known USB signature, returning the name of the
// highest-scoring port.
func DetectPort() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("%w: enumerate ports: %v", protocol.ErrPortNotFound, err)
	}

	best := ""
	bestScore := -1
	for _, p := range ports {
		score := 0
		if p.IsUSB {
			vid := strings.ToLower(p.VID)
			pid := strings.ToLower(p.PID)
			if vid == VendorID && pid == ProductID {
				score += 20
			}
			if pid == "0001" {
				score += 10
			}
		}
		if strings.Contains(p.Name, "Greaseweazle") {
			score += 10
		}
		if strings.Contains(p.Name, `\GW`) {
			score += 10
		}
		if score > bestScore {
			bestScore = score
			best = p.Name
		}
	}

	if best == "" {
		return "", protocol.ErrPortNotFound
	}
	return best, nil
}
