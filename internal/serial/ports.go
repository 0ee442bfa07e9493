package serial

import (
	"fmt"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a port found on the host.
type PortInfo struct {
	Name         string
	Product      string
	USB          bool
	VID          string
	PID          string
	SerialNumber string
}

// Ports lists the serial ports on the host with USB details where known.
func Ports() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			Product:      d.Product,
			USB:          d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
		})
	}
	return ports, nil
}

// String formats the port for a one-line listing.
func (p PortInfo) String() string {
	if !p.USB {
		return p.Name
	}
	s := fmt.Sprintf("%s  usb %s:%s", p.Name, p.VID, p.PID)
	if p.Product != "" {
		s += "  " + p.Product
	}
	if p.SerialNumber != "" {
		s += "  sn " + p.SerialNumber
	}
	return s
}

// FirstPort returns the first port lister reports, or ErrNoTarget.
func FirstPort(lister Lister) (string, error) {
	names, err := lister.List()
	if err != nil {
		return "", fmt.Errorf("list ports: %w", err)
	}
	if len(names) == 0 {
		return "", ErrNoTarget
	}
	return names[0], nil
}
