package locator

import (
	"context"
	"os/exec"
	"strings"

	"github.com/airenas/go-app/pkg/goapp"
)

// PropReader returns android system property value
type PropReader func(ctx context.Context, name string) (string, error)

// GetProp reads property with the getprop tool
func GetProp(ctx context.Context, name string) (string, error) {
	out, err := exec.CommandContext(ctx, "getprop", name).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ReadDevice fills empty device fields from system properties, unreadable ones stay empty
func ReadDevice(ctx context.Context, d Device, read PropReader) Device {
	props := []struct {
		name string
		v    *string
	}{
		{"ro.product.brand", &d.Brand},
		{"ro.product.manufacturer", &d.Manufacturer},
		{"ro.build.display.id", &d.Display},
		{"ro.build.fingerprint", &d.Fingerprint},
	}
	for _, p := range props {
		if *p.v != "" {
			continue
		}
		v, err := read(ctx, p.name)
		if err != nil {
			goapp.Log.Debug().Err(err).Str("prop", p.name).Msg("can't read")
			continue
		}
		*p.v = v
	}
	return d
}
