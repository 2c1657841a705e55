//go:build !linux

package capture

// FBDev is only available on Linux; this stub keeps the daemon buildable
// elsewhere.
type FBDev struct{}

func NewFBDev(device string) (*FBDev, error) {
	return nil, ErrUnsupported
}

func (d *FBDev) Geometry() Geometry { return Geometry{} }

func (d *FBDev) Capture(dst []byte) error { return ErrUnsupported }

func (d *FBDev) WaitVsync() error { return ErrUnsupported }

func (d *FBDev) Close() error { return nil }
