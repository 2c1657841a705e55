//go:build linux

package capture

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl requests from <linux/fb.h>.
const (
	fbioGetVScreenInfo = 0x4600
	fbioGetFScreenInfo = 0x4602
	fbioWaitForVsync   = 0x40044620
)

type fbBitfield struct {
	Offset   uint32
	Length   uint32
	MSBRight uint32
}

// fbVarScreenInfo mirrors struct fb_var_screeninfo.
type fbVarScreenInfo struct {
	XRes         uint32
	YRes         uint32
	XResVirtual  uint32
	YResVirtual  uint32
	XOffset      uint32
	YOffset      uint32
	BitsPerPixel uint32
	Grayscale    uint32
	Red          fbBitfield
	Green        fbBitfield
	Blue         fbBitfield
	Transp       fbBitfield
	NonStd       uint32
	Activate     uint32
	Height       uint32
	Width        uint32
	AccelFlags   uint32
	PixClock     uint32
	LeftMargin   uint32
	RightMargin  uint32
	UpperMargin  uint32
	LowerMargin  uint32
	HSyncLen     uint32
	VSyncLen     uint32
	Sync         uint32
	VMode        uint32
	Rotate       uint32
	Colorspace   uint32
	Reserved     [4]uint32
}

// fbFixScreenInfo mirrors struct fb_fix_screeninfo. Field alignment matches
// the kernel layout on both 32- and 64-bit because unsigned long maps to
// uintptr.
type fbFixScreenInfo struct {
	ID           [16]byte
	SMemStart    uintptr
	SMemLen      uint32
	Type         uint32
	TypeAux      uint32
	Visual       uint32
	XPanStep     uint16
	YPanStep     uint16
	YWrapStep    uint16
	LineLength   uint32
	MMIOStart    uintptr
	MMIOLen      uint32
	Accel        uint32
	Capabilities uint16
	Reserved     [2]uint16
}

// FBDev reads the Linux framebuffer device: the mapped memory always holds
// the newest scanned-out frame, so a capture is a straight copy. The device
// must run a 16 bpp mode; anything else would mean converting pixels, which
// this pipeline does not do.
type FBDev struct {
	f      *os.File
	mem    []byte
	geom   Geometry
	stride int
	base   int
}

func NewFBDev(device string) (*FBDev, error) {
	f, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", device, err)
	}

	var vinfo fbVarScreenInfo
	if err := ioctlPtr(int(f.Fd()), fbioGetVScreenInfo, unsafe.Pointer(&vinfo)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("capture: %s vscreeninfo: %w", device, err)
	}
	if vinfo.BitsPerPixel != 16 {
		_ = f.Close()
		return nil, fmt.Errorf("capture: %s runs %d bpp, need 16 (RGB565)", device, vinfo.BitsPerPixel)
	}

	var finfo fbFixScreenInfo
	if err := ioctlPtr(int(f.Fd()), fbioGetFScreenInfo, unsafe.Pointer(&finfo)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("capture: %s fscreeninfo: %w", device, err)
	}

	geom := Geometry{Width: int(vinfo.XRes), Height: int(vinfo.YRes)}
	if err := geom.Validate(); err != nil {
		_ = f.Close()
		return nil, err
	}
	stride := int(finfo.LineLength)
	if stride < geom.Width*BytesPerPixel {
		_ = f.Close()
		return nil, fmt.Errorf("capture: %s line length %d below row size %d", device, stride, geom.Width*BytesPerPixel)
	}
	base := int(vinfo.YOffset)*stride + int(vinfo.XOffset)*BytesPerPixel
	if need := base + geom.Height*stride; need > int(finfo.SMemLen) {
		_ = f.Close()
		return nil, fmt.Errorf("capture: %s maps %d bytes, need %d", device, finfo.SMemLen, need)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, int(finfo.SMemLen), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("capture: mmap %s: %w", device, err)
	}

	return &FBDev{f: f, mem: mem, geom: geom, stride: stride, base: base}, nil
}

func (d *FBDev) Geometry() Geometry { return d.geom }

func (d *FBDev) Capture(dst []byte) error {
	if d.mem == nil {
		return ErrClosed
	}
	if err := checkBufferSize(d.geom, dst); err != nil {
		return err
	}
	rowBytes := d.geom.Width * BytesPerPixel
	if d.base == 0 && d.stride == rowBytes {
		copy(dst, d.mem[:len(dst)])
		return nil
	}
	for y := 0; y < d.geom.Height; y++ {
		src := d.base + y*d.stride
		copy(dst[y*rowBytes:(y+1)*rowBytes], d.mem[src:src+rowBytes])
	}
	return nil
}

// WaitVsync blocks until the display's next vertical refresh.
func (d *FBDev) WaitVsync() error {
	if d.mem == nil {
		return ErrClosed
	}
	arg := uint32(0)
	if err := ioctlPtr(int(d.f.Fd()), fbioWaitForVsync, unsafe.Pointer(&arg)); err != nil {
		return fmt.Errorf("capture: wait for vsync: %w", err)
	}
	return nil
}

func (d *FBDev) Close() error {
	if d.mem == nil {
		return nil
	}
	err := unix.Munmap(d.mem)
	d.mem = nil
	if cerr := d.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func ioctlPtr(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
