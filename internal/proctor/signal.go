package proctor

import (
	"fmt"
)

// LifecycleSignal is a platform-neutral integrity signal. Web and native
// adapters translate their own events (visibility change, beforeunload,
// hardware back) into one of these variants.
type LifecycleSignal int

const (
	SignalBackgrounded LifecycleSignal = iota + 1
	SignalUnloadAttempted
	SignalBackGesture
)

func (s LifecycleSignal) String() string {
	switch s {
	case SignalBackgrounded:
		return "backgrounded"
	case SignalUnloadAttempted:
		return "unload_attempted"
	case SignalBackGesture:
		return "back_gesture"
	}
	return fmt.Sprintf("signal(%d)", int(s))
}

// Reason is the message shown to the student alongside the warning count.
func (s LifecycleSignal) Reason() string {
	switch s {
	case SignalBackgrounded:
		return "Anda meninggalkan halaman ujian atau membuka aplikasi lain."
	case SignalUnloadAttempted:
		return "Anda mencoba menutup atau memuat ulang halaman ujian."
	case SignalBackGesture:
		return "Anda menekan tombol kembali selama ujian berlangsung."
	}
	return "Pelanggaran aturan ujian terdeteksi."
}

// ParseSignal maps the wire name of a signal back to its variant.
func ParseSignal(name string) (LifecycleSignal, error) {
	switch name {
	case "backgrounded":
		return SignalBackgrounded, nil
	case "unload_attempted":
		return SignalUnloadAttempted, nil
	case "back_gesture":
		return SignalBackGesture, nil
	}
	return 0, fmt.Errorf("unknown lifecycle signal %q", name)
}
