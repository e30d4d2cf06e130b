// Package errcode defines the stable error kinds of the receiver control
// plane (spec.md §7) as a comparable, allocation-free string newtype, in
// the manner of the teacher's bus-facing error codes.
package errcode

// Code is a stable error kind. Comparable and usable as a map key or in a
// switch, and implements error so it can be returned directly.
type Code string

func (c Code) Error() string { return string(c) }

const (
	ArgsInput         Code = "args_input"
	BusError          Code = "bus_error"
	BadDevice         Code = "bad_device"
	BadChipID         Code = "bad_chip_id"
	NimInit           Code = "nim_init"
	PllTimeout        Code = "pll_timeout"
	TunerLockTimeout  Code = "tuner_lock_timeout"
	BadDemodHuntState Code = "bad_demod_hunt_state"
	State             Code = "state"
	ViterbiPuncture   Code = "viterbi_puncture_rate"
	TsBufferMalloc    Code = "ts_buffer_malloc"
	UDPSocketOpen     Code = "udp_socket_open"
	UDPWrite          Code = "udp_write"
	UDPClose          Code = "udp_close"
	ThreadError       Code = "thread_error"
	SignalTerminate   Code = "signal_terminate"
)

// fatalToTuner holds the kinds that spec.md §7 marks fatal to a tuner's
// acquisition task (and thus escalate to process shutdown).
var fatalToTuner = map[Code]bool{
	BadDemodHuntState: true,
	PllTimeout:        true,
	TunerLockTimeout:  true, // surfaces only after reconfigure's retry loop is exhausted
	BadChipID:         true,
	NimInit:           true,
	State:             true,
}

// FatalToTuner reports whether err, once it has exhausted any local
// retry budget, must bring the owning tuner's task down.
func FatalToTuner(err error) bool {
	return fatalToTuner[Of(err)]
}

// E wraps a Code with an operation name, a human message and an optional
// cause, for diagnostics that identify the failing component/operation
// per spec.md §7.
type E struct {
	C  Code
	Op string // e.g. "STV0910", "STV6120", "UDP"
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return e.Op + ": " + e.Msg
	}
	return e.Op + ": " + string(e.C)
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New constructs an *E.
func New(c Code, op, msg string) *E {
	return &E{C: c, Op: op, Msg: msg}
}

// Wrap constructs an *E carrying cause as the wrapped error.
func Wrap(c Code, op, msg string, cause error) *E {
	return &E{C: c, Op: op, Msg: msg, Err: cause}
}

// Of extracts the Code from an error, defaulting to State for an
// unrecognized error shape (a reachable-branch violation per §7).
func Of(err error) Code {
	if err == nil {
		return ""
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return State
}

// ExitCode maps a Code to a process exit status. SignalTerminate is the
// only clean-stop kind (spec.md §6, §7); everything else is non-zero,
// ordered so the first fatal error kind observed determines the code.
func ExitCode(c Code) int {
	switch c {
	case "", SignalTerminate:
		return 0
	case ArgsInput:
		return 2
	case BusError, BadDevice:
		return 3
	case BadChipID, NimInit, PllTimeout:
		return 4
	case TunerLockTimeout, BadDemodHuntState, State, ViterbiPuncture:
		return 5
	case TsBufferMalloc:
		return 6
	case UDPSocketOpen, UDPWrite, UDPClose:
		return 7
	case ThreadError:
		return 8
	default:
		return 1
	}
}
