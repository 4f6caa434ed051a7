package avrhv

// Parallel programming commands, loaded with XA1:XA0 = 10.
const (
	cmdNOP           = 0x00
	cmdReadFlash     = 0x02
	cmdReadEEPROM    = 0x03
	cmdReadFuseLock  = 0x04
	cmdReadSignature = 0x08
	cmdWriteFlash    = 0x10
	cmdWriteEEPROM   = 0x11
	cmdWriteLock     = 0x20
	cmdWriteFuse     = 0x40
	cmdChipErase     = 0x80
)

// HVSP instruction bytes (shifted out on SII alongside a data byte on SDI).
const (
	instrLoadCommand  = 0x4C
	instrLoadAddrLow  = 0x0C
	instrLoadAddrHigh = 0x1C
	instrLoadDataLow  = 0x2C
	instrLoadDataHigh = 0x3C
)

// pair is a two-frame HVSP sequence: an enable/strobe frame followed by the
// frame that completes the operation (and, for reads, returns the data).
type pair struct{ first, second byte }

var (
	seqReadLow   = pair{0x68, 0x6C}
	seqReadHigh  = pair{0x78, 0x7C}
	seqLatchPage = pair{0x7D, 0x7C}
	seqWritePage = pair{0x64, 0x6C}
	seqWriteLow  = pair{0x64, 0x6C} // low fuse and lock bits share it
)

// FuseKind selects one configuration byte of the target.
type FuseKind uint8

const (
	FuseHigh FuseKind = iota
	FuseLow
	FuseExtended
	LockBits

	numFuseKinds
)

func (k FuseKind) String() string {
	switch k {
	case FuseHigh:
		return "high"
	case FuseLow:
		return "low"
	case FuseExtended:
		return "extended"
	case LockBits:
		return "lock"
	default:
		return "invalid"
	}
}

// Normalize folds out-of-range kinds back into the known set. Legacy hosts
// send arbitrary values here and expect a reply rather than an error.
func (k FuseKind) Normalize() FuseKind {
	if k >= numFuseKinds {
		return k % numFuseKinds
	}
	return k
}

// xa1Level optionally overrides XA1 in the parallel fuse read context.
type xa1Level int8

const (
	xa1Keep xa1Level = iota
	xa1Low
	xa1High
)

// fuseOps is the register map for one fuse kind on both transports.
type fuseOps struct {
	// parallel read context (BS1, BS2, XA1)
	readBS1, readBS2 bool
	readXA1          xa1Level
	// parallel write context (BS1, BS2) and command
	writeBS1, writeBS2 bool
	writeCmd           byte
	// serial sequences
	read  pair
	write pair
	// ISP-style code used by hosts to name this byte in write instructions
	ispCode byte
}

var fuseTable = [numFuseKinds]fuseOps{
	FuseHigh: {
		readBS1: true, readBS2: true,
		writeBS1: true, writeBS2: false, writeCmd: cmdWriteFuse,
		read: pair{0x7A, 0x7E}, write: pair{0x74, 0x7C},
		ispCode: 0xA8,
	},
	FuseLow: {
		readBS1: false, readBS2: false,
		writeBS1: false, writeBS2: false, writeCmd: cmdWriteFuse,
		read: pair{0x68, 0x6C}, write: seqWriteLow,
		ispCode: 0xA0,
	},
	FuseExtended: {
		readBS1: false, readBS2: true, readXA1: xa1High,
		writeBS1: false, writeBS2: true, writeCmd: cmdWriteFuse,
		read: pair{0x6A, 0x6E}, write: pair{0x66, 0x6E},
		ispCode: 0xA4,
	},
	LockBits: {
		readBS1: true, readBS2: false, readXA1: xa1Low,
		writeBS1: false, writeBS2: false, writeCmd: cmdWriteLock,
		read: pair{0x78, 0x7C}, write: seqWriteLow,
		ispCode: 0xE0,
	},
}

// FuseKindFromISP maps the ISP write code (0xA0, 0xA8, 0xA4, 0xE0) to a kind.
func FuseKindFromISP(code byte) (FuseKind, bool) {
	for k := range fuseTable {
		if fuseTable[k].ispCode == code {
			return FuseKind(k), true
		}
	}
	return 0, false
}
