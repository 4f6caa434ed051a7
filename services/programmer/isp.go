// services/programmer/isp.go
package programmer

import "avrprog-go/drivers/avrhv"

// ISP instruction bytes understood by transmit.
const (
	ispReadSignature = 0x30
	ispReadFuseLow   = 0x50 // with 0x08: extended fuse
	ispReadFuseHigh  = 0x58 // with 0x00: lock bits
	ispWrite         = 0xAC
	ispChipErase     = 0x80
	ispProgEnable    = 0x53
)

// transmit answers a 4-byte ISP instruction from the high-voltage engine so
// ISP-only hosts can read signatures and fuses. The reply echoes the first
// two instruction bytes; byte 3 is the result, 0xFF when not understood.
func (p *Programmer) transmit(in [4]byte) [4]byte {
	out := [4]byte{0x00, in[0], in[1], 0xFF}
	s := &p.s
	if !s.Detected() {
		return out
	}
	e := p.eng

	switch in[0] {
	case ispReadSignature:
		out[3] = e.ReadSignature(&s.Session, in[2]&0x03)

	case ispReadFuseLow:
		switch in[1] {
		case 0x00:
			out[3] = e.ReadFuse(&s.Session, avrhv.FuseLow)
		case 0x08:
			out[3] = e.ReadFuse(&s.Session, avrhv.FuseExtended)
		}

	case ispReadFuseHigh:
		switch in[1] {
		case 0x08:
			out[3] = e.ReadFuse(&s.Session, avrhv.FuseHigh)
		case 0x00:
			out[3] = e.ReadFuse(&s.Session, avrhv.LockBits)
		}

	case ispWrite:
		switch in[1] {
		case ispProgEnable:
			out[3] = 0x00
		case ispChipErase:
			p.note(e.ChipErase(&s.Session))
			out[3] = 0x00
		default:
			if k, ok := avrhv.FuseKindFromISP(in[1]); ok {
				p.note(e.WriteFuse(&s.Session, k, in[3]))
				out[3] = in[3]
			}
		}
	}
	return out
}
