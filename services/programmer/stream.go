// services/programmer/stream.go
package programmer

import "avrprog-go/x/mathx"

// Read fills p with the next chunk of a read stream and returns its length.
// At most ChunkSize bytes are produced, and never more than remain. A chunk
// shorter than ChunkSize ends the stream and returns the session to Idle.
func (p *Programmer) Read(buf []byte) (int, error) {
	s := &p.s
	if !s.State.reading() {
		return 0, ErrOutOfState
	}
	n := mathx.Min(len(buf), ChunkSize)
	n = int(mathx.Min(uint32(n), s.Remaining))
	out := buf[:n]

	if s.State == TPIReading {
		p.tpi.ReadBlock(uint16(s.Address), out)
		s.Address += uint32(n)
	} else {
		for i := range out {
			if s.State == ReadingFlash {
				out[i] = p.eng.ReadFlash(&s.Session, s.Address)
			} else {
				out[i] = p.eng.ReadEEPROM(&s.Session, uint16(s.Address))
			}
			s.Address++
		}
	}
	s.Remaining -= uint32(n)

	if n < ChunkSize || s.Remaining == 0 {
		s.State = Idle
	}
	return n, nil
}

// Write consumes up to ChunkSize bytes of a write stream. It returns how many
// bytes were taken and whether the stream completed. Flash pages are
// flushed when their word counter runs out and, on the last block, when a
// partial page is still pending.
func (p *Programmer) Write(data []byte) (n int, done bool, err error) {
	s := &p.s
	if !s.State.writing() {
		return 0, false, ErrOutOfState
	}
	data = data[:mathx.Min(len(data), ChunkSize)]

	if s.State == TPIWriting {
		n = int(mathx.Min(uint32(len(data)), s.Remaining))
		p.tpi.WriteBlock(uint16(s.Address), data[:n])
		s.Address += uint32(n)
		s.Remaining -= uint32(n)
		if s.Remaining == 0 {
			s.State = Idle
			return n, true, nil
		}
		return n, false, nil
	}

	for i, b := range data {
		if s.Remaining == 0 {
			// Zero-length command: nothing to take.
			s.State = Idle
			return i, true, nil
		}
		if s.State == WritingFlash {
			p.writeFlash(b)
		} else {
			p.note(p.eng.WriteEEPROM(&s.Session, uint16(s.Address), b))
		}

		s.Remaining--
		if s.Remaining == 0 {
			s.State = Idle
			if s.Flags&BlockLast != 0 && s.PageCounter != s.PageSize {
				p.note(p.eng.FlushPage(&s.Session, s.Address))
				s.PageCounter = s.PageSize
			}
			s.Address++
			return i + 1, true, nil
		}
		s.Address++
	}
	return len(data), false, nil
}

// writeFlash feeds one byte to the page buffer. The word counter moves on
// odd addresses, when a word is complete.
func (p *Programmer) writeFlash(b byte) {
	s := &p.s
	if s.PageSize == 0 {
		p.eng.WriteFlash(&s.Session, s.Address, b, 1)
		if s.Address&1 == 1 {
			p.note(p.eng.FlushPage(&s.Session, s.Address))
		}
		return
	}
	p.eng.WriteFlash(&s.Session, s.Address, b, 0)
	if s.Address&1 == 0 {
		return
	}
	if s.PageCounter == 0 {
		s.PageCounter = s.PageSize
	}
	s.PageCounter--
	if s.PageCounter == 0 {
		p.note(p.eng.FlushPage(&s.Session, s.Address))
		s.PageCounter = s.PageSize
	}
}

func (p *Programmer) note(err error) {
	if err != nil {
		p.s.Err = err
	}
}
